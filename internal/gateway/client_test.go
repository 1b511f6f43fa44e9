package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ie2718/clawdbot-feishu/internal/config"
)

func TestClientAskPlainResponse(t *testing.T) {
	t.Parallel()

	var received Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "the answer"})
	}))
	defer srv.Close()

	client := NewClient(config.GatewayConfig{BaseURL: srv.URL, TimeoutSeconds: 5}, nil)
	var got []Delivery
	err := client.Ask(context.Background(), Envelope{Body: "question", SenderID: "ou_1"}, func(d Delivery) {
		got = append(got, d)
	})
	require.NoError(t, err)
	require.Equal(t, "question", received.Body)
	require.Len(t, got, 1)
	require.Equal(t, Delivery{Text: "the answer", Final: true}, got[0])
}

func TestClientAskStreamResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"delta\":\"Hel\"}\n\n")
		fmt.Fprint(w, "data: {\"delta\":\"lo\"}\n\n")
		fmt.Fprint(w, "data: {\"done\":true,\"text\":\"Hello\"}\n\n")
	}))
	defer srv.Close()

	client := NewClient(config.GatewayConfig{BaseURL: srv.URL, TimeoutSeconds: 5}, nil)
	var got []Delivery
	err := client.Ask(context.Background(), Envelope{Body: "question"}, func(d Delivery) {
		got = append(got, d)
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, Delivery{Text: "Hel", Incremental: true}, got[0])
	require.Equal(t, Delivery{Text: "lo", Incremental: true}, got[1])
	require.Equal(t, Delivery{Text: "Hello", Final: true}, got[2])
}

func TestClientAskErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(config.GatewayConfig{BaseURL: srv.URL, TimeoutSeconds: 5}, nil)
	err := client.Ask(context.Background(), Envelope{}, func(Delivery) {
		t.Fatal("no delivery expected on error")
	})
	require.ErrorContains(t, err, "status 502")
}

func TestStaticResolver(t *testing.T) {
	t.Parallel()

	resolver := StaticResolver{AgentID: "main"}
	ctx := context.Background()

	dm, err := resolver.Resolve(ctx, "acct", "p2p", "oc_1", "ou_9")
	require.NoError(t, err)
	require.Equal(t, Route{AgentID: "main", SessionKey: "acct:p2p:ou_9"}, dm)

	group, err := resolver.Resolve(ctx, "acct", "group", "oc_1", "ou_9")
	require.NoError(t, err)
	require.Equal(t, Route{AgentID: "main", SessionKey: "acct:group:oc_1"}, group)

	fallback, err := StaticResolver{}.Resolve(ctx, "acct", "p2p", "", "ou_9")
	require.NoError(t, err)
	require.Equal(t, "default", fallback.AgentID)
}
