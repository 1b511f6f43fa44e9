package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ie2718/clawdbot-feishu/internal/config"
)

const defaultGatewayTimeout = 120 * time.Second

// Client talks to the agent gateway over HTTP. A reply comes back either as a
// single JSON body or as a server-sent event stream of deltas.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient builds a gateway client from configuration.
func NewClient(cfg config.GatewayConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := defaultGatewayTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
		logger:     logger.With(slog.String("component", "gateway_client")),
	}
}

type streamEvent struct {
	Delta string `json:"delta"`
	Text  string `json:"text"`
	Done  bool   `json:"done"`
}

// Ask submits an envelope and feeds the reply to emit. Streaming responses
// produce incremental deliveries followed by a final one; plain responses
// produce a single final delivery.
func (c *Client) Ask(ctx context.Context, env Envelope, emit func(Delivery)) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("gateway request timed out after %s", c.timeout)
		}
		return fmt.Errorf("gateway request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return c.consumeStream(resp.Body, emit)
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	emit(Delivery{Text: parsed.Text, Final: true})
	return nil
}

// consumeStream reads "data:" lines until done or EOF.
func (c *Client) consumeStream(body io.Reader, emit func(Delivery)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			c.logger.Warn("skipping malformed stream event", slog.Any("error", err))
			continue
		}
		switch {
		case event.Done:
			final := Delivery{Text: event.Text, Final: true}
			if event.Text == "" {
				final.Text = event.Delta
				final.Incremental = event.Delta != ""
			}
			emit(final)
			return nil
		case event.Delta != "":
			emit(Delivery{Text: event.Delta, Incremental: true})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read gateway stream: %w", err)
	}
	emit(Delivery{Final: true, Incremental: true})
	return nil
}
