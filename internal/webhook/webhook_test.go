package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"

	"github.com/ie2718/clawdbot-feishu/internal/config"
)

func newTestHandler(account config.Account) *Handler {
	endpoint := Endpoint{
		Account:    account,
		Dispatcher: dispatcher.NewEventDispatcher(account.VerificationToken, account.EncryptKey),
	}
	return NewHandler(nil, []Endpoint{endpoint})
}

func doRequest(t *testing.T, h *Handler, accountID, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.Register(e)
	req := httptest.NewRequest(http.MethodPost, "/feishu/webhook/"+accountID, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandleUnknownAccount(t *testing.T) {
	t.Parallel()

	h := newTestHandler(config.Account{ID: "acct", InboundMode: config.InboundModeWebhook, VerificationToken: "tok"})
	rec := doRequest(t, h, "nope", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleRejectsWebsocketAccount(t *testing.T) {
	t.Parallel()

	h := newTestHandler(config.Account{ID: "acct", InboundMode: config.InboundModeWebsocket, VerificationToken: "tok"})
	rec := doRequest(t, h, "acct", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRejectsBadToken(t *testing.T) {
	t.Parallel()

	h := newTestHandler(config.Account{ID: "acct", InboundMode: config.InboundModeWebhook, VerificationToken: "expected"})
	rec := doRequest(t, h, "acct", `{"token":"wrong","type":"event_callback"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleChallenge(t *testing.T) {
	t.Parallel()

	h := newTestHandler(config.Account{ID: "acct", InboundMode: config.InboundModeWebhook, VerificationToken: "tok"})
	rec := doRequest(t, h, "acct", `{"challenge":"abc123","token":"tok","type":"url_verification"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "abc123") {
		t.Fatalf("challenge not echoed: %s", rec.Body.String())
	}
}

func TestHandleProbe(t *testing.T) {
	t.Parallel()

	h := newTestHandler(config.Account{ID: "acct", InboundMode: config.InboundModeWebhook, VerificationToken: "tok"})
	e := echo.New()
	h.Register(e)
	req := httptest.NewRequest(http.MethodGet, "/feishu/webhook/acct", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("probe = %d %q", rec.Code, rec.Body.String())
	}
}
