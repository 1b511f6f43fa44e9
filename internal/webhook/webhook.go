// Package webhook serves Feishu event-subscription callbacks for accounts
// running in webhook inbound mode, feeding the same pipeline as the
// websocket path.
package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"

	"github.com/ie2718/clawdbot-feishu/internal/config"
)

const maxBodyBytes int64 = 1 << 20 // 1 MiB

// Endpoint is one account's webhook target: its config plus the event
// dispatcher that validates and routes its callbacks.
type Endpoint struct {
	Account    config.Account
	Dispatcher *dispatcher.EventDispatcher
}

// Handler receives Feishu/Lark event-subscription callbacks.
type Handler struct {
	logger    *slog.Logger
	endpoints map[string]Endpoint
}

// NewHandler builds a handler over the webhook-mode endpoints, keyed by
// account id.
func NewHandler(logger *slog.Logger, endpoints []Endpoint) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	byID := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		byID[ep.Account.ID] = ep
	}
	return &Handler{
		logger:    logger.With(slog.String("component", "webhook")),
		endpoints: byID,
	}
}

// Register mounts the callback routes.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/feishu/webhook/:account_id", h.HandleProbe)
	e.POST("/feishu/webhook/:account_id", h.Handle)
}

// HandleProbe answers health probes on the webhook URL.
func (h *Handler) HandleProbe(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Handle validates and processes one callback.
func (h *Handler) Handle(c echo.Context) error {
	accountID := strings.TrimSpace(c.Param("account_id"))
	if accountID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "account id is required")
	}
	endpoint, ok := h.endpoints[accountID]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown webhook account")
	}
	if endpoint.Account.InboundMode != config.InboundModeWebhook {
		return echo.NewHTTPError(http.StatusBadRequest, "account inbound_mode is not webhook")
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(payload)) > maxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", maxBodyBytes))
	}
	if err := validateCallbackAuth(payload, endpoint.Account); err != nil {
		return err
	}

	resp := endpoint.Dispatcher.Handle(c.Request().Context(), &larkevent.EventReq{
		Header:     c.Request().Header,
		Body:       payload,
		RequestURI: c.Request().RequestURI,
	})
	if resp == nil {
		return c.NoContent(http.StatusOK)
	}
	for key, values := range resp.Header {
		for _, value := range values {
			c.Response().Header().Add(key, value)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	if len(resp.Body) == 0 {
		return nil
	}
	_, err = c.Response().Write(resp.Body)
	return err
}

// validateCallbackAuth enforces the verification token when no encrypt key
// is configured; with an encrypt key the SDK's signature check applies.
func validateCallbackAuth(payload []byte, account config.Account) error {
	if strings.TrimSpace(account.EncryptKey) != "" {
		return nil
	}
	var fuzzy larkevent.EventFuzzy
	if err := json.Unmarshal(payload, &fuzzy); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid webhook payload: %v", err))
	}
	if larkevent.ReqType(strings.TrimSpace(fuzzy.Type)) == larkevent.ReqTypeChallenge {
		return nil
	}
	expected := strings.TrimSpace(account.VerificationToken)
	if expected == "" {
		return echo.NewHTTPError(http.StatusForbidden, "webhook requires verification_token when encrypt_key is empty")
	}
	token := strings.TrimSpace(fuzzy.Token)
	if fuzzy.Header != nil && strings.TrimSpace(fuzzy.Header.Token) != "" {
		token = strings.TrimSpace(fuzzy.Header.Token)
	}
	if token == "" || token != expected {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook token")
	}
	return nil
}
