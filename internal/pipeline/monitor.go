package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/ie2718/clawdbot-feishu/internal/config"
)

const reconnectDelay = 3 * time.Second

// Monitor holds one account's long-lived websocket event connection, feeding
// received events into the pipeline. The SDK client reconnects internally for
// transient drops; when it exits entirely the monitor rebuilds it after a
// fixed delay.
type Monitor struct {
	account  config.Account
	pipeline *Pipeline
	logger   *slog.Logger

	stopped atomic.Bool
	cancel  context.CancelFunc
}

// NewMonitor builds a monitor for the account.
func NewMonitor(account config.Account, p *Pipeline, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		account:  account,
		pipeline: p,
		logger: logger.With(
			slog.String("component", "monitor"),
			slog.String("account", account.ID),
		),
	}
}

// EventDispatcher builds the SDK dispatcher wired to the pipeline. Shared
// with webhook inbound mode so both paths classify identically.
func (m *Monitor) EventDispatcher(ctx context.Context) *dispatcher.EventDispatcher {
	eventDispatcher := dispatcher.NewEventDispatcher(
		m.account.VerificationToken,
		m.account.EncryptKey,
	)
	eventDispatcher.OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
		if m.stopped.Load() || ctx.Err() != nil {
			return nil
		}
		// Per-event goroutine: one slow agent reply must not stall the
		// event connection.
		go func() {
			if err := m.pipeline.Handle(ctx, event); err != nil {
				m.logger.Error("event handling failed", slog.Any("error", err))
			}
		}()
		return nil
	})
	return eventDispatcher
}

// Start opens the websocket connection and keeps it alive until Stop or
// context cancellation.
func (m *Monitor) Start(ctx context.Context) {
	connCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	newClient := func() *larkws.Client {
		return larkws.NewClient(
			m.account.AppID,
			m.account.AppSecret,
			larkws.WithEventHandler(m.EventDispatcher(connCtx)),
			larkws.WithDomain(m.domain()),
		)
	}

	go func() {
		for {
			if connCtx.Err() != nil {
				return
			}
			client := newClient()
			err := client.Start(connCtx)
			if connCtx.Err() != nil {
				return
			}
			if err != nil {
				m.logger.Error("event connection failed", slog.Any("error", err))
			} else {
				m.logger.Warn("event connection exited; reconnecting")
			}
			timer := time.NewTimer(reconnectDelay)
			select {
			case <-connCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
}

// Stop marks the monitor stopped and tears the connection down. Deliveries
// for events already in flight become no-ops at the dispatcher boundary.
func (m *Monitor) Stop() {
	m.stopped.Store(true)
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Monitor) domain() string {
	if m.account.Region == config.RegionLark {
		return lark.LarkBaseUrl
	}
	return lark.FeishuBaseUrl
}
