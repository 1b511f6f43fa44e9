// Package reply delivers agent output back to Feishu, either as a batch of
// interactive cards or as one card edited progressively while the reply
// streams in.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ie2718/clawdbot-feishu/internal/config"
	"github.com/ie2718/clawdbot-feishu/internal/feishu"
	"github.com/ie2718/clawdbot-feishu/internal/gateway"
)

const (
	// defaultChunkLimit keeps headroom below the platform text limit.
	defaultChunkLimit = 3800
	// coalesceFloor is the minimum gap between successive card edits.
	coalesceFloor = 300 * time.Millisecond

	msgTypeInteractive = "interactive"
)

// Messenger is the platform surface the engine writes through.
// *feishu.Client satisfies it.
type Messenger interface {
	SendMessage(ctx context.Context, receiveID, receiveIDType, msgType, content string) (string, error)
	ReplyMessage(ctx context.Context, messageID, msgType, content string) (string, error)
	UpdateCard(ctx context.Context, messageID, content string) error
}

// Target addresses one reply: where it goes, which message it quotes, and
// who gets at-mentioned on the first send.
type Target struct {
	ReceiveID     string
	ReceiveIDType string
	ReplyTo       string
	MentionID     string
}

// DeliveryError wraps a platform write failure with the delivery stage.
type DeliveryError struct {
	Stage string
	Err   error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("reply %s: %v", e.Stage, e.Err) }
func (e *DeliveryError) Unwrap() error { return e.Err }

// Engine shapes and transmits replies.
type Engine struct {
	messenger  Messenger
	tableMode  config.TableMode
	chunkLimit int
	now        func() time.Time
	logger     *slog.Logger
	onTransmit func()
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithChunkLimit overrides the per-message size limit.
func WithChunkLimit(limit int) EngineOption {
	return func(e *Engine) {
		if limit > 0 {
			e.chunkLimit = limit
		}
	}
}

// WithClock injects the time source for flush coalescing.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTransmitHook runs after every successful platform write.
func WithTransmitHook(hook func()) EngineOption {
	return func(e *Engine) {
		if hook != nil {
			e.onTransmit = hook
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.logger = log.With(slog.String("component", "reply"))
		}
	}
}

// NewEngine builds an engine over a messenger.
func NewEngine(messenger Messenger, tableMode config.TableMode, opts ...EngineOption) *Engine {
	e := &Engine{
		messenger:  messenger,
		tableMode:  tableMode,
		chunkLimit: defaultChunkLimit,
		now:        time.Now,
		logger:     slog.Default(),
		onTransmit: func() {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SendBatch delivers a complete reply: tables are converted, the text is
// chunked, the first chunk replies to the original message carrying the
// mention, and remaining chunks go out standalone. Individual chunk failures
// are logged and do not stop later chunks; the call fails only when nothing
// was delivered.
func (e *Engine) SendBatch(ctx context.Context, target Target, text string) error {
	text = gateway.ConvertTables(text, e.tableMode)
	chunks := gateway.Chunk(text, e.chunkLimit)
	if len(chunks) == 0 {
		return nil
	}
	var lastErr error
	delivered := 0
	for i, chunk := range chunks {
		mention := ""
		if i == 0 {
			mention = target.MentionID
		}
		content, err := feishu.RenderCard(chunk, mention, false)
		if err != nil {
			lastErr = err
			e.logger.Error("render chunk failed", slog.Int("chunk", i), slog.Any("error", err))
			continue
		}
		if i == 0 && target.ReplyTo != "" {
			_, err = e.messenger.ReplyMessage(ctx, target.ReplyTo, msgTypeInteractive, content)
		} else {
			_, err = e.messenger.SendMessage(ctx, target.ReceiveID, target.ReceiveIDType, msgTypeInteractive, content)
		}
		if err != nil {
			lastErr = err
			e.logger.Error("send chunk failed", slog.Int("chunk", i), slog.Any("error", err))
			continue
		}
		delivered++
		e.onTransmit()
	}
	if delivered == 0 && lastErr != nil {
		return &DeliveryError{Stage: "batch", Err: lastErr}
	}
	return nil
}

// StreamingContext accumulates a streamed reply into a single card. It is
// owned by the one goroutine driving the reply; no internal locking.
type StreamingContext struct {
	engine *Engine
	target Target

	text      strings.Builder
	messageID string
	lastFlush time.Time
	sent      bool
}

// StartStream opens a streaming reply toward target.
func (e *Engine) StartStream(target Target) *StreamingContext {
	return &StreamingContext{engine: e, target: target}
}

// Append adds a delta and flushes when the coalescing floor has passed.
// Intermediate flush failures are logged, never propagated.
func (s *StreamingContext) Append(ctx context.Context, delta string) {
	s.text.WriteString(delta)
	s.maybeFlush(ctx)
}

// Replace swaps the accumulated text for a full snapshot. It does not flush;
// the next flush or Finalize writes it.
func (s *StreamingContext) Replace(text string) {
	s.text.Reset()
	s.text.WriteString(text)
}

func (s *StreamingContext) maybeFlush(ctx context.Context) {
	now := s.engine.now()
	if !s.lastFlush.IsZero() && now.Sub(s.lastFlush) < coalesceFloor {
		return
	}
	if strings.TrimSpace(s.text.String()) == "" {
		return
	}
	if err := s.flush(ctx, true); err != nil {
		s.engine.logger.Warn("streaming flush failed", slog.Any("error", err))
	}
}

// Finalize writes the completed reply without the cursor. Its failure is the
// only streaming error the caller sees.
func (s *StreamingContext) Finalize(ctx context.Context) error {
	if strings.TrimSpace(s.text.String()) == "" {
		return nil
	}
	if err := s.flush(ctx, false); err != nil {
		return &DeliveryError{Stage: "final flush", Err: err}
	}
	return nil
}

// flush renders the accumulated text (cursor appended while streaming) and
// either sends the card or edits it in place.
func (s *StreamingContext) flush(ctx context.Context, streaming bool) error {
	e := s.engine
	body := gateway.ConvertTables(s.text.String(), e.tableMode)
	mention := ""
	if !s.sent {
		mention = s.target.MentionID
	}
	content, err := feishu.RenderCard(body, mention, streaming)
	if err != nil {
		return err
	}
	s.lastFlush = e.now()
	if s.messageID == "" {
		var messageID string
		if s.target.ReplyTo != "" {
			messageID, err = e.messenger.ReplyMessage(ctx, s.target.ReplyTo, msgTypeInteractive, content)
		} else {
			messageID, err = e.messenger.SendMessage(ctx, s.target.ReceiveID, s.target.ReceiveIDType, msgTypeInteractive, content)
		}
		if err != nil {
			return err
		}
		s.messageID = messageID
		s.sent = true
		e.onTransmit()
		return nil
	}
	if err := e.messenger.UpdateCard(ctx, s.messageID, content); err != nil {
		return err
	}
	e.onTransmit()
	return nil
}
