// Package pipeline orchestrates one account's inbound flow: classification,
// access control, route resolution, envelope construction, and reply
// delivery.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/ie2718/clawdbot-feishu/internal/access"
	"github.com/ie2718/clawdbot-feishu/internal/classify"
	"github.com/ie2718/clawdbot-feishu/internal/config"
	"github.com/ie2718/clawdbot-feishu/internal/feishu"
	"github.com/ie2718/clawdbot-feishu/internal/gateway"
	"github.com/ie2718/clawdbot-feishu/internal/reply"
	"github.com/ie2718/clawdbot-feishu/internal/status"
)

// Asker produces agent replies for an envelope.
type Asker interface {
	Ask(ctx context.Context, env gateway.Envelope, emit func(gateway.Delivery)) error
}

// MediaFetcher downloads user-sent attachments. *feishu.Client satisfies it.
type MediaFetcher interface {
	DownloadMessageResource(ctx context.Context, messageID, key, resourceType string) (data []byte, contentType, fileName string, err error)
}

// Deps are the collaborators one pipeline needs.
type Deps struct {
	Account   config.Account
	Evaluator *access.Evaluator
	Resolver  gateway.RouteResolver
	Sessions  gateway.SessionStore
	Commands  gateway.CommandClassifier
	Agent     Asker
	Engine    *reply.Engine
	Sink      *status.Sink
	Media     MediaFetcher
	SpoolDir  string
	Logger    *slog.Logger
}

// Pipeline handles inbound events for a single account.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
}

// New builds a pipeline.
func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		deps: deps,
		logger: logger.With(
			slog.String("component", "pipeline"),
			slog.String("account", deps.Account.ID),
		),
	}
}

// Handle processes one message-receive event end to end. Returned errors are
// for the caller's log; blocked and dropped messages return nil.
func (p *Pipeline) Handle(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	msg, ok := classify.Classify(event)
	if !ok {
		return nil
	}
	if msg.Empty() {
		p.logger.Debug("empty message dropped", slog.String("message_id", msg.MessageID))
		return nil
	}
	receiveID, receiveIDType, err := feishu.ResolveTarget(msg.ReplyTarget)
	if err != nil {
		p.logger.Warn("unresolvable reply target",
			slog.String("target", msg.ReplyTarget), slog.Any("error", err))
		return nil
	}
	target := reply.Target{
		ReceiveID:     receiveID,
		ReceiveIDType: receiveIDType,
		ReplyTo:       msg.MessageID,
	}
	if msg.IsGroup() && msg.SenderIDType == "open_id" {
		target.MentionID = msg.SenderID
	}

	var verdict access.Verdict
	if msg.IsGroup() {
		verdict = p.deps.Evaluator.EvaluateGroup(ctx, msg)
	} else {
		verdict = p.deps.Evaluator.EvaluateDM(ctx, msg.SenderID)
	}
	switch verdict.Decision {
	case access.Allow:
	case access.PairingIssued:
		return p.sendPairingNotice(ctx, target, verdict.PairingCode)
	default:
		p.logger.Debug("message blocked",
			slog.String("decision", string(verdict.Decision)),
			slog.String("sender", msg.SenderID),
			slog.String("chat", msg.ChatID))
		return nil
	}

	if msg.IsGroup() && p.deps.Commands.IsCommand(msg.Text) && !verdict.Authorized {
		p.logger.Info("unauthorized group control command dropped",
			slog.String("sender", msg.SenderID), slog.String("chat", msg.ChatID))
		return nil
	}

	route, err := p.deps.Resolver.Resolve(ctx, p.deps.Account.ID, msg.ChatType, msg.ChatID, msg.SenderID)
	if err != nil {
		return fmt.Errorf("resolve route: %w", err)
	}

	p.deps.Sink.MarkInbound(p.deps.Account.ID)

	prior, err := p.deps.Sessions.LastUpdated(ctx, route.SessionKey)
	if err != nil {
		p.logger.Warn("reading session history failed", slog.Any("error", err))
	}
	receivedAt := msg.CreateTime
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	env := gateway.Envelope{
		AccountID:      p.deps.Account.ID,
		Channel:        "feishu",
		Route:          route,
		SenderLabel:    "feishu:" + msg.SenderID,
		SenderID:       msg.SenderID,
		ChatID:         msg.ChatID,
		ChatType:       msg.ChatType,
		MessageID:      msg.MessageID,
		Body:           msg.Text,
		Media:          p.collectMedia(ctx, msg),
		ReceivedAt:     receivedAt,
		PriorSessionAt: prior,
	}
	if err := p.deps.Sessions.RecordInbound(ctx, route.SessionKey, receivedAt); err != nil {
		p.logger.Warn("recording session failed", slog.Any("error", err))
	}
	return p.deliver(ctx, env, target)
}

func (p *Pipeline) sendPairingNotice(ctx context.Context, target reply.Target, code string) error {
	notice := fmt.Sprintf(
		"Hi! This bot is locked until pairing completes.\n\nYour pairing code: **%s**\n\nAsk the operator to approve it, then message me again.",
		code)
	// The notice stands alone and mentions nobody.
	target.ReplyTo = ""
	target.MentionID = ""
	if err := p.deps.Engine.SendBatch(ctx, target, notice); err != nil {
		return fmt.Errorf("send pairing notice: %w", err)
	}
	return nil
}

// collectMedia turns the message's attachments into refs, downloading each to
// the spool directory when a fetcher is wired. Download failures and
// over-limit payloads degrade to a bare ref.
func (p *Pipeline) collectMedia(ctx context.Context, msg classify.InboundMessage) []gateway.MediaRef {
	var refs []gateway.MediaRef
	for _, key := range msg.ImageKeys {
		refs = append(refs, p.fetchMedia(ctx, msg.MessageID, "image", key, ""))
	}
	if msg.FileKey != "" {
		refs = append(refs, p.fetchMedia(ctx, msg.MessageID, "file", msg.FileKey, msg.FileName))
	}
	return refs
}

func (p *Pipeline) fetchMedia(ctx context.Context, messageID, kind, key, name string) gateway.MediaRef {
	ref := gateway.MediaRef{Kind: kind, Key: key, Name: name}
	if p.deps.Media == nil {
		return ref
	}
	data, contentType, fileName, err := p.deps.Media.DownloadMessageResource(ctx, messageID, key, kind)
	if err != nil {
		p.logger.Warn("media download failed",
			slog.String("key", key), slog.Any("error", err))
		return ref
	}
	if limit := p.deps.Account.MediaMaxBytes; limit > 0 && int64(len(data)) > limit {
		p.logger.Warn("media exceeds size limit, reference kept without payload",
			slog.String("key", key), slog.Int("bytes", len(data)))
		return ref
	}
	if fileName != "" && ref.Name == "" {
		ref.Name = fileName
	}
	ref.ContentType = contentType
	ref.Path = p.spool(key, data)
	return ref
}

func (p *Pipeline) spool(key string, data []byte) string {
	dir := p.deps.SpoolDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "feishubot")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.Warn("creating spool dir failed", slog.Any("error", err))
		return ""
	}
	file, err := os.CreateTemp(dir, "media-*")
	if err != nil {
		p.logger.Warn("spooling media failed", slog.String("key", key), slog.Any("error", err))
		return ""
	}
	defer func() { _ = file.Close() }()
	if _, err := file.Write(data); err != nil {
		p.logger.Warn("writing media failed", slog.String("key", key), slog.Any("error", err))
		return ""
	}
	return file.Name()
}

// deliver routes agent output through a buffered dispatcher into either the
// streaming card or a batch send.
func (p *Pipeline) deliver(ctx context.Context, env gateway.Envelope, target reply.Target) error {
	stream := p.deps.Engine.StartStream(target)
	var (
		sawIncremental bool
		batchText      string
		haveBatch      bool
		finalErr       error
	)
	dispatcher := gateway.NewDispatcher(64, func(ctx context.Context, delivery gateway.Delivery) error {
		switch {
		case delivery.Final && !delivery.Incremental:
			if sawIncremental {
				if delivery.Text != "" {
					stream.Replace(delivery.Text)
				}
				finalErr = stream.Finalize(ctx)
			} else {
				batchText = delivery.Text
				haveBatch = true
			}
		case delivery.Final:
			sawIncremental = true
			if delivery.Text != "" {
				stream.Append(ctx, delivery.Text)
			}
			finalErr = stream.Finalize(ctx)
		default:
			sawIncremental = true
			stream.Append(ctx, delivery.Text)
		}
		return nil
	}, func(err error) {
		p.logger.Error("delivery failed", slog.Any("error", err))
	}, p.logger)

	runDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(runDone)
	}()
	askErr := p.deps.Agent.Ask(ctx, env, func(delivery gateway.Delivery) {
		dispatcher.Enqueue(delivery)
	})
	dispatcher.Close()
	<-runDone

	if askErr != nil {
		// Close out anything already on screen before reporting.
		if sawIncremental {
			if err := stream.Finalize(ctx); err != nil {
				p.logger.Warn("finalizing interrupted stream failed", slog.Any("error", err))
			}
		}
		return fmt.Errorf("ask agent: %w", askErr)
	}
	if haveBatch {
		return p.deps.Engine.SendBatch(ctx, target, batchText)
	}
	return finalErr
}
