// Package access decides whether an inbound message may reach the agent:
// direct-chat policies (pairing, allowlist, open, disabled), group admission,
// and the group mention gate.
package access

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ie2718/clawdbot-feishu/internal/classify"
	"github.com/ie2718/clawdbot-feishu/internal/config"
	"github.com/ie2718/clawdbot-feishu/internal/feishu"
)

// Decision is the outcome class of an access evaluation.
type Decision string

const (
	Allow             Decision = "allow"
	BlockDisabled     Decision = "block_disabled"
	BlockUnauthorized Decision = "block_unauthorized"
	PairingIssued     Decision = "pairing_issued"
)

// Verdict is one evaluation result. Authorized reports whether the sender is
// in the effective allow set, which gates control commands in groups.
type Verdict struct {
	Decision    Decision
	Authorized  bool
	PairingCode string
}

// Allowed reports whether the message may proceed to the agent.
func (v Verdict) Allowed() bool { return v.Decision == Allow }

// PairingStore provides the persisted side of sender authorization.
type PairingStore interface {
	// AllowedSenders lists sender ids approved through pairing.
	AllowedSenders(ctx context.Context, accountID string) ([]string, error)
	// Upsert registers a pairing request and reports whether this call
	// created it. Concurrent upserts for one sender create at most once.
	Upsert(ctx context.Context, accountID, senderID string) (code string, created bool, err error)
}

// Evaluator applies one account's policies.
type Evaluator struct {
	account  config.Account
	pairings PairingStore
	logger   *slog.Logger

	botOpenID string
	botName   string
}

// NewEvaluator builds an evaluator for an account. botOpenID and botName feed
// the group mention gate and may be empty until the bot identity is known.
func NewEvaluator(account config.Account, pairings PairingStore, botOpenID, botName string, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		account:   account,
		pairings:  pairings,
		logger:    logger.With(slog.String("component", "access"), slog.String("account", account.ID)),
		botOpenID: strings.TrimSpace(botOpenID),
		botName:   strings.TrimSpace(botName),
	}
}

// EvaluateDM applies the account's direct-chat policy to a sender.
func (e *Evaluator) EvaluateDM(ctx context.Context, senderID string) Verdict {
	switch e.account.DMPolicy {
	case config.DMPolicyDisabled:
		return Verdict{Decision: BlockDisabled}
	case config.DMPolicyOpen:
		// No store read: admission needs no pairing state here.
		set := NewAllowSet(e.account.AllowFrom...)
		return Verdict{Decision: Allow, Authorized: set.Contains(senderID)}
	case config.DMPolicyAllowlist:
		set := e.effectiveAllowSet(ctx)
		if set.Contains(senderID) {
			return Verdict{Decision: Allow, Authorized: true}
		}
		return Verdict{Decision: BlockUnauthorized}
	default: // pairing
		set := e.effectiveAllowSet(ctx)
		if set.Contains(senderID) {
			return Verdict{Decision: Allow, Authorized: true}
		}
		code, created, err := e.pairings.Upsert(ctx, e.account.ID, senderID)
		if err != nil {
			e.logger.Error("pairing upsert failed",
				slog.String("sender", senderID), slog.Any("error", err))
			return Verdict{Decision: BlockUnauthorized}
		}
		if created {
			return Verdict{Decision: PairingIssued, PairingCode: code}
		}
		// Pending request: block silently, no repeat notice.
		return Verdict{Decision: BlockUnauthorized}
	}
}

// EvaluateGroup applies group admission and the mention gate.
func (e *Evaluator) EvaluateGroup(ctx context.Context, msg classify.InboundMessage) Verdict {
	override, hasOverride := e.account.GroupOverrideFor(msg.ChatID)
	admitted := false
	switch e.account.GroupPolicy {
	case config.GroupPolicyDisabled:
		return Verdict{Decision: BlockDisabled}
	case config.GroupPolicyOpen:
		admitted = true
	default: // allowlist
		set := NewAllowSet(e.account.GroupAllowFrom...)
		switch {
		case set.Contains(msg.ChatID):
			admitted = true
		case hasOverride && (override.Enabled == nil || *override.Enabled):
			admitted = true
		}
	}
	if !admitted {
		return Verdict{Decision: BlockUnauthorized}
	}
	if hasOverride && override.Enabled != nil && !*override.Enabled {
		return Verdict{Decision: BlockDisabled}
	}
	requireMention := true
	if hasOverride && override.RequireMention != nil {
		requireMention = *override.RequireMention
	}
	if requireMention && !e.mentioned(msg) {
		return Verdict{Decision: BlockUnauthorized}
	}
	set := e.effectiveAllowSet(ctx)
	return Verdict{Decision: Allow, Authorized: set.Contains(msg.SenderID)}
}

// mentioned reports whether the message addresses the bot: @all, a structured
// mention matching the bot's open id, then a name-based fallback.
func (e *Evaluator) mentioned(msg classify.InboundMessage) bool {
	if msg.MentionedAll {
		return true
	}
	if e.botOpenID != "" {
		for _, mention := range msg.Mentions {
			if mention.OpenID == e.botOpenID {
				return true
			}
		}
	}
	if e.botName == "" {
		// Identity unknown: any structured mention counts.
		return len(msg.Mentions) > 0
	}
	for _, mention := range msg.Mentions {
		if mention.OpenID == "" && strings.EqualFold(mention.Name, e.botName) {
			return true
		}
	}
	text := strings.TrimSpace(msg.Text)
	if len(text) > 1 && text[0] == '@' {
		rest := strings.TrimSpace(text[1:])
		if len(rest) >= len(e.botName) && strings.EqualFold(rest[:len(e.botName)], e.botName) {
			return true
		}
	}
	return false
}

// effectiveAllowSet merges the configured allowlist with pairing-approved
// senders. Store failures degrade to the configured set.
func (e *Evaluator) effectiveAllowSet(ctx context.Context) AllowSet {
	set := NewAllowSet(e.account.AllowFrom...)
	if e.pairings == nil {
		return set
	}
	approved, err := e.pairings.AllowedSenders(ctx, e.account.ID)
	if err != nil {
		e.logger.Warn("reading approved senders failed", slog.Any("error", err))
		return set
	}
	set.Add(approved...)
	return set
}

// AllowSet is a normalized sender allowlist. Entries are compared
// case-insensitively after stripping an optional channel prefix; a "*" entry
// admits everyone.
type AllowSet struct {
	entries  map[string]struct{}
	wildcard bool
}

// NewAllowSet builds a set from raw configuration entries.
func NewAllowSet(raw ...string) AllowSet {
	set := AllowSet{entries: make(map[string]struct{}, len(raw))}
	set.Add(raw...)
	return set
}

// Add normalizes and inserts entries.
func (s *AllowSet) Add(raw ...string) {
	for _, entry := range raw {
		normalized := normalizeEntry(entry)
		if normalized == "" {
			continue
		}
		if normalized == "*" {
			s.wildcard = true
			continue
		}
		s.entries[normalized] = struct{}{}
	}
}

// Contains reports whether id is admitted.
func (s AllowSet) Contains(id string) bool {
	if s.wildcard {
		return true
	}
	_, ok := s.entries[normalizeEntry(id)]
	return ok
}

func normalizeEntry(raw string) string {
	return strings.ToLower(strings.TrimSpace(feishu.StripChannelPrefix(raw)))
}
