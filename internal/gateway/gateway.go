// Package gateway defines the contracts between the Feishu adapter and the
// conversational-agent gateway, plus the text shaping (table conversion,
// chunking) applied to agent replies before delivery.
package gateway

import (
	"context"
	"time"
)

// Route identifies the agent and conversation session a message belongs to.
type Route struct {
	AgentID    string
	SessionKey string
}

// MediaRef points at an inbound attachment the agent may fetch.
type MediaRef struct {
	Kind        string // image | file
	Key         string
	Name        string
	ContentType string
	Path        string // local spool path, when downloaded
}

// Envelope is the normalized message handed to the agent gateway.
type Envelope struct {
	AccountID      string     `json:"account_id"`
	Channel        string     `json:"channel"`
	Route          Route      `json:"route"`
	SenderLabel    string     `json:"sender_label"`
	SenderID       string     `json:"sender_id"`
	ChatID         string     `json:"chat_id"`
	ChatType       string     `json:"chat_type"`
	MessageID      string     `json:"message_id"`
	Body           string     `json:"body"`
	Media          []MediaRef `json:"media,omitempty"`
	ReceivedAt     time.Time  `json:"received_at"`
	PriorSessionAt time.Time  `json:"prior_session_at,omitzero"`
}

// RouteResolver maps an inbound message to its agent route.
type RouteResolver interface {
	Resolve(ctx context.Context, accountID, chatType, chatID, senderID string) (Route, error)
}

// SessionStore tracks per-route conversation recency.
type SessionStore interface {
	// LastUpdated returns the previous inbound timestamp for the route, or
	// the zero time when the route has no history.
	LastUpdated(ctx context.Context, sessionKey string) (time.Time, error)
	// RecordInbound stores the latest inbound timestamp for the route.
	RecordInbound(ctx context.Context, sessionKey string, at time.Time) error
}

// CommandClassifier recognizes control commands that must not reach the agent
// unauthorized.
type CommandClassifier interface {
	IsCommand(text string) bool
}
