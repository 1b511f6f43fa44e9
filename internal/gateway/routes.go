package gateway

import (
	"context"
	"strings"
)

// StaticResolver routes every conversation to a single agent. The session key
// scopes history per account and per conversation: groups share one session
// per chat, direct chats get one per sender.
type StaticResolver struct {
	AgentID string
}

func (r StaticResolver) Resolve(ctx context.Context, accountID, chatType, chatID, senderID string) (Route, error) {
	agent := strings.TrimSpace(r.AgentID)
	if agent == "" {
		agent = "default"
	}
	scope := senderID
	if chatType != "" && chatType != "p2p" && chatID != "" {
		scope = chatID
	}
	return Route{
		AgentID:    agent,
		SessionKey: accountID + ":" + chatType + ":" + scope,
	}, nil
}
