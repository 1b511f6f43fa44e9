package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SendMessage creates a new message addressed to receiveID and returns the
// platform message id.
func (c *Client) SendMessage(ctx context.Context, receiveID, receiveIDType, msgType, content string) (string, error) {
	query := url.Values{"receive_id_type": {receiveIDType}}
	body := map[string]string{
		"receive_id": receiveID,
		"msg_type":   msgType,
		"content":    content,
		"uuid":       uuid.NewString(),
	}
	var data struct {
		MessageID string `json:"message_id"`
	}
	if err := c.call(ctx, "send_message", http.MethodPost, "/open-apis/im/v1/messages", query, body, &data); err != nil {
		return "", err
	}
	return strings.TrimSpace(data.MessageID), nil
}

// ReplyMessage creates a reply to messageID. The recipient is implied by the
// target message, producing a visible quote in the conversation.
func (c *Client) ReplyMessage(ctx context.Context, messageID, msgType, content string) (string, error) {
	body := map[string]string{
		"msg_type": msgType,
		"content":  content,
		"uuid":     uuid.NewString(),
	}
	path := "/open-apis/im/v1/messages/" + url.PathEscape(messageID) + "/reply"
	var data struct {
		MessageID string `json:"message_id"`
	}
	if err := c.call(ctx, "reply_message", http.MethodPost, path, nil, body, &data); err != nil {
		return "", err
	}
	return strings.TrimSpace(data.MessageID), nil
}

// UpdateCard patches the content of an interactive card the bot itself sent.
func (c *Client) UpdateCard(ctx context.Context, messageID, content string) error {
	body := map[string]string{"content": content}
	path := "/open-apis/im/v1/messages/" + url.PathEscape(messageID)
	return c.call(ctx, "update_card", http.MethodPatch, path, nil, body, nil)
}

// MessageDetail is the subset of a fetched message the adapter cares about.
type MessageDetail struct {
	MessageID  string `json:"message_id"`
	MsgType    string `json:"msg_type"`
	ChatID     string `json:"chat_id"`
	Content    string `json:"-"`
	CreateTime string `json:"create_time"`
}

// GetMessage fetches a message by id.
func (c *Client) GetMessage(ctx context.Context, messageID string) (MessageDetail, error) {
	path := "/open-apis/im/v1/messages/" + url.PathEscape(messageID)
	var data struct {
		Items []struct {
			MessageID  string `json:"message_id"`
			MsgType    string `json:"msg_type"`
			ChatID     string `json:"chat_id"`
			CreateTime string `json:"create_time"`
			Body       struct {
				Content string `json:"content"`
			} `json:"body"`
		} `json:"items"`
	}
	if err := c.call(ctx, "get_message", http.MethodGet, path, nil, nil, &data); err != nil {
		return MessageDetail{}, err
	}
	if len(data.Items) == 0 {
		return MessageDetail{}, &APIError{Op: "get_message", Msg: "empty items"}
	}
	item := data.Items[0]
	return MessageDetail{
		MessageID:  item.MessageID,
		MsgType:    item.MsgType,
		ChatID:     item.ChatID,
		Content:    item.Body.Content,
		CreateTime: item.CreateTime,
	}, nil
}

// BotInfo is the bot's own platform identity.
type BotInfo struct {
	OpenID    string `json:"open_id"`
	AppName   string `json:"app_name"`
	AvatarURL string `json:"avatar_url"`
}

// GetBotInfo looks up the bot's own identity. The endpoint returns the bot
// object at the top level instead of the usual data envelope.
func (c *Client) GetBotInfo(ctx context.Context) (BotInfo, error) {
	raw, _, err := c.download(ctx, "bot_info", "/open-apis/bot/v3/info", nil)
	if err != nil {
		return BotInfo{}, err
	}
	var parsed struct {
		Code int     `json:"code"`
		Msg  string  `json:"msg"`
		Bot  BotInfo `json:"bot"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return BotInfo{}, fmt.Errorf("bot_info: decode response: %w", err)
	}
	if parsed.Code != 0 {
		return BotInfo{}, &APIError{Op: "bot_info", Code: parsed.Code, Msg: parsed.Msg}
	}
	if strings.TrimSpace(parsed.Bot.OpenID) == "" {
		return BotInfo{}, &APIError{Op: "bot_info", Msg: "empty open_id"}
	}
	return parsed.Bot, nil
}

// ParseCreateTime converts the platform's millisecond epoch string to a
// time.Time, returning the zero value when unparseable.
func ParseCreateTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	var ms int64
	if _, err := fmt.Sscanf(raw, "%d", &ms); err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
