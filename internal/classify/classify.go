// Package classify turns raw Feishu message-receive events into the adapter's
// normalized inbound representation.
package classify

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/ie2718/clawdbot-feishu/internal/feishu"
)

// Kind is the normalized message kind.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
	KindPost  Kind = "post"
	KindAudio Kind = "audio"
	KindMedia Kind = "media"
	KindOther Kind = "other"
)

// Mention is one structured mention carried by the event.
type Mention struct {
	Key    string
	OpenID string
	Name   string
}

// InboundMessage is a classified inbound event. SenderID carries exactly one
// identifier, the most specific one the platform provided.
type InboundMessage struct {
	MessageID    string
	ParentID     string
	ChatID       string
	ChatType     string
	SenderID     string
	SenderIDType string
	Kind         Kind
	Text         string
	ImageKeys    []string
	FileKey      string
	FileName     string
	Mentions     []Mention
	MentionedAll bool
	CreateTime   time.Time
	// ReplyTarget is where replies go: chat_id:<id> in groups, the sender id
	// with its addressing type in direct chats.
	ReplyTarget string
}

// IsGroup reports whether the message arrived in a group chat.
func (m InboundMessage) IsGroup() bool { return m.ChatType != "" && m.ChatType != "p2p" }

// Empty reports whether the message carries neither text nor media.
func (m InboundMessage) Empty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.ImageKeys) == 0 && m.FileKey == ""
}

// Classify converts a message-receive event. It returns ok=false when the
// event is structurally unusable (no message, no sender id); content parse
// failures degrade the affected field instead of failing the event.
func Classify(event *larkim.P2MessageReceiveV1) (InboundMessage, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		slog.Debug("classify: event without message, dropped")
		return InboundMessage{}, false
	}
	message := event.Event.Message

	msg := InboundMessage{Kind: KindOther}
	msg.MessageID = deref(message.MessageId)
	msg.ParentID = deref(message.ParentId)
	msg.ChatID = strings.TrimSpace(deref(message.ChatId))
	msg.ChatType = strings.TrimSpace(deref(message.ChatType))
	msg.CreateTime = feishu.ParseCreateTime(deref(message.CreateTime))

	msg.SenderID, msg.SenderIDType = senderIdentity(event.Event.Sender)
	if msg.SenderID == "" {
		slog.Debug("classify: event without sender id, dropped",
			slog.String("message_id", msg.MessageID))
		return InboundMessage{}, false
	}

	var content map[string]any
	if raw := deref(message.Content); raw != "" {
		if err := json.Unmarshal([]byte(raw), &content); err != nil {
			slog.Warn("classify: unmarshal content failed",
				slog.String("message_id", msg.MessageID),
				slog.Any("error", err))
		}
	}

	for _, mention := range message.Mentions {
		if mention == nil {
			continue
		}
		entry := Mention{
			Key:  strings.TrimSpace(deref(mention.Key)),
			Name: strings.TrimSpace(deref(mention.Name)),
		}
		if mention.Id != nil {
			entry.OpenID = strings.TrimSpace(deref(mention.Id.OpenId))
		}
		if entry.Key == "all" || strings.EqualFold(entry.Name, "all") {
			msg.MentionedAll = true
		}
		msg.Mentions = append(msg.Mentions, entry)
	}

	switch deref(message.MessageType) {
	case larkim.MsgTypeText:
		msg.Kind = KindText
		if text, ok := content["text"].(string); ok {
			msg.Text = text
		}
	case larkim.MsgTypeImage:
		msg.Kind = KindImage
		if key, ok := content["image_key"].(string); ok && strings.TrimSpace(key) != "" {
			msg.ImageKeys = append(msg.ImageKeys, strings.TrimSpace(key))
		}
		msg.Text = "[Image]"
	case larkim.MsgTypeFile:
		msg.Kind = KindFile
		classifyFile(&msg, content)
	case larkim.MsgTypeAudio:
		msg.Kind = KindAudio
		classifyFile(&msg, content)
	case larkim.MsgTypeMedia:
		msg.Kind = KindMedia
		classifyFile(&msg, content)
	case larkim.MsgTypePost:
		msg.Kind = KindPost
		classifyPost(&msg, content)
	}

	if msg.IsGroup() && msg.ChatID != "" {
		msg.ReplyTarget = "chat_id:" + msg.ChatID
	} else {
		msg.ReplyTarget = msg.SenderIDType + ":" + msg.SenderID
	}
	return msg, true
}

// senderIdentity picks the most specific sender identifier available.
func senderIdentity(sender *larkim.EventSender) (string, string) {
	if sender == nil || sender.SenderId == nil {
		return "", ""
	}
	id := sender.SenderId
	if v := strings.TrimSpace(deref(id.OpenId)); v != "" {
		return v, "open_id"
	}
	if v := strings.TrimSpace(deref(id.UserId)); v != "" {
		return v, "user_id"
	}
	if v := strings.TrimSpace(deref(id.UnionId)); v != "" {
		return v, "union_id"
	}
	return "", ""
}

func classifyFile(msg *InboundMessage, content map[string]any) {
	if key, ok := content["file_key"].(string); ok && strings.TrimSpace(key) != "" {
		msg.FileKey = strings.TrimSpace(key)
	}
	if name, ok := content["file_name"].(string); ok {
		msg.FileName = strings.TrimSpace(name)
	}
	if msg.FileName != "" {
		msg.Text = "[File: " + msg.FileName + "]"
	} else {
		msg.Text = "[File]"
	}
}

// classifyPost walks a rich-text post: text and link runs concatenate, at tags
// render as @name, img and media keys are collected. The post title is the
// text fallback when the body yields nothing.
func classifyPost(msg *InboundMessage, content map[string]any) {
	lines, _ := content["content"].([]any)
	parts := make([]string, 0, 8)
	for _, rawLine := range lines {
		line, ok := rawLine.([]any)
		if !ok {
			continue
		}
		for _, rawElem := range line {
			elem, ok := rawElem.(map[string]any)
			if !ok {
				continue
			}
			tag, _ := elem["tag"].(string)
			switch strings.ToLower(strings.TrimSpace(tag)) {
			case "text", "a":
				if text := strings.TrimSpace(stringValue(elem["text"])); text != "" {
					parts = append(parts, text)
				}
			case "at":
				name := strings.TrimSpace(stringValue(elem["text"]))
				if name == "" {
					name = strings.TrimSpace(stringValue(elem["user_name"]))
				}
				if name == "" {
					parts = append(parts, "@")
					continue
				}
				if !strings.HasPrefix(name, "@") {
					name = "@" + name
				}
				parts = append(parts, name)
			case "img":
				if key, ok := elem["image_key"].(string); ok && strings.TrimSpace(key) != "" {
					msg.ImageKeys = append(msg.ImageKeys, strings.TrimSpace(key))
				}
			case "media":
				if key, ok := elem["file_key"].(string); ok && strings.TrimSpace(key) != "" && msg.FileKey == "" {
					msg.FileKey = strings.TrimSpace(key)
				}
			default:
				if text := strings.TrimSpace(stringValue(elem["text"])); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}
	msg.Text = strings.Join(parts, " ")
	if msg.Text == "" {
		if title, ok := content["title"].(string); ok {
			msg.Text = strings.TrimSpace(title)
		}
	}
}

func stringValue(raw any) string {
	if value, ok := raw.(string); ok {
		return value
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
