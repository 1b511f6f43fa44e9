package feishu

import (
	"fmt"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// channelAliases are the channel prefixes accepted (and stripped) before a
// target id is interpreted, compared case-insensitively.
var channelAliases = []string{"feishu", "lark", "larksuite"}

// ResolveTarget parses a delivery target string into a receive id and its
// addressing type. An explicit "open_id:" / "user_id:" / "union_id:" /
// "chat_id:" / "email:" prefix wins; otherwise the id shape decides:
// oc_ means chat id, ou_ open id, on_ union id, an @ means email, a purely
// alphanumeric id means user id, and anything else defaults to open id.
func ResolveTarget(raw string) (string, string, error) {
	value := StripChannelPrefix(raw)
	if value == "" {
		return "", "", fmt.Errorf("feishu target is required")
	}
	for prefix, idType := range map[string]string{
		"open_id:":  larkim.ReceiveIdTypeOpenId,
		"user_id:":  larkim.ReceiveIdTypeUserId,
		"union_id:": larkim.ReceiveIdTypeUnionId,
		"chat_id:":  larkim.ReceiveIdTypeChatId,
		"email:":    larkim.ReceiveIdTypeEmail,
	} {
		if strings.HasPrefix(value, prefix) {
			id := strings.TrimSpace(strings.TrimPrefix(value, prefix))
			if id == "" {
				return "", "", fmt.Errorf("feishu target id is empty")
			}
			return id, idType, nil
		}
	}
	switch {
	case strings.HasPrefix(value, "oc_"):
		return value, larkim.ReceiveIdTypeChatId, nil
	case strings.HasPrefix(value, "ou_"):
		return value, larkim.ReceiveIdTypeOpenId, nil
	case strings.HasPrefix(value, "on_"):
		return value, larkim.ReceiveIdTypeUnionId, nil
	case strings.Contains(value, "@"):
		return value, larkim.ReceiveIdTypeEmail, nil
	case isAlphanumeric(value):
		return value, larkim.ReceiveIdTypeUserId, nil
	default:
		return value, larkim.ReceiveIdTypeOpenId, nil
	}
}

// StripChannelPrefix removes an optional case-insensitive channel alias
// prefix ("feishu:", "lark:", "larksuite:") from a target or sender id.
func StripChannelPrefix(raw string) string {
	value := strings.TrimSpace(raw)
	for _, alias := range channelAliases {
		if len(value) >= len(alias)+1 && strings.EqualFold(value[:len(alias)], alias) && value[len(alias)] == ':' {
			return strings.TrimSpace(value[len(alias)+1:])
		}
	}
	return value
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return len(s) > 0
}
