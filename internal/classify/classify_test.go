package classify

import (
	"testing"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

func stringPtr(s string) *string { return &s }

func newEvent(msgType, content, chatType, chatID string, sender *larkim.UserId, mentions []*larkim.MentionEvent) *larkim.P2MessageReceiveV1 {
	messageID := "om_test"
	createTime := "1718000000000"
	return &larkim.P2MessageReceiveV1{
		Event: &larkim.P2MessageReceiveV1Data{
			Message: &larkim.EventMessage{
				MessageId:   &messageID,
				MessageType: &msgType,
				Content:     &content,
				ChatType:    &chatType,
				ChatId:      &chatID,
				CreateTime:  &createTime,
				Mentions:    mentions,
			},
			Sender: &larkim.EventSender{SenderId: sender},
		},
	}
}

func TestClassifyTextP2P(t *testing.T) {
	t.Parallel()

	event := newEvent(larkim.MsgTypeText, `{"text":"hello there"}`, "p2p", "oc_1",
		&larkim.UserId{OpenId: stringPtr("ou_1"), UserId: stringPtr("u_1")}, nil)
	msg, ok := Classify(event)
	if !ok {
		t.Fatal("expected classified message")
	}
	if msg.Kind != KindText || msg.Text != "hello there" {
		t.Fatalf("unexpected kind/text: %s %q", msg.Kind, msg.Text)
	}
	if msg.SenderID != "ou_1" || msg.SenderIDType != "open_id" {
		t.Fatalf("sender preference broken: %s %s", msg.SenderID, msg.SenderIDType)
	}
	if msg.ReplyTarget != "open_id:ou_1" {
		t.Fatalf("unexpected reply target: %s", msg.ReplyTarget)
	}
	if msg.IsGroup() {
		t.Fatal("p2p chat reported as group")
	}
	if msg.CreateTime.IsZero() {
		t.Fatal("create time not parsed")
	}
}

func TestClassifySenderPreference(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		sender   *larkim.UserId
		wantID   string
		wantType string
	}{
		{"open id wins", &larkim.UserId{OpenId: stringPtr("ou_1"), UserId: stringPtr("u_1"), UnionId: stringPtr("on_1")}, "ou_1", "open_id"},
		{"user id next", &larkim.UserId{UserId: stringPtr("u_1"), UnionId: stringPtr("on_1")}, "u_1", "user_id"},
		{"union id last", &larkim.UserId{UnionId: stringPtr("on_1")}, "on_1", "union_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := newEvent(larkim.MsgTypeText, `{"text":"x"}`, "p2p", "oc_1", tc.sender, nil)
			msg, ok := Classify(event)
			if !ok {
				t.Fatal("expected classified message")
			}
			if msg.SenderID != tc.wantID || msg.SenderIDType != tc.wantType {
				t.Fatalf("got %s/%s, want %s/%s", msg.SenderID, msg.SenderIDType, tc.wantID, tc.wantType)
			}
		})
	}
}

func TestClassifyDropsWithoutSender(t *testing.T) {
	t.Parallel()

	event := newEvent(larkim.MsgTypeText, `{"text":"x"}`, "p2p", "oc_1", nil, nil)
	if _, ok := Classify(event); ok {
		t.Fatal("event without sender id should be dropped")
	}
	if _, ok := Classify(nil); ok {
		t.Fatal("nil event should be dropped")
	}
}

func TestClassifyGroupReplyTarget(t *testing.T) {
	t.Parallel()

	event := newEvent(larkim.MsgTypeText, `{"text":"x"}`, "group", "oc_42",
		&larkim.UserId{OpenId: stringPtr("ou_1")}, nil)
	msg, ok := Classify(event)
	if !ok {
		t.Fatal("expected classified message")
	}
	if !msg.IsGroup() {
		t.Fatal("group chat not detected")
	}
	if msg.ReplyTarget != "chat_id:oc_42" {
		t.Fatalf("unexpected reply target: %s", msg.ReplyTarget)
	}
}

func TestClassifyImage(t *testing.T) {
	t.Parallel()

	event := newEvent(larkim.MsgTypeImage, `{"image_key":"img_v2_abc"}`, "p2p", "oc_1",
		&larkim.UserId{OpenId: stringPtr("ou_1")}, nil)
	msg, _ := Classify(event)
	if msg.Kind != KindImage || msg.Text != "[Image]" {
		t.Fatalf("unexpected kind/text: %s %q", msg.Kind, msg.Text)
	}
	if len(msg.ImageKeys) != 1 || msg.ImageKeys[0] != "img_v2_abc" {
		t.Fatalf("unexpected image keys: %v", msg.ImageKeys)
	}
}

func TestClassifyFile(t *testing.T) {
	t.Parallel()

	event := newEvent(larkim.MsgTypeFile, `{"file_key":"file_v3_x","file_name":"report.pdf"}`, "p2p", "oc_1",
		&larkim.UserId{OpenId: stringPtr("ou_1")}, nil)
	msg, _ := Classify(event)
	if msg.Kind != KindFile || msg.Text != "[File: report.pdf]" {
		t.Fatalf("unexpected kind/text: %s %q", msg.Kind, msg.Text)
	}
	if msg.FileKey != "file_v3_x" || msg.FileName != "report.pdf" {
		t.Fatalf("unexpected file ref: %s %s", msg.FileKey, msg.FileName)
	}

	anonymous := newEvent(larkim.MsgTypeFile, `{"file_key":"file_v3_y"}`, "p2p", "oc_1",
		&larkim.UserId{OpenId: stringPtr("ou_1")}, nil)
	msg, _ = Classify(anonymous)
	if msg.Text != "[File]" {
		t.Fatalf("nameless file placeholder wrong: %q", msg.Text)
	}
}

func TestClassifyPost(t *testing.T) {
	t.Parallel()

	content := `{
		"title": "Weekly notes",
		"content": [
			[{"tag":"text","text":"first line"},{"tag":"at","user_name":"Robin"}],
			[{"tag":"img","image_key":"img_1"}],
			[{"tag":"a","text":"see link","href":"https://example.com"}],
			[{"tag":"media","file_key":"file_1"}]
		]
	}`
	event := newEvent(larkim.MsgTypePost, content, "group", "oc_9",
		&larkim.UserId{OpenId: stringPtr("ou_1")}, nil)
	msg, _ := Classify(event)
	if msg.Kind != KindPost {
		t.Fatalf("unexpected kind: %s", msg.Kind)
	}
	if msg.Text != "first line @Robin see link" {
		t.Fatalf("unexpected post text: %q", msg.Text)
	}
	if len(msg.ImageKeys) != 1 || msg.ImageKeys[0] != "img_1" {
		t.Fatalf("post image keys: %v", msg.ImageKeys)
	}
	if msg.FileKey != "file_1" {
		t.Fatalf("post media key: %s", msg.FileKey)
	}
}

func TestClassifyPostTitleFallback(t *testing.T) {
	t.Parallel()

	event := newEvent(larkim.MsgTypePost, `{"title":"Just a title","content":[]}`, "p2p", "oc_1",
		&larkim.UserId{OpenId: stringPtr("ou_1")}, nil)
	msg, _ := Classify(event)
	if msg.Text != "Just a title" {
		t.Fatalf("title fallback broken: %q", msg.Text)
	}
}

func TestClassifyParseFailureDegrades(t *testing.T) {
	t.Parallel()

	event := newEvent(larkim.MsgTypeText, `{broken json`, "p2p", "oc_1",
		&larkim.UserId{OpenId: stringPtr("ou_1")}, nil)
	msg, ok := Classify(event)
	if !ok {
		t.Fatal("parse failure must not drop the event")
	}
	if msg.Text != "" {
		t.Fatalf("expected empty text, got %q", msg.Text)
	}
	if !msg.Empty() {
		t.Fatal("message with no text or media should be empty")
	}
}

func TestClassifyMentions(t *testing.T) {
	t.Parallel()

	mentions := []*larkim.MentionEvent{
		{
			Key:  stringPtr("@_user_1"),
			Name: stringPtr("HelperBot"),
			Id:   &larkim.UserId{OpenId: stringPtr("ou_bot")},
		},
		{Key: stringPtr("all"), Name: stringPtr("All")},
	}
	event := newEvent(larkim.MsgTypeText, `{"text":"@_user_1 hi"}`, "group", "oc_1",
		&larkim.UserId{OpenId: stringPtr("ou_1")}, mentions)
	msg, _ := Classify(event)
	if len(msg.Mentions) != 2 {
		t.Fatalf("mentions = %d, want 2", len(msg.Mentions))
	}
	if msg.Mentions[0].OpenID != "ou_bot" || msg.Mentions[0].Name != "HelperBot" {
		t.Fatalf("unexpected mention: %+v", msg.Mentions[0])
	}
	if !msg.MentionedAll {
		t.Fatal("@all not detected")
	}
}
