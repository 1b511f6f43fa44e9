package feishu

import (
	"bytes"
	"encoding/json"
)

// StreamCursor is the trailing glyph appended while a streamed reply is
// still being generated.
const StreamCursor = " ▍"

type cardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
	EnableForward  bool `json:"enable_forward"`
}

type cardElement struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type card struct {
	Config   cardConfig    `json:"config"`
	Elements []cardElement `json:"elements"`
}

// RenderCard renders markdown text into the interactive-card content payload.
// A non-empty mentionID prefixes the body with at-mention markup; streaming
// appends the cursor glyph. Deterministic for identical inputs.
func RenderCard(text, mentionID string, streaming bool) (string, error) {
	content := text
	if mentionID != "" {
		content = "<at id=" + mentionID + "></at> " + content
	}
	if streaming {
		content += StreamCursor
	}
	var payload bytes.Buffer
	encoder := json.NewEncoder(&payload)
	// Keep the at-mention markup literal in the payload instead of the
	// default < escapes.
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(card{
		Config:   cardConfig{WideScreenMode: true, EnableForward: true},
		Elements: []cardElement{{Tag: "markdown", Content: content}},
	}); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(payload.Bytes(), "\n")), nil
}
