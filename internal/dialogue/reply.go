package dialogue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModelUnavailable is returned when neither the session model nor the
	// fallback model produced a reply.
	ErrModelUnavailable = errors.New("dialogue: model unavailable")
	// ErrMalformedReply marks a reply that was not the expected JSON object.
	// Replies carrying it are still usable as raw-text passthrough.
	ErrMalformedReply = errors.New("dialogue: malformed reply")
)

// Invocation is a structured tool request emitted by the model.
type Invocation struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Arg returns a trimmed string argument, or "" when absent or not a string.
func (i Invocation) Arg(name string) string {
	if i.Args == nil {
		return ""
	}
	switch v := i.Args[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

// ReplyKind discriminates the two reply shapes.
type ReplyKind int

const (
	KindDirect ReplyKind = iota
	KindToolCall
)

func (k ReplyKind) String() string {
	if k == KindToolCall {
		return "tool_call"
	}
	return "direct"
}

// Reply is exactly one of a direct reply (DisplayText/SpeechText) or a tool
// call (Invocation), selected by Kind.
type Reply struct {
	Kind        ReplyKind
	DisplayText string
	SpeechText  string
	// Degraded is set when the body was not valid JSON and was passed through raw.
	Degraded   bool
	Invocation Invocation
}

// Direct builds a direct reply.
func Direct(display, speech string) Reply {
	return Reply{Kind: KindDirect, DisplayText: display, SpeechText: speech}
}

// ToolCall builds a tool-call reply.
func ToolCall(inv Invocation) Reply {
	return Reply{Kind: KindToolCall, Invocation: inv}
}

// IsToolCall reports whether the model asked for a tool.
func (r Reply) IsToolCall() bool { return r.Kind == KindToolCall }

type replyPayload struct {
	Text   string `json:"text"`
	Speech string `json:"speech"`
}

// ParseReply turns a provider response into a Reply. A function call always
// wins over any text body. A body that is not a {text, speech} object comes
// back as a degraded direct reply alongside ErrMalformedReply; the reply is
// usable either way.
func ParseReply(resp ProviderResponse) (Reply, error) {
	if len(resp.Calls) > 0 {
		return ToolCall(resp.Calls[0]), nil
	}

	raw := stripCodeFence(resp.Text)
	var payload replyPayload
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return degraded(raw), fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	payload.Text = strings.TrimSpace(payload.Text)
	payload.Speech = strings.TrimSpace(payload.Speech)
	if payload.Text == "" && payload.Speech == "" {
		return degraded(raw), fmt.Errorf("%w: missing text and speech", ErrMalformedReply)
	}
	if payload.Text == "" {
		payload.Text = payload.Speech
	}
	if payload.Speech == "" {
		payload.Speech = payload.Text
	}
	return Direct(payload.Text, payload.Speech), nil
}

func degraded(raw string) Reply {
	r := Direct(raw, raw)
	r.Degraded = true
	return r
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// StripCodeFence removes a surrounding markdown fence.
func StripCodeFence(text string) string { return stripCodeFence(text) }

func extractJSONObject(text string) string {
	if strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// ExtractJSONObject returns the outermost {...} span of text, or text itself.
func ExtractJSONObject(text string) string { return extractJSONObject(text) }
