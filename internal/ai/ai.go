package ai

import "context"

// Roles for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part is one piece of a turn: either text or inline image data.
type Part struct {
	Text     string
	Image    []byte
	MIMEType string
}

// TextPart creates a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart creates an inline image part.
func ImagePart(data []byte, mimeType string) Part {
	return Part{Image: data, MIMEType: mimeType}
}

// IsImage reports whether the part carries image data.
func (p Part) IsImage() bool {
	return len(p.Image) > 0
}

// Turn is one conversation turn with a role and ordered parts.
type Turn struct {
	Role  string
	Parts []Part
}

// UserTurn creates a user turn from the given parts.
func UserTurn(parts ...Part) Turn {
	return Turn{Role: RoleUser, Parts: parts}
}

// Usage contains token usage information for a completion call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Client is a completion service: given a system prompt and conversation
// turns it returns the model's raw text response.
type Client interface {
	Invoke(ctx context.Context, systemPrompt string, turns []Turn) (string, error)
}
