package transcript

import (
	"strings"
	"time"
)

// Role identifies which side of the roleplay produced a turn.
type Role string

const (
	// Canvasser is the trainee doing the persuading.
	Canvasser Role = "canvasser"
	// Voter is the counterpart played by the voice backend.
	Voter Role = "voter"
)

// Emotions maps a named channel to an intensity in [0,1]. A nil map means the
// backend reported nothing, which is not the same as every channel at zero.
type Emotions map[string]float64

// Message is one normalized transcript turn, independent of the backend that produced it.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Emotions  Emotions  `json:"emotions,omitempty"`
}

// Label returns the speaker label used when a transcript is rendered as text.
func (r Role) Label() string {
	switch r {
	case Canvasser:
		return "Canvasser"
	case Voter:
		return "Voter"
	default:
		return "Unknown"
	}
}

// HasRole reports whether any message in the slice was authored by role.
func HasRole(messages []Message, role Role) bool {
	for _, msg := range messages {
		if msg.Role == role {
			return true
		}
	}
	return false
}

// LastOfRole returns the most recent message authored by role.
func LastOfRole(messages []Message, role Role) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return messages[i], true
		}
	}
	return Message{}, false
}

// Format renders messages as "Speaker: text" lines for prompts and logs.
func Format(messages []Message) string {
	var builder strings.Builder
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(msg.Role.Label())
		builder.WriteString(": ")
		builder.WriteString(content)
	}
	return builder.String()
}

// Clone returns a copy that shares no maps with the original.
func (m Message) Clone() Message {
	if m.Emotions != nil {
		copied := make(Emotions, len(m.Emotions))
		for k, v := range m.Emotions {
			copied[k] = v
		}
		m.Emotions = copied
	}
	return m
}
