// Package message holds the chat message shape shared by the LLM providers.
package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the role of the message sender
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single message in a conversation
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage creates a new message with the given role and content
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// System is shorthand for NewMessage(RoleSystem, content).
func System(content string) *Message { return NewMessage(RoleSystem, content) }

// User is shorthand for NewMessage(RoleUser, content).
func User(content string) *Message { return NewMessage(RoleUser, content) }

// Clone creates a deep copy of the message.
func Clone(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	cloned := *msg
	if msg.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return &cloned
}

// SplitSystem separates system instructions from the conversation. Multiple
// system messages are joined by a newline.
func SplitSystem(msgs []*Message) (string, []*Message) {
	var (
		system []string
		rest   = make([]*Message, 0, len(msgs))
	)
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n"), rest
}
