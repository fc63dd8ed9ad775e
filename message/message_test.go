package message

import (
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "Hello, world!")

	if msg.Role != RoleUser {
		t.Errorf("Expected role %s, got %s", RoleUser, msg.Role)
	}
	if msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got '%s'", msg.Content)
	}
	if msg.ID == "" {
		t.Error("Expected non-empty ID")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("Expected non-zero created time")
	}
	if other := NewMessage(RoleUser, "x"); other.ID == msg.ID {
		t.Error("Expected unique IDs")
	}
}

func TestClone(t *testing.T) {
	msg := User("question")
	msg.Metadata = map[string]any{"k": "v"}

	cloned := Clone(msg)
	cloned.Metadata["k"] = "changed"
	if msg.Metadata["k"] != "v" {
		t.Errorf("Clone shares metadata with original")
	}
	if Clone(nil) != nil {
		t.Errorf("Clone(nil) should be nil")
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]*Message{
		System("be brief"),
		User("hi"),
		System("cite sources"),
		nil,
		NewMessage(RoleAssistant, "hello"),
	})
	if system != "be brief\ncite sources" {
		t.Errorf("unexpected system text %q", system)
	}
	if len(rest) != 2 || rest[0].Role != RoleUser || rest[1].Role != RoleAssistant {
		t.Errorf("unexpected conversation %+v", rest)
	}
}
