package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/taomfnbd/chamalloW/pkg/attachments"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation transcript. Assistant messages
// move through generated -> (edited) -> locked; user messages never change
// after creation.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// IsEditable stays true until the message is validated. Validation is a
	// terminal transition, never reversed.
	IsEditable bool `json:"isEditable,omitempty"`
	// EditedContent tracks the latest user-supplied replacement separately
	// from Content so the original generated text stays traceable.
	EditedContent string `json:"editedContent,omitempty"`
	// Score is the quality indicator (0-100) attached by the generation
	// service to assistant messages.
	Score int `json:"score,omitempty"`

	Attachments []*attachments.Attachment `json:"attachments,omitempty"`
}

type MessageOption func(*Message)

func WithID(id uuid.UUID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Timestamp = t
	}
}

func WithScore(score int) MessageOption {
	return func(m *Message) {
		m.Score = score
	}
}

func WithEditable(editable bool) MessageOption {
	return func(m *Message) {
		m.IsEditable = editable
	}
}

func WithAttachments(atts ...*attachments.Attachment) MessageOption {
	return func(m *Message) {
		m.Attachments = append(m.Attachments, atts...)
	}
}

func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Edit replaces the displayable content, keeping the edited text in both
// Content and EditedContent.
func (m *Message) Edit(newContent string) {
	m.Content = newContent
	m.EditedContent = newContent
}

// Validate locks the message from further inline editing. Idempotent.
func (m *Message) Validate() {
	m.IsEditable = false
}
