package chat

import (
	"time"

	"github.com/google/uuid"
)

// PlaceholderTitle names a conversation that has no messages yet.
const PlaceholderTitle = "Nouvelle conversation"

const titleRuneLimit = 30

// Conversation is an ordered, platform-scoped message thread. Messages are
// append-only: interior entries may be edited in place but never reordered
// or removed.
type Conversation struct {
	ID        uuid.UUID  `json:"id"`
	Platform  Platform   `json:"platform"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func NewConversation(platform Platform) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.New(),
		Platform:  platform,
		Title:     PlaceholderTitle,
		Messages:  []*Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message at the end of the transcript and refreshes
// UpdatedAt. The first user message also derives the title.
func (c *Conversation) Append(msg *Message) {
	if len(c.Messages) == 0 && msg.Role == RoleUser {
		c.Title = DeriveTitle(msg.Content)
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
}

// FindMessage returns the message with the given id and its index, or
// (nil, -1) when absent.
func (c *Conversation) FindMessage(id uuid.UUID) (*Message, int) {
	for i, m := range c.Messages {
		if m.ID == id {
			return m, i
		}
	}
	return nil, -1
}

// DeriveTitle shortens the first prompt into a sidebar label.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleRuneLimit {
		return content + "..."
	}
	return string(runes[:titleRuneLimit]) + "..."
}
