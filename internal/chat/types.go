package chat

import "context"

// Role is a chat turn's author role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment is a file carried by a user turn.
type Attachment struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Turn is one chat message as the reconciler sees it. Persisted turns are
// append-only: a save is always an insert, never an update.
type Turn struct {
	ID              string       `json:"id"`
	ThreadID        string       `json:"thread_id"`
	UserID          string       `json:"user_id"`
	Role            Role         `json:"role"`
	Content         string       `json:"content"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	CreatedAtUnixMs int64        `json:"created_at_unix_ms"`
}

// Thread is a persisted, user-scoped conversation container.
type Thread struct {
	ThreadID        string `json:"thread_id"`
	UserID          string `json:"user_id"`
	Title           string `json:"title"`
	LastMessage     string `json:"last_message,omitempty"`
	CreatedAtUnixMs int64  `json:"created_at_unix_ms"`
	UpdatedAtUnixMs int64  `json:"updated_at_unix_ms"`
	MessageCount    int    `json:"message_count"`
}

// Store is the message-persistence collaborator. SaveMessage must perform
// its own duplicate detection as a last line of defense: an identical
// (threadID, role, content) row is returned instead of inserted again.
type Store interface {
	SaveMessage(ctx context.Context, t Turn) (Turn, error)
	ListMessages(ctx context.Context, threadID string) ([]Turn, error)
	CreateThread(ctx context.Context, th Thread) error
	ListThreads(ctx context.Context, userID string) ([]Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	UpdateThreadTitle(ctx context.Context, threadID string, title string) error
}
