package drive

import "context"

// File is the capability's view of one Drive file or folder.
type File struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type,omitempty"`
	Link       string `json:"link,omitempty"`
	Size       int64  `json:"size,omitempty"`
	ModifiedAt int64  `json:"modified_at_unix_ms,omitempty"`
}

// FileList is one page of list/search results.
type FileList struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

// Created is the result of creating a file or folder.
type Created struct {
	ID   string `json:"id"`
	Link string `json:"link,omitempty"`
}

// Capability is the external Drive collaborator. Implementations own
// transport, auth and pagination mechanics; errors they return are free-form
// provider strings that Classify pattern-matches.
type Capability interface {
	CreateFile(ctx context.Context, name string, content string, ownerID string) (Created, error)
	CreateFolder(ctx context.Context, name string, ownerID string) (Created, error)
	ListFiles(ctx context.Context, folderID string, pageSize int, pageToken string) (FileList, error)
	SearchFiles(ctx context.Context, query string, pageSize int, pageToken string) (FileList, error)
	GetFile(ctx context.Context, id string) (File, error)
	DeleteFile(ctx context.Context, id string) error
	ShareFile(ctx context.Context, id string, email string, role string) error
	ReadDocument(ctx context.Context, id string) (string, error)
	UpdateDocument(ctx context.Context, id string, content string) error
}

// TokenSource supplies a valid access token on demand, performing its own
// refresh. A missing or expired token surfaces as an authentication error.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token. Useful for tests and local runs.
type StaticTokenSource string

func (s StaticTokenSource) AccessToken(_ context.Context) (string, error) {
	return string(s), nil
}
