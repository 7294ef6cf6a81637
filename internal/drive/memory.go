package drive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCapability is an in-memory Capability implementation for local runs
// and tests. It mimics the provider's error strings so classification paths
// behave the same as against the real backend.
type MemoryCapability struct {
	mu      sync.Mutex
	files   map[string]*memoryFile
	folders map[string]string // folder id -> name
}

type memoryFile struct {
	file     File
	content  string
	folderID string
	shares   map[string]string // email -> role
}

func NewMemoryCapability() *MemoryCapability {
	return &MemoryCapability{
		files:   make(map[string]*memoryFile),
		folders: make(map[string]string),
	}
}

func (m *MemoryCapability) CreateFile(_ context.Context, name string, content string, _ string) (Created, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Created{}, errors.New("invalid file name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := "f_" + uuid.NewString()
	m.files[id] = &memoryFile{
		file: File{
			ID:         id,
			Name:       name,
			MimeType:   "text/plain",
			Link:       "memory://" + id,
			Size:       int64(len(content)),
			ModifiedAt: time.Now().UnixMilli(),
		},
		content: content,
		shares:  make(map[string]string),
	}
	return Created{ID: id, Link: "memory://" + id}, nil
}

func (m *MemoryCapability) CreateFolder(_ context.Context, name string, _ string) (Created, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Created{}, errors.New("invalid folder name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := "d_" + uuid.NewString()
	m.folders[id] = name
	return Created{ID: id, Link: "memory://" + id}, nil
}

func (m *MemoryCapability) ListFiles(_ context.Context, folderID string, pageSize int, _ string) (FileList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	folderID = strings.TrimSpace(folderID)
	out := FileList{Files: make([]File, 0, len(m.files))}
	for _, f := range m.files {
		if folderID != "" && f.folderID != folderID {
			continue
		}
		out.Files = append(out.Files, f.file)
	}
	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Name < out.Files[j].Name })
	if pageSize > 0 && len(out.Files) > pageSize {
		out.Files = out.Files[:pageSize]
	}
	return out, nil
}

func (m *MemoryCapability) SearchFiles(_ context.Context, query string, pageSize int, _ string) (FileList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := FileList{Files: make([]File, 0, 8)}
	for _, f := range m.files {
		if q == "" || strings.Contains(strings.ToLower(f.file.Name), q) || strings.Contains(strings.ToLower(f.content), q) {
			out.Files = append(out.Files, f.file)
		}
	}
	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Name < out.Files[j].Name })
	if pageSize > 0 && len(out.Files) > pageSize {
		out.Files = out.Files[:pageSize]
	}
	return out, nil
}

func (m *MemoryCapability) GetFile(_ context.Context, id string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[strings.TrimSpace(id)]
	if !ok {
		return File{}, fmt.Errorf("file not found: %s", strings.TrimSpace(id))
	}
	return f.file, nil
}

func (m *MemoryCapability) DeleteFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id = strings.TrimSpace(id)
	if _, ok := m.files[id]; ok {
		delete(m.files, id)
		return nil
	}
	if _, ok := m.folders[id]; ok {
		delete(m.folders, id)
		return nil
	}
	return fmt.Errorf("file not found: %s", id)
}

func (m *MemoryCapability) ShareFile(_ context.Context, id string, email string, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("file not found: %s", strings.TrimSpace(id))
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("invalid email")
	}
	f.shares[email] = strings.TrimSpace(role)
	return nil
}

func (m *MemoryCapability) ReadDocument(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[strings.TrimSpace(id)]
	if !ok {
		return "", fmt.Errorf("file not found: %s", strings.TrimSpace(id))
	}
	return f.content, nil
}

func (m *MemoryCapability) UpdateDocument(_ context.Context, id string, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("file not found: %s", strings.TrimSpace(id))
	}
	f.content = content
	f.file.Size = int64(len(content))
	f.file.ModifiedAt = time.Now().UnixMilli()
	return nil
}
