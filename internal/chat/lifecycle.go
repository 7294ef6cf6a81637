package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNoProviders is returned when thread auto-creation is requested but no
// model provider is configured.
var ErrNoProviders = errors.New("no model providers configured")

// Manager owns the active thread's lifecycle: creation, selection,
// switching, and the "messages ready" gate that holds back the chat input
// and the streaming hook until the target thread's history is loaded.
type Manager struct {
	store     Store
	rec       *Reconciler
	log       *slog.Logger
	providers int

	mu        sync.Mutex
	userID    string
	active    string
	ready     bool
	switching bool
	fetched   map[string]struct{}
	messages  []Turn
}

func NewManager(store Store, rec *Reconciler, providersConfigured int, log *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("nil store")
	}
	if rec == nil {
		return nil, errors.New("nil reconciler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:     store,
		rec:       rec,
		log:       log,
		providers: providersConfigured,
		fetched:   make(map[string]struct{}),
	}, nil
}

// NextThreadID allocates the next sequential thread id for a user:
// max(existing numeric suffix)+1, defaulting to 1. The allocator tolerates
// gaps; deleted threads never get their numbers reused.
func NextThreadID(userID string, threads []Thread) string {
	userID = strings.TrimSpace(userID)
	max := 0
	for _, th := range threads {
		id := strings.TrimSpace(th.ThreadID)
		idx := strings.LastIndex(id, "-")
		if idx < 0 || idx == len(id)-1 {
			continue
		}
		n, err := strconv.Atoi(id[idx+1:])
		if err != nil || n <= 0 {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s-%d", userID, max+1)
}

// Active returns the current thread id and whether its messages are ready.
func (m *Manager) Active() (string, bool) {
	if m == nil {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.ready
}

// InputEnabled reports whether the chat-input surface may be used.
func (m *Manager) InputEnabled() bool {
	_, ready := m.Active()
	return ready
}

// Messages returns a copy of the active thread's loaded history.
func (m *Manager) Messages() []Turn {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Turn(nil), m.messages...)
}

// EnsureActive selects the user's most recent thread, creating one
// automatically when none exists and at least one provider is configured.
func (m *Manager) EnsureActive(ctx context.Context, userID string) (Thread, error) {
	if m == nil {
		return Thread{}, errors.New("nil manager")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Thread{}, errors.New("missing user id")
	}

	m.mu.Lock()
	m.userID = userID
	active := m.active
	m.mu.Unlock()

	threads, err := m.store.ListThreads(ctx, userID)
	if err != nil {
		return Thread{}, err
	}
	if active != "" {
		for _, th := range threads {
			if th.ThreadID == active {
				return th, nil
			}
		}
	}
	if len(threads) > 0 {
		if err := m.SwitchTo(ctx, threads[0].ThreadID); err != nil {
			return Thread{}, err
		}
		return threads[0], nil
	}

	if m.providers == 0 {
		return Thread{}, ErrNoProviders
	}
	return m.CreateThread(ctx, userID, "")
}

// CreateThread allocates the next sequential id, persists the thread and
// switches to it.
func (m *Manager) CreateThread(ctx context.Context, userID string, title string) (Thread, error) {
	if m == nil {
		return Thread{}, errors.New("nil manager")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Thread{}, errors.New("missing user id")
	}

	threads, err := m.store.ListThreads(ctx, userID)
	if err != nil {
		return Thread{}, err
	}
	now := time.Now().UnixMilli()
	th := Thread{
		ThreadID:        NextThreadID(userID, threads),
		UserID:          userID,
		Title:           strings.TrimSpace(title),
		CreatedAtUnixMs: now,
		UpdatedAtUnixMs: now,
	}
	if err := m.store.CreateThread(ctx, th); err != nil {
		return Thread{}, err
	}

	m.mu.Lock()
	m.userID = userID
	m.mu.Unlock()

	if err := m.SwitchTo(ctx, th.ThreadID); err != nil {
		return Thread{}, err
	}
	return th, nil
}

// SwitchTo changes the active thread. Order is load-bearing: mark not-ready,
// clear reconciler state, fetch the target's persisted messages, then mark
// ready. Reordering risks showing stale or cross-thread messages.
func (m *Manager) SwitchTo(ctx context.Context, threadID string) error {
	if m == nil {
		return errors.New("nil manager")
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return errors.New("missing thread id")
	}

	m.mu.Lock()
	m.switching = true
	m.ready = false
	m.active = threadID
	// Explicit switch invalidates the already-fetched marker so history is
	// always re-read for the target thread.
	delete(m.fetched, threadID)
	userID := m.userID
	m.mu.Unlock()

	m.rec.Reset(threadID, userID)

	msgs, err := m.store.ListMessages(ctx, threadID)
	if err != nil {
		m.mu.Lock()
		m.switching = false
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.active != threadID {
		// A newer switch raced us; drop this fetch.
		m.mu.Unlock()
		return nil
	}
	m.messages = msgs
	m.fetched[threadID] = struct{}{}
	m.ready = true
	m.switching = false
	m.mu.Unlock()

	m.log.Debug("thread ready", "thread_id", threadID, "messages", len(msgs))
	return nil
}

// RefreshMessages re-reads the active thread's history unless it was already
// fetched since the last switch. Used by re-render paths to avoid redundant
// store reads.
func (m *Manager) RefreshMessages(ctx context.Context) error {
	if m == nil {
		return errors.New("nil manager")
	}
	m.mu.Lock()
	threadID := m.active
	_, done := m.fetched[threadID]
	m.mu.Unlock()
	if threadID == "" || done {
		return nil
	}

	msgs, err := m.store.ListMessages(ctx, threadID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.active == threadID {
		m.messages = msgs
		m.fetched[threadID] = struct{}{}
	}
	m.mu.Unlock()
	return nil
}

// Observe forwards a transcript change event to the reconciler, gated on the
// messages-ready signal so no save can land before the switch completes.
func (m *Manager) Observe(ctx context.Context, turns []Turn, loading bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	ready := m.ready && !m.switching
	m.mu.Unlock()
	if !ready {
		return
	}
	m.rec.Observe(ctx, turns, loading)
}

// DeleteThread removes a thread and its messages. Deleting the active
// thread drops the ready state until another thread is selected.
func (m *Manager) DeleteThread(ctx context.Context, threadID string) error {
	if m == nil {
		return errors.New("nil manager")
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return errors.New("missing thread id")
	}
	if err := m.store.DeleteThread(ctx, threadID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.fetched, threadID)
	if m.active == threadID {
		m.active = ""
		m.ready = false
		m.messages = nil
	}
	m.mu.Unlock()
	return nil
}
