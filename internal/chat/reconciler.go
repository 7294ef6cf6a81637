package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultSettleDelay = 1000 * time.Millisecond

// Reconciler keeps a live, token-streamed transcript consistent with the
// append-only persisted message log. Per save candidate the state moves
// Growing -> Settled -> Saved; dedup is keyed on role+content because the
// upstream streaming transport reuses and regenerates message ids.
//
// All state belongs to exactly one thread's reconciliation session. Reset
// must be called on every thread boundary change.
type Reconciler struct {
	store       Store
	log         *slog.Logger
	settleDelay time.Duration

	mu       sync.Mutex
	threadID string
	userID   string
	saved    map[string]struct{}
	lastLen  int
	timer    *time.Timer
	tail     Turn
	// gen invalidates in-flight settle timers across thread switches. A
	// timer armed for generation N does nothing once the generation moved.
	gen uint64
}

func NewReconciler(store Store, settleDelay time.Duration, log *slog.Logger) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("nil store")
	}
	if settleDelay <= 0 {
		settleDelay = defaultSettleDelay
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:       store,
		log:         log,
		settleDelay: settleDelay,
		saved:       make(map[string]struct{}),
	}, nil
}

// Reset clears all dedup state and cancels any pending settle timer. It must
// run strictly before the new thread's messages are fetched.
func (r *Reconciler) Reset(threadID string, userID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.saved = make(map[string]struct{})
	r.lastLen = 0
	r.tail = Turn{}
	r.threadID = strings.TrimSpace(threadID)
	r.userID = strings.TrimSpace(userID)
}

// Observe processes one change event of the transcript tail.
//
// System-role and empty turns are ignored. User turns never stream, so they
// save immediately. Assistant turns are considered streaming while the
// loading flag is up or the content is still growing; a single-slot settle
// timer fires once the content stops changing.
func (r *Reconciler) Observe(ctx context.Context, turns []Turn, loading bool) {
	if r == nil || len(turns) == 0 {
		return
	}
	last := turns[len(turns)-1]
	if last.Role == RoleSystem || strings.TrimSpace(last.Content) == "" {
		return
	}
	if last.Role == RoleUser {
		r.save(ctx, last)
		return
	}

	r.mu.Lock()
	curLen := len(last.Content)
	streaming := loading || curLen > r.lastLen
	if streaming {
		r.lastLen = curLen
		r.tail = last
		if r.timer != nil {
			r.timer.Stop()
		}
		gen := r.gen
		r.timer = time.AfterFunc(r.settleDelay, func() { r.settle(gen) })
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.save(ctx, last)
}

// settle fires when the debounce window elapses without further growth. It
// re-reads the latest observed tail, so a stale scheduled save never writes
// an outdated prefix of the message.
func (r *Reconciler) settle(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	tail := r.tail
	r.timer = nil
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.save(ctx, tail)
}

// save issues at most one persistence write per logical message. The dedup
// entry is added before the write starts so re-entrant triggers skip; on
// write failure it is removed again to allow a retry on the next event.
// Persistence failures are logged, never surfaced into the chat.
func (r *Reconciler) save(ctx context.Context, t Turn) {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	threadID := r.threadID
	userID := r.userID
	if threadID == "" {
		r.mu.Unlock()
		return
	}
	// A turn tagged for another thread is a leftover from before a switch.
	if strings.TrimSpace(t.ThreadID) != "" && strings.TrimSpace(t.ThreadID) != threadID {
		r.mu.Unlock()
		return
	}
	key := string(t.Role) + "-" + t.Content
	if _, dup := r.saved[key]; dup {
		r.mu.Unlock()
		return
	}
	r.saved[key] = struct{}{}
	gen := r.gen
	r.mu.Unlock()

	t.ThreadID = threadID
	if strings.TrimSpace(t.UserID) == "" {
		t.UserID = userID
	}

	// Upload-then-submit can double-fire a user message with attachments;
	// an identical persisted entry with attachments means we're done.
	if t.Role == RoleUser && len(t.Attachments) > 0 {
		if r.persistedDuplicateExists(ctx, t) {
			return
		}
	}

	if _, err := r.store.SaveMessage(ctx, t); err != nil {
		r.mu.Lock()
		if r.gen == gen {
			delete(r.saved, key)
		}
		r.mu.Unlock()
		r.log.Warn("message save failed", "thread_id", threadID, "role", string(t.Role), "error", err)
	}
}

func (r *Reconciler) persistedDuplicateExists(ctx context.Context, t Turn) bool {
	persisted, err := r.store.ListMessages(ctx, t.ThreadID)
	if err != nil {
		return false
	}
	for _, p := range persisted {
		if p.Role == t.Role && p.Content == t.Content && len(p.Attachments) > 0 {
			return true
		}
	}
	return false
}
