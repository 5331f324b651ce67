package convo

import (
	"context"
	"sync"
	"time"

	"askerp/internal/config"
	"askerp/internal/logging"
)

// History serves conversation reads from the hot buffer plus the durable
// record, and lands writes buffer-first with a debounced write-behind
// flush. At most one pending flush exists per session id; the flush fires
// a fixed delay after it was first scheduled and drains whatever the
// buffer holds at that moment.
type History struct {
	store      SessionStore
	buf        *Buffer
	flushDelay time.Duration
	log        *logging.Logger

	mu         sync.Mutex
	pending    map[string]*time.Timer
	flushLocks map[string]*sync.Mutex
}

func NewHistory(store SessionStore, cfg config.ConvoConfig, log *logging.Logger) *History {
	if log == nil {
		log = logging.Nop()
	}
	delay := cfg.FlushDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &History{
		store:      store,
		buf:        NewBuffer(cfg.BufferTTL),
		flushDelay: delay,
		log:        log.Component("convo"),
		pending:    make(map[string]*time.Timer),
		flushLocks: make(map[string]*sync.Mutex),
	}
}

// Load returns durable exchanges with currently-buffered ones appended,
// in order. Read-only apart from the lazy session creation.
func (h *History) Load(ctx context.Context, sessionID, companyID string) ([]Exchange, error) {
	sess, err := h.store.GetOrCreate(ctx, sessionID, companyID)
	if err != nil {
		return nil, err
	}
	out := sess.Exchanges
	for _, raw := range h.buf.Peek(sessionID) {
		e, err := unmarshalExchange(raw)
		if err != nil {
			h.log.Warn().Err(err).Str("session", sessionID).Msg("dropping unparseable buffered exchange")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Append buffers the user+assistant pair for one turn, touches the
// durable session's last activity, and schedules a write-behind flush.
func (h *History) Append(ctx context.Context, sessionID, companyID, userText, assistantText string) error {
	pair := NewPair(userText, assistantText)
	h.buf.Append(sessionID, marshalExchange(pair[0]), marshalExchange(pair[1]))

	if err := h.store.Touch(ctx, sessionID, companyID); err != nil {
		h.log.Warn().Err(err).Str("session", sessionID).Msg("session touch failed")
	}

	h.scheduleFlush(sessionID)
	return nil
}

// scheduleFlush debounces: while a flush is pending for this session no
// second one is created. Later appends ride the pending flush because the
// drain happens at fire time, not schedule time.
func (h *History) scheduleFlush(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.pending[sessionID]; ok {
		return
	}
	h.pending[sessionID] = time.AfterFunc(h.flushDelay, func() {
		h.mu.Lock()
		delete(h.pending, sessionID)
		h.mu.Unlock()

		// Detached from any request; an abandoned caller must not stop the
		// flush.
		if err := h.Flush(context.Background(), sessionID); err != nil {
			h.log.Error().Err(err).Str("session", sessionID).Msg("write-behind flush failed")
		}
	})
}

// flushLock returns the session's flush mutex, creating it on first use.
func (h *History) flushLock(sessionID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.flushLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		h.flushLocks[sessionID] = l
	}
	return l
}

// Flush drains the session's buffer all-or-nothing and appends the
// entries to the durable record in one update. An empty drain is a no-op.
// On a durable-store failure the drained entries go back to the buffer so
// a later flush can retry. Flushes for one session are serialized: a slow
// failing write followed by a restore must not let a newer flush commit
// later exchanges ahead of the restored ones.
func (h *History) Flush(ctx context.Context, sessionID string) error {
	l := h.flushLock(sessionID)
	l.Lock()
	defer l.Unlock()

	drained := h.buf.DrainAll(sessionID)
	if len(drained) == 0 {
		return nil
	}

	exchanges := make([]Exchange, 0, len(drained))
	for _, raw := range drained {
		e, err := unmarshalExchange(raw)
		if err != nil {
			h.log.Warn().Err(err).Str("session", sessionID).Msg("dropping unparseable buffered exchange during flush")
			continue
		}
		exchanges = append(exchanges, e)
	}
	if len(exchanges) == 0 {
		return nil
	}

	if err := h.store.AppendExchanges(ctx, sessionID, exchanges); err != nil {
		h.buf.Restore(sessionID, drained)
		return err
	}
	h.log.Debug().Str("session", sessionID).Int("count", len(exchanges)).Msg("flushed exchanges to durable store")
	return nil
}

// PendingFlushes reports how many sessions currently have a scheduled
// flush.
func (h *History) PendingFlushes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// BufferedLen reports how many serialized exchanges a session buffers.
func (h *History) BufferedLen(sessionID string) int {
	return h.buf.Len(sessionID)
}

// Shutdown cancels pending timers and drains every buffered session
// synchronously, bounding crash loss to the in-flight window.
func (h *History) Shutdown(ctx context.Context) {
	h.mu.Lock()
	for id, t := range h.pending {
		t.Stop()
		delete(h.pending, id)
	}
	h.mu.Unlock()

	for _, id := range h.buf.Keys() {
		if err := h.Flush(ctx, id); err != nil {
			h.log.Error().Err(err).Str("session", id).Msg("shutdown flush failed")
		}
	}
}
