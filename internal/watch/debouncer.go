package watch

import (
	"context"
	"sync"
	"time"

	docerrors "git.home.luguber.info/inful/docscope/internal/errors"
)

// Request is one change notification entering the debouncer.
type Request struct {
	// Key is the cache key to invalidate before the rebuild; empty for
	// requests that force a full rebuild (manifest change, periodic timer).
	Key         string
	Full        bool
	Reason      string
	RequestedAt time.Time
}

// Batch is the coalesced set of requests handed to the build callback.
type Batch struct {
	Keys  []string
	Full  bool
	Count int
	// Cause is quiet or max_delay, for logging.
	Cause        string
	FirstRequest time.Time
	LastRequest  time.Time
}

// DebouncerConfig bounds how long change bursts may be coalesced.
type DebouncerConfig struct {
	// QuietWindow is the silence required before a batch fires.
	QuietWindow time.Duration
	// MaxDelay caps postponement: a batch fires at most this long after its
	// first request, no matter how busy the burst is.
	MaxDelay time.Duration
}

// Debouncer coalesces bursts of change requests into single build batches:
// quiet-window debounce with a max-delay bound, and because the fire callback
// runs synchronously in the loop, requests arriving during a build naturally
// collapse into exactly one follow-up batch.
type Debouncer struct {
	cfg DebouncerConfig

	mu           sync.Mutex
	pending      bool
	full         bool
	keys         map[string]struct{}
	firstRequest time.Time
	lastRequest  time.Time
	count        int
}

// NewDebouncer validates the config and creates a debouncer.
func NewDebouncer(cfg DebouncerConfig) (*Debouncer, error) {
	if cfg.QuietWindow <= 0 {
		return nil, docerrors.ValidationFailed("quiet_window", "must be > 0")
	}
	if cfg.MaxDelay <= 0 {
		return nil, docerrors.ValidationFailed("max_delay", "must be > 0")
	}
	return &Debouncer{cfg: cfg, keys: make(map[string]struct{})}, nil
}

// Run consumes requests until ctx is canceled, invoking fire once per batch.
func (d *Debouncer) Run(ctx context.Context, requests <-chan Request, fire func(context.Context, Batch)) error {
	quietTimer := newStoppedTimer()
	maxTimer := newStoppedTimer()
	var quietC, maxC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			first := d.admit(req)
			resetTimer(quietTimer, d.cfg.QuietWindow)
			quietC = quietTimer.C
			if first {
				resetTimer(maxTimer, d.cfg.MaxDelay)
				maxC = maxTimer.C
			}
		case <-quietC:
			d.emit(ctx, "quiet", fire)
			quietC, maxC = nil, nil
		case <-maxC:
			d.emit(ctx, "max_delay", fire)
			quietC, maxC = nil, nil
		}
	}
}

// admit folds one request into the pending batch; reports whether it opened
// a new batch.
func (d *Debouncer) admit(req Request) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := req.RequestedAt
	if now.IsZero() {
		now = time.Now()
	}
	first := !d.pending
	if first {
		d.pending = true
		d.firstRequest = now
	}
	d.lastRequest = now
	d.count++
	if req.Full {
		d.full = true
	} else if req.Key != "" {
		d.keys[req.Key] = struct{}{}
	}
	return first
}

func (d *Debouncer) emit(ctx context.Context, cause string, fire func(context.Context, Batch)) {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	batch := Batch{
		Full:         d.full,
		Count:        d.count,
		Cause:        cause,
		FirstRequest: d.firstRequest,
		LastRequest:  d.lastRequest,
	}
	for k := range d.keys {
		batch.Keys = append(batch.Keys, k)
	}
	d.pending = false
	d.full = false
	d.count = 0
	d.keys = make(map[string]struct{})
	d.mu.Unlock()

	fire(ctx, batch)
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	return t
}

func resetTimer(t *time.Timer, after time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(after)
}
