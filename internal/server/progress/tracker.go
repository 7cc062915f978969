package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Record is a snapshot of one upload's progress,
// keyed by the client-chosen upload identifier.
type Record struct {
	UploadID      string    `json:"uploadId"`
	BytesReceived int64     `json:"bytesReceived"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// subscriber receives pushed records for a single upload ID.
type subscriber struct {
	id string
	ch chan Record
}

// Tracker holds in-flight upload progress and pushes updates to
// subscribers. All maps are guarded by one mutex; records are
// garbage-collected by a periodic sweep once idle too long.
type Tracker struct {
	mu      sync.Mutex
	records map[string]Record
	subs    map[string][]*subscriber

	idleMax  time.Duration
	interval time.Duration
	done     chan struct{}

	now func() time.Time
}

// NewTracker creates a tracker that sweeps records idle longer than
// idleMax every interval.
func NewTracker(idleMax, interval time.Duration) *Tracker {
	return &Tracker{
		records:  make(map[string]Record),
		subs:     make(map[string][]*subscriber),
		idleMax:  idleMax,
		interval: interval,
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Update records cumulative bytes received for an upload and notifies
// subscribers. Creates the record on first report.
func (t *Tracker) Update(uploadID string, bytesReceived int64) {
	if uploadID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{
		UploadID:      uploadID,
		BytesReceived: bytesReceived,
		UpdatedAt:     t.now(),
	}
	t.records[uploadID] = rec

	for _, s := range t.subs[uploadID] {
		// A slow subscriber drops updates rather than blocking ingestion.
		select {
		case s.ch <- rec:
		default:
		}
	}
}

// Snapshot returns the latest record for an upload, if one exists.
func (t *Tracker) Snapshot(uploadID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[uploadID]
	return rec, ok
}

// Subscribe registers interest in an upload ID. If progress already
// exists it is pushed immediately. The returned cancel func must be
// called when the subscriber goes away.
func (t *Tracker) Subscribe(uploadID string) (<-chan Record, func()) {
	s := &subscriber{id: uploadID, ch: make(chan Record, 8)}

	t.mu.Lock()
	if rec, ok := t.records[uploadID]; ok {
		s.ch <- rec
	}
	t.subs[uploadID] = append(t.subs[uploadID], s)
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		list := t.subs[uploadID]
		for i, cur := range list {
			if cur == s {
				t.subs[uploadID] = append(list[:i], list[i+1:]...)
				// Safe to close here: sends only happen under the mutex.
				close(s.ch)
				break
			}
		}
		if len(t.subs[uploadID]) == 0 {
			delete(t.subs, uploadID)
		}
	}
	return s.ch, cancel
}

// Start begins the sweep loop in a background goroutine.
func (t *Tracker) Start(ctx context.Context) {
	slog.Info("progress sweep started", "interval", t.interval, "idle_max", t.idleMax)

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.sweep()
			case <-ctx.Done():
				slog.Info("progress sweep stopping")
				close(t.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweep loop has fully stopped.
func (t *Tracker) Wait() {
	<-t.done
}

func (t *Tracker) sweep() {
	cutoff := t.now().Add(-t.idleMax)

	t.mu.Lock()
	var swept int
	for id, rec := range t.records {
		if rec.UpdatedAt.Before(cutoff) {
			delete(t.records, id)
			swept++
		}
	}
	t.mu.Unlock()

	if swept > 0 {
		slog.Info("swept stale progress records", "count", swept)
	}
}
