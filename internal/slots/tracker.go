// Package slots provides the bounded display-slot pool for concurrent
// file indexing. Each in-flight file owns exactly one slot from a fixed
// pool of N; the UI renders one progress row per occupied slot.
package slots

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// SlotStatus is the per-file progress stage shown while a file is
// being indexed. Stages only move forward.
type SlotStatus int

const (
	// StatusStarting indicates the file was just assigned a slot.
	StatusStarting SlotStatus = iota
	// StatusChunking indicates the file is being split into chunks.
	StatusChunking
	// StatusVectorizing indicates chunk embeddings are being computed.
	StatusVectorizing
	// StatusFinalizing indicates vectors are being written to the store.
	StatusFinalizing
	// StatusComplete indicates the file finished processing.
	StatusComplete
)

// String returns the display name of the status.
func (s SlotStatus) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusChunking:
		return "chunking"
	case StatusVectorizing:
		return "vectorizing"
	case StatusFinalizing:
		return "finalizing"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its display name.
func (s SlotStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// SlotData describes the file occupying a slot.
type SlotData struct {
	SlotID      int        `json:"slot_id"`
	Filename    string     `json:"filename"`
	FileSize    int64      `json:"file_size"`
	Status      SlotStatus `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	LastUpdated time.Time  `json:"last_updated"`
}

// slotEntry is the tracked state of one slot.
type slotEntry struct {
	occupied bool
	data     SlotData
}

// Tracker manages a fixed pool of N display slots. Slot ids live in a
// buffered channel while free, so a slot can never have two owners:
// the id token exists in exactly one place at a time.
type Tracker struct {
	free chan int

	mu      sync.RWMutex
	entries []slotEntry
}

// NewTracker creates a tracker with n slots. Non-positive n is clamped
// to one slot.
func NewTracker(n int) *Tracker {
	if n <= 0 {
		n = 1
	}

	t := &Tracker{
		free:    make(chan int, n),
		entries: make([]slotEntry, n),
	}
	for i := 0; i < n; i++ {
		t.free <- i
	}
	return t
}

// AcquireSlot blocks until a slot is free or the context is cancelled,
// then claims the slot for the given file. The returned slot id is
// owned by the caller until ReleaseSlot.
func (t *Tracker) AcquireSlot(ctx context.Context, initial SlotData) (int, error) {
	// Deterministic result for an already-cancelled context.
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	select {
	case id := <-t.free:
		now := time.Now()
		initial.SlotID = id
		if initial.StartTime.IsZero() {
			initial.StartTime = now
		}
		initial.LastUpdated = now

		t.mu.Lock()
		t.entries[id] = slotEntry{occupied: true, data: initial}
		t.mu.Unlock()
		return id, nil

	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// UpdateSlot advances the status of an occupied slot. Updates to a
// free slot or updates that would move the status backwards are
// ignored.
func (t *Tracker) UpdateSlot(slotID int, status SlotStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if slotID < 0 || slotID >= len(t.entries) {
		return
	}
	entry := &t.entries[slotID]
	if !entry.occupied {
		return
	}
	if status <= entry.data.Status {
		return
	}

	entry.data.Status = status
	entry.data.LastUpdated = time.Now()
}

// ReleaseSlot returns a slot to the pool. Releasing a slot that is
// already free is a no-op, so double releases cannot inflate the pool.
func (t *Tracker) ReleaseSlot(slotID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if slotID < 0 || slotID >= len(t.entries) {
		return
	}
	if !t.entries[slotID].occupied {
		return
	}

	t.entries[slotID] = slotEntry{}
	// Never blocks: the occupied guard above means each id token is
	// pushed at most once per acquisition.
	t.free <- slotID
}

// GetDisplayFiles returns a consistent snapshot of all occupied slots
// in slot order. The returned slice is a copy and safe to retain.
func (t *Tracker) GetDisplayFiles() []SlotData {
	t.mu.RLock()
	defer t.mu.RUnlock()

	files := make([]SlotData, 0, len(t.entries))
	for _, entry := range t.entries {
		if entry.occupied {
			files = append(files, entry.data)
		}
	}
	return files
}

// Capacity returns the total number of slots.
func (t *Tracker) Capacity() int {
	return len(t.entries)
}

// Occupied returns the number of slots currently in use.
func (t *Tracker) Occupied() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, entry := range t.entries {
		if entry.occupied {
			count++
		}
	}
	return count
}

// Available returns the number of free slots.
func (t *Tracker) Available() int {
	return len(t.free)
}
