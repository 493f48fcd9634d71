package delivery

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"
)

// Queue is the persistent, ordered, at-least-once retry store: a single
// JSON array file rewritten atomically on every mutation, kept as a
// plain operator-editable file rather than a segmented binary log.
type Queue struct {
	path string

	mu      sync.Mutex
	entries []Entry
}

// LoadQueue reads path, treating a missing, empty, or malformed file as
// an empty queue (it will be rewritten on the first persist).
func LoadQueue(path string) (*Queue, error) {
	q := &Queue{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return q, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Malformed file: treated as empty, matching §6's load contract.
		return q, nil
	}
	q.entries = entries
	return q, nil
}

// Len reports the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Enqueue appends an entry and persists synchronously, preserving strict
// FIFO order at enqueue time.
func (q *Queue) Enqueue(e Entry) error {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	err := q.persistLocked()
	q.mu.Unlock()
	return err
}

// Head returns a copy of the first entry without removing it, or false if
// the queue is empty.
func (q *Queue) Head() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

// RemoveHead drops the first entry (delivery succeeded) and persists.
func (q *Queue) RemoveHead() error {
	q.mu.Lock()
	if len(q.entries) > 0 {
		q.entries = q.entries[1:]
	}
	err := q.persistLocked()
	q.mu.Unlock()
	return err
}

// UpdateHead overwrites the first entry's attempts/last_error/last_tried_at
// (delivery failed) and persists, without changing its position in the
// queue.
func (q *Queue) UpdateHead(attempts uint32, lastError string, triedAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	q.entries[0].Attempts = attempts
	q.entries[0].LastError = lastError
	q.entries[0].LastTriedAt = &triedAt
	return q.persistLocked()
}

// Snapshot returns a copy of every entry, head first, for diagnostics.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) persistLocked() error {
	data, err := json.MarshalIndent(q.entries, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return err
	}
	return atomicwriter.WriteFile(q.path, data, 0o644)
}
