// Package delivery implements the HTTP-out pipeline: build the record
// envelope, attempt immediate POST with inline retry, and fall back to a
// durable on-disk FIFO queue for anything that still fails. It carries
// the same single-writer, mutex-guarded discipline generalized from an
// in-memory-list-plus-dque store to a single atomically-rewritten JSON
// array: an operator-editable file rather than a binary segment store.
package delivery

import "time"

// Entry is one persisted, not-yet-confirmed delivery attempt.
type Entry struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	LastTriedAt *time.Time        `json:"last_tried_at,omitempty"`
	Attempts    uint32            `json:"attempts"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     []byte            `json:"payload"`
	LastError   string            `json:"last_error,omitempty"`
}
