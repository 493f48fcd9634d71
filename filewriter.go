package bridge

import (
	"os"
	"sync"
)

// RecordLogWriter appends one JSON document per line to a file, for
// operators who want a durable local record of everything decoded
// independent of the HTTP receiver's own logging. Wired in by
// cmd/p3-bridge behind an optional flag, which writes each parsed
// p3.Record (not the HTTP envelope) to it.
type RecordLogWriter struct {
	file *os.File
	path string
	mu   sync.Mutex
}

// NewRecordLogWriter opens (creating if needed) path for append.
func NewRecordLogWriter(path string) (*RecordLogWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	log.Infoln("record log writer initialized, writing to:", path)
	return &RecordLogWriter{file: file, path: path}, nil
}

// Write appends data followed by a newline.
func (w *RecordLogWriter) Write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(data); err != nil {
		return err
	}
	_, err := w.file.Write([]byte("\n"))
	return err
}

// Close closes the underlying file.
func (w *RecordLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Sync flushes the file to disk.
func (w *RecordLogWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}
