package events

import (
	"encoding/json"
	"os"
	"sync"
)

// FileLogObserver appends each envelope as a JSON line to a log file.
type FileLogObserver struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileLogObserver opens (or creates) path for appending.
func NewFileLogObserver(path string) (*FileLogObserver, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogObserver{file: f, enc: json.NewEncoder(f)}, nil
}

// Attach subscribes the observer to all bus events.
func (o *FileLogObserver) Attach(bus *Bus) func() {
	return bus.Subscribe("*", o.OnEvent)
}

// OnEvent appends one JSON line.
func (o *FileLogObserver) OnEvent(env Envelope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.enc.Encode(env)
}

// Close flushes and closes the log file.
func (o *FileLogObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.file.Close()
}
