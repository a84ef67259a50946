package promotion

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/normanking/kaitd/internal/kaitkerr"
)

// Logger appends Report records to a JSONL file using the same
// open-append-write-close shape as the advisory decision ledger.
type Logger struct {
	mu   sync.Mutex
	path string
}

// NewLogger constructs a Logger writing to path.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// Append writes one Report as a single JSON line.
func (l *Logger) Append(r Report) error {
	line, err := json.Marshal(r)
	if err != nil {
		return kaitkerr.Invariant(component, "marshal_promotion_report", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return kaitkerr.Transient(component, "open_promotion_log", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return kaitkerr.Transient(component, "write_promotion_report", err)
	}
	return nil
}
