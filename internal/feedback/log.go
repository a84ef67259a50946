package feedback

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/normanking/kaitd/internal/kaitkerr"
	"github.com/normanking/kaitd/internal/model"
)

const component = "feedback"

// Logger appends FeedbackEntry records to a JSONL file, one os.OpenFile
// plus one Write syscall per entry, the same atomic-append shape used by
// the advisory decision ledger and internal/queue's appendAtomic.
type Logger struct {
	mu   sync.Mutex
	path string
}

// NewLogger constructs a Logger writing to path.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// Append writes one FeedbackEntry as a single JSON line.
func (l *Logger) Append(entry model.FeedbackEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return kaitkerr.Invariant(component, "marshal_feedback_entry", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return kaitkerr.Transient(component, "open_feedback_log", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return kaitkerr.Transient(component, "write_feedback_entry", err)
	}
	return nil
}
