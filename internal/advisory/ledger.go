package advisory

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/normanking/kaitd/internal/kaitkerr"
	"github.com/normanking/kaitd/internal/model"
)

const ledgerComponent = "advisory.ledger"

// Ledger is the append-only Decision Ledger: one JSON line per advise()
// call, whether it emitted advice or was blocked entirely. Grounded on
// the queue package's appendAtomic pattern (single Write syscall under
// O_APPEND so concurrent advise() calls never interleave a partial line).
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger opens (creating if necessary) the ledger file at path.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Record appends one decision to the ledger.
func (l *Ledger) Record(d model.AdviceDecision) error {
	line, err := json.Marshal(d)
	if err != nil {
		return kaitkerr.Invariant(ledgerComponent, "marshal_decision", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return kaitkerr.Transient(ledgerComponent, "open_ledger", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return kaitkerr.Transient(ledgerComponent, "write_ledger", err)
	}
	return nil
}
