package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Category is the closed set of insight categories, each of which maps to
// exactly one promotion target file (see internal/config PromotionConfig).
type Category string

const (
	CategoryWisdom           Category = "wisdom"
	CategorySelfAwareness    Category = "self_awareness"
	CategoryUserUnderstanding Category = "user_understanding"
	CategoryReasoning        Category = "reasoning"
	CategoryMetaLearning     Category = "meta_learning"
	CategoryOther            Category = "other"
)

// MaxStatementLen is the invariant bound on Insight.Statement.
const MaxStatementLen = 500

// EvidenceRingSize is the default bound on the Evidence and
// CounterExamples rings; internal/cognitive enforces the configured size.
const EvidenceRingSize = 10

// Insight is a distilled, reliability-scored statement of learned agent
// behavior, keyed by a stable hash of its category and normalized
// statement so that re-derivations of the same insight upsert rather than
// duplicate.
type Insight struct {
	Key               string    `json:"key"`
	Category          Category  `json:"category"`
	Statement         string    `json:"statement"`
	Reliability       float64   `json:"reliability"`
	Validations       int64     `json:"validations"`
	Contradictions    int64     `json:"contradictions"`
	Confidence        float64   `json:"confidence"`
	Promoted          bool      `json:"promoted"`
	PromotedTo        string    `json:"promoted_to,omitempty"`
	Evidence          []string  `json:"evidence"`          // bounded ring of supporting event IDs
	CounterExamples   []string  `json:"counter_examples"`  // bounded ring of refuting event IDs
	Source            string    `json:"source"`
	CreatedAt         time.Time `json:"created_at"`
	LastValidatedAt   time.Time `json:"last_validated_at"`
	AdvisoryReadiness float64   `json:"advisory_readiness"`
}

// InsightKey computes the stable hash of a category and normalized
// statement used as an Insight's Key.
func InsightKey(category Category, statement string) string {
	norm := NormalizeStatement(statement)
	sum := sha256.Sum256([]byte(string(category) + "|" + norm))
	return hex.EncodeToString(sum[:])[:24]
}

// NormalizeStatement lowercases and collapses whitespace, the same
// normalization Meta-Ralph's dedup comparison and the key hash both use so
// that two differently-phrased-but-identical keys never collide.
func NormalizeStatement(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

// RecomputeReliability implements the invariant
// reliability = validations / (validations + contradictions), else 0.
func (i *Insight) RecomputeReliability() {
	total := i.Validations + i.Contradictions
	if total <= 0 {
		i.Reliability = 0
		return
	}
	i.Reliability = float64(i.Validations) / float64(total)
}

// EligibleForPromotion implements the invariant
// promoted ⇒ reliability ≥ 0.80 ∧ validations ≥ 5, evaluated against the
// configured thresholds rather than the literal defaults.
func (i *Insight) EligibleForPromotion(minReliability float64, minValidations int64) bool {
	return !i.Promoted && i.Reliability >= minReliability && i.Validations >= minValidations
}

// pushRing appends id to ring, evicting the oldest entry once size is
// reached. It is used identically for Evidence and CounterExamples.
func pushRing(ring []string, id string, size int) []string {
	ring = append(ring, id)
	if len(ring) > size {
		ring = ring[len(ring)-size:]
	}
	return ring
}

// AppendEvidence pushes an event ID onto the bounded evidence ring.
func (i *Insight) AppendEvidence(eventID string, size int) {
	i.Evidence = pushRing(i.Evidence, eventID, size)
}

// AppendCounterExample pushes an event ID onto the bounded counter-example ring.
func (i *Insight) AppendCounterExample(eventID string, size int) {
	i.CounterExamples = pushRing(i.CounterExamples, eventID, size)
}
