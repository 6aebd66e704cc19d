package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion guards against older-shaped records: a checkpoint encoded
// under a different version fails closed and is treated as absent.
const SchemaVersion = 1

// DateFormat keys one checkpoint per calendar day.
const DateFormat = "2006-01-02"

// Retention is how long a finished checkpoint stays around for debugging;
// after that the store is allowed to expire it.
const Retention = 7 * 24 * time.Hour

// Checkpoint is the durable progress record for a single day's run.
type Checkpoint struct {
	SchemaVersion int    `json:"schemaVersion"`
	Date          string `json:"date"`

	UsersProcessed      int `json:"usersProcessed"`
	DocumentsFound      int `json:"documentsFound"`
	DocumentsSummarized int `json:"documentsSummarized"`
	DocumentsSkipped    int `json:"documentsSkipped"`

	// DocumentsProcessedThisInvocation enforces the per-invocation batch cap.
	// It resets to zero every time the orchestrator is invoked.
	DocumentsProcessedThisInvocation int `json:"documentsProcessedThisInvocation"`

	TotalCostUSD float64  `json:"totalCostUsd"`
	Errors       []string `json:"errors,omitempty"`

	// LastCompletedUserID is the highest user id fully finished this day.
	LastCompletedUserID *int64 `json:"lastCompletedUserId,omitempty"`
	// LastCountedUserID is the highest user id whose merged discovery total
	// has been added to DocumentsFound. A user restarted after a pause must
	// not add its documents a second time.
	LastCountedUserID *int64 `json:"lastCountedUserId,omitempty"`
	// LastDocumentKey is the natural key of the last paper processed for the
	// user currently in progress, enabling mid-user resume.
	LastDocumentKey string `json:"lastDocumentKey,omitempty"`

	// BudgetExhausted marks that the daily ceiling was reached and the
	// diagnostic for it recorded. Remaining users are still visited; their
	// new documents are skipped at zero cost.
	BudgetExhausted bool `json:"budgetExhausted,omitempty"`

	Completed bool `json:"completed"`
}

// New creates a fresh checkpoint for the given day.
func New(date string) *Checkpoint {
	return &Checkpoint{SchemaVersion: SchemaVersion, Date: date}
}

// Key returns the storage key for a date, e.g. checkpoint:automation:2026-08-29.
func Key(date string) string {
	return "checkpoint:automation:" + date
}

// RecordError appends a free-text diagnostic to the append-only error log.
func (c *Checkpoint) RecordError(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Sprintf(format, args...))
}

// MarkUserCompleted advances the resume point past the given user and clears
// the mid-user document marker.
func (c *Checkpoint) MarkUserCompleted(userID int64) {
	id := userID
	c.LastCompletedUserID = &id
	c.LastDocumentKey = ""
	c.UsersProcessed++
}

// UserAlreadyDone reports whether the user was fully finished in a prior
// invocation of this day.
func (c *Checkpoint) UserAlreadyDone(userID int64) bool {
	return c.LastCompletedUserID != nil && userID <= *c.LastCompletedUserID
}

// MarkDocumentsCounted records that the user's discovery total is reflected
// in DocumentsFound.
func (c *Checkpoint) MarkDocumentsCounted(userID int64) {
	id := userID
	c.LastCountedUserID = &id
}

// DocumentsCounted reports whether the user's discovery total was already
// added by an earlier walk. Users are processed in ascending id order.
func (c *Checkpoint) DocumentsCounted(userID int64) bool {
	return c.LastCountedUserID != nil && userID <= *c.LastCountedUserID
}

// Encode serializes the checkpoint for the key-value store.
func (c *Checkpoint) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses a stored checkpoint. A payload with a mismatched schema
// version decodes to (nil, nil): callers treat it as absent rather than
// operating on partially-defined state.
func Decode(raw []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.SchemaVersion != SchemaVersion {
		return nil, nil
	}
	return &cp, nil
}
