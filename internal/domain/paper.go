package domain

import "time"

// Paper is a core entity describing metadata discovered from the catalog.
// NaturalKey is the arXiv identifier with any trailing revision suffix
// stripped, so revisions of the same paper collapse to one record.
type Paper struct {
	NaturalKey  string
	Title       string
	Authors     []string
	Abstract    string
	Categories  []string
	PublishedAt time.Time
	PDFURL      string
}

// SkipReason explains why the pipeline produced no summary for a paper.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipBudgetExceeded SkipReason = "budget_exceeded"
	SkipIrrelevant     SkipReason = "irrelevant"
	SkipError          SkipReason = "error"
)

// StoredPaper is the persisted shape: the discovered metadata plus the
// scoring outcome and the user the paper was collected for.
type StoredPaper struct {
	Paper       Paper
	Summary     string
	Relevance   float64
	ContentHash string
	UserID      int64
	Model       string
	CreatedAt   time.Time
}
