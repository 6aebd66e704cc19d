package ports

import (
	"context"
	"time"

	"PaperDigest/internal/checkpoint"
	"PaperDigest/internal/domain"
)

// DiscoveryClient queries the external catalog for papers matching a query.
// Implementations degrade to an empty slice on failure: one broken topic must
// not abort the rest of a user's topics.
type DiscoveryClient interface {
	Search(ctx context.Context, query string, maxResults, start int, sortBy, sortOrder string) []domain.Paper
}

// ModelUsage reports the token counts of one completion, used for cost accounting.
type ModelUsage struct {
	InputTokens  int
	OutputTokens int
}

// ModelClient issues a single bounded-output prompt against the AI service.
type ModelClient interface {
	Complete(ctx context.Context, model string, maxTokens int, prompt string) (string, ModelUsage, error)
}

// PaperRepository is the narrow read/write contract to the relational store.
type PaperRepository interface {
	PaperExists(ctx context.Context, naturalKey string) (bool, error)
	InsertPaper(ctx context.Context, paper domain.StoredPaper) error
	EnsureUserPaper(ctx context.Context, userID int64, naturalKey string) error
	ActiveUsers(ctx context.Context) ([]domain.User, error)
	EnabledTopics(ctx context.Context, userID int64) ([]domain.Topic, error)
}

// CheckpointStore persists per-day run progress. Load reports absence as
// (nil, nil); a record of an unknown schema version counts as absent.
type CheckpointStore interface {
	Load(ctx context.Context, date string) (*checkpoint.Checkpoint, error)
	Save(ctx context.Context, cp *checkpoint.Checkpoint) error
}

// Notifier publishes a completed run's digest to an outbound channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when orchestrator invocations execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
