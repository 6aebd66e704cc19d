package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"PaperDigest/internal/budget"
	"PaperDigest/internal/checkpoint"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/scoring"
)

// RunStatus is the terminal state of one orchestrator invocation. Both are
// expected outcomes: a batch pause means the caller must invoke again.
type RunStatus string

const (
	StatusDayComplete RunStatus = "day_complete"
	StatusBatchPaused RunStatus = "batch_paused"
)

// ScoringPipeline is what the orchestrator needs from the two-stage pipeline.
type ScoringPipeline interface {
	BeginSession(priorSpentUSD float64)
	ScoreAndSummarize(ctx context.Context, title, abstract string, topics []string, threshold float64) scoring.Result
	SessionSpent() float64
}

// Deps wires all driven adapters into the orchestrator.
type Deps struct {
	Discovery   ports.DiscoveryClient
	Repository  ports.PaperRepository
	Pipeline    ScoringPipeline
	Checkpoints ports.CheckpointStore
	Notifier    ports.Notifier
	Logger      *slog.Logger
}

// Limits are the externally supplied run bounds.
type Limits struct {
	DailyBudgetUSD     float64
	BatchCap           int
	RelevanceThreshold float64
	MaxResults         int
	SummaryModel       string
}

// Orchestrator drives one day's run: per user, per deduplicated paper,
// discovery then scoring then persistence, with the checkpoint updated after
// every unit of work so any interruption leaves a resumable state.
type Orchestrator struct {
	discovery   ports.DiscoveryClient
	repo        ports.PaperRepository
	pipeline    ScoringPipeline
	checkpoints ports.CheckpointStore
	notifier    ports.Notifier
	limits      Limits
	logger      *slog.Logger
}

// NewOrchestrator constructs the orchestration component.
func NewOrchestrator(deps Deps, limits Limits) *Orchestrator {
	return &Orchestrator{
		discovery:   deps.Discovery,
		repo:        deps.Repository,
		pipeline:    deps.Pipeline,
		checkpoints: deps.Checkpoints,
		notifier:    deps.Notifier,
		limits:      limits,
		logger:      deps.Logger,
	}
}

// RunOnce executes a single invocation for the given day. The only errors it
// returns are a failure to load the checkpoint before any work started and a
// cancelled context; every later failure degrades per the checkpoint's error
// log instead. An interrupted run keeps whatever resume point the
// per-document saves already persisted.
func (o *Orchestrator) RunOnce(ctx context.Context, now time.Time) (RunStatus, error) {
	date := now.UTC().Format(checkpoint.DateFormat)

	cp, err := o.checkpoints.Load(ctx, date)
	if err != nil {
		return "", fmt.Errorf("load checkpoint %s: %w", date, err)
	}
	if cp == nil {
		cp = checkpoint.New(date)
	}
	cp.DocumentsProcessedThisInvocation = 0

	if cp.Completed {
		o.info("day already complete", "date", date)
		return StatusDayComplete, nil
	}

	// Session spend is seeded from the persisted cumulative cost so a fresh
	// process cannot bypass the ceiling after a restart.
	o.pipeline.BeginSession(cp.TotalCostUSD)
	resumeKey := cp.LastDocumentKey

	users, err := o.repo.ActiveUsers(ctx)
	if err != nil {
		cp.RecordError("list active users: %v", err)
		o.save(ctx, cp)
		return StatusDayComplete, nil
	}

	for _, user := range users {
		if cp.UserAlreadyDone(user.ID) {
			continue
		}

		paused, err := o.processUser(ctx, cp, user, resumeKey)
		resumeKey = ""
		if err != nil {
			// A cancelled run is an interruption, not a broken user: stop
			// without marking the user completed.
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// The user still becomes the resume point so a permanently
			// broken user is not retried forever.
			cp.RecordError("user %d (%s): %v", user.ID, user.Name, err)
			cp.MarkUserCompleted(user.ID)
			o.save(ctx, cp)
			continue
		}
		if paused {
			o.info("batch cap reached, pausing",
				"date", date, "processed", cp.DocumentsProcessedThisInvocation)
			return StatusBatchPaused, nil
		}

		cp.MarkUserCompleted(user.ID)

		// Completed stays reserved for "every active user visited", so the
		// loop keeps walking the remaining users; their new documents are
		// skipped at zero cost by the pipeline's entry check.
		if budget.Exceeded(cp.TotalCostUSD, o.limits.DailyBudgetUSD) && !cp.BudgetExhausted {
			cp.BudgetExhausted = true
			cp.RecordError("daily budget ceiling reached: spent %.4f of %.4f",
				cp.TotalCostUSD, o.limits.DailyBudgetUSD)
		}
		o.save(ctx, cp)
	}

	o.complete(ctx, cp)
	return StatusDayComplete, nil
}

// processUser discovers one query per enabled topic, merges and deduplicates
// the results most-recent-first, and walks the set document by document.
// resumeKey, when set, is the last paper already processed for this user in a
// prior invocation; processing continues immediately after it.
func (o *Orchestrator) processUser(ctx context.Context, cp *checkpoint.Checkpoint, user domain.User, resumeKey string) (bool, error) {
	topics, err := o.repo.EnabledTopics(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("list topics: %w", err)
	}

	topicNames := make([]string, 0, len(topics))
	for _, t := range topics {
		topicNames = append(topicNames, t.Name)
	}

	// One query per topic, never a combined OR-query: the provider rejects
	// overly complex expressions.
	var merged []domain.Paper
	seen := map[string]struct{}{}
	for _, topic := range topics {
		results := o.discovery.Search(ctx, topic.Query, o.limits.MaxResults, 0, "submittedDate", "descending")
		for _, paper := range results {
			if _, dup := seen[paper.NaturalKey]; dup {
				continue
			}
			seen[paper.NaturalKey] = struct{}{}
			merged = append(merged, paper)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PublishedAt.After(merged[j].PublishedAt)
	})

	// If the recorded key no longer appears in today's results there is
	// nothing to skip past; restart the user from the top.
	if _, present := seen[resumeKey]; !present {
		resumeKey = ""
	}

	// Add the merged total exactly once per user per day: a pause at this
	// user's boundary restarts it with an empty resume key, and the total
	// must not be added again on that second walk.
	if !cp.DocumentsCounted(user.ID) {
		cp.DocumentsFound += len(merged)
		cp.MarkDocumentsCounted(user.ID)
	}

	skipping := resumeKey != ""
	lastProcessed := resumeKey
	for _, paper := range merged {
		if skipping {
			if paper.NaturalKey == resumeKey {
				skipping = false
			}
			continue
		}

		if cp.DocumentsProcessedThisInvocation >= o.limits.BatchCap {
			cp.LastDocumentKey = lastProcessed
			o.save(ctx, cp)
			return true, nil
		}

		if err := o.processPaper(ctx, cp, user, paper, topicNames); err != nil {
			return false, err
		}

		lastProcessed = paper.NaturalKey
		cp.DocumentsProcessedThisInvocation++
		cp.LastDocumentKey = paper.NaturalKey
		o.save(ctx, cp)
	}

	return false, nil
}

// processPaper runs one document through the exists-check and, when new, the
// two-stage scoring pipeline. Repository failures propagate and are handled
// at the user level; scoring failures degrade to a skip.
func (o *Orchestrator) processPaper(ctx context.Context, cp *checkpoint.Checkpoint, user domain.User, paper domain.Paper, topicNames []string) error {
	exists, err := o.repo.PaperExists(ctx, paper.NaturalKey)
	if err != nil {
		return fmt.Errorf("paper lookup %s: %w", paper.NaturalKey, err)
	}

	if exists {
		// Already seen in a prior run: the status row still must exist, and
		// the document still counts toward the batch cap even though it
		// costs no money.
		if err := o.repo.EnsureUserPaper(ctx, user.ID, paper.NaturalKey); err != nil {
			return fmt.Errorf("ensure status %s: %w", paper.NaturalKey, err)
		}
		cp.DocumentsSkipped++
		return nil
	}

	res := o.pipeline.ScoreAndSummarize(ctx, paper.Title, paper.Abstract, topicNames, o.limits.RelevanceThreshold)
	cp.TotalCostUSD += res.TotalCost()

	switch res.SkipReason {
	case domain.SkipNone:
		stored := domain.StoredPaper{
			Paper:       paper,
			Summary:     res.Summary,
			Relevance:   res.Relevance,
			ContentHash: res.ContentHash,
			UserID:      user.ID,
			Model:       o.limits.SummaryModel,
		}
		if err := o.repo.InsertPaper(ctx, stored); err != nil {
			return fmt.Errorf("insert paper %s: %w", paper.NaturalKey, err)
		}
		if err := o.repo.EnsureUserPaper(ctx, user.ID, paper.NaturalKey); err != nil {
			return fmt.Errorf("ensure status %s: %w", paper.NaturalKey, err)
		}
		cp.DocumentsSummarized++
	default:
		o.debug("paper skipped", "key", paper.NaturalKey,
			"reason", string(res.SkipReason), "relevance", res.Relevance)
		cp.DocumentsSkipped++
	}

	return nil
}

func (o *Orchestrator) complete(ctx context.Context, cp *checkpoint.Checkpoint) {
	cp.Completed = true
	cp.LastDocumentKey = ""
	o.save(ctx, cp)
	o.info("day complete",
		"date", cp.Date,
		"users", cp.UsersProcessed,
		"found", cp.DocumentsFound,
		"summarized", cp.DocumentsSummarized,
		"skipped", cp.DocumentsSkipped,
		"cost_usd", cp.TotalCostUSD)
	o.notify(ctx, cp)
}

// save persists the checkpoint best-effort: losing a write degrades
// resumability but must not turn finished work into a failure.
func (o *Orchestrator) save(ctx context.Context, cp *checkpoint.Checkpoint) {
	if err := o.checkpoints.Save(ctx, cp); err != nil {
		o.warn("checkpoint save failed", "date", cp.Date, "error", err)
	}
}

func (o *Orchestrator) notify(ctx context.Context, cp *checkpoint.Checkpoint) {
	if o.notifier == nil {
		return
	}

	digest := fmt.Sprintf("PaperDigest %s: %d users, %d papers found, %d summarized, %d skipped, $%.4f spent",
		cp.Date, cp.UsersProcessed, cp.DocumentsFound, cp.DocumentsSummarized,
		cp.DocumentsSkipped, cp.TotalCostUSD)
	if err := o.notifier.PublishDigest(ctx, digest); err != nil {
		o.warn("digest notification failed", "error", err)
	}
}

func (o *Orchestrator) info(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

func (o *Orchestrator) debug(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}
