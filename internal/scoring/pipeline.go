package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"

	"PaperDigest/internal/budget"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/ratelimit"
)

// borderlineRelevance is the score assigned when the triage model returns
// something that is not a number in [0,1]. Treating the unknown as borderline
// is a deliberate policy: silently dropping or silently accepting would both
// bias results.
const borderlineRelevance = 0.5

// Rates price a model's tokens in USD per million tokens.
type Rates struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost converts one call's token usage into USD.
func (r Rates) Cost(usage ports.ModelUsage) float64 {
	return float64(usage.InputTokens)*r.InputPerMTok/1e6 +
		float64(usage.OutputTokens)*r.OutputPerMTok/1e6
}

// Config carries the pipeline's models, pricing, and the daily ceiling.
type Config struct {
	TriageModel    string
	SummaryModel   string
	TriageRates    Rates
	SummaryRates   Rates
	DailyBudgetUSD float64
}

// Result is the outcome of scoring one paper. Summary is empty whenever
// SkipReason is set. ContentHash is always populated, including on error, so
// callers can deduplicate failed attempts.
type Result struct {
	Summary     string
	Relevance   float64
	ContentHash string
	HaikuCost   float64
	SonnetCost  float64
	SkipReason  domain.SkipReason
}

// TotalCost is what this call added to the session spend.
func (r Result) TotalCost() float64 {
	return r.HaikuCost + r.SonnetCost
}

// Pipeline runs the two-stage scoring flow: a cheap triage call gates an
// expensive summarization call. It owns the session cost counter; there is
// exactly one caller (the orchestrator) per run.
type Pipeline struct {
	model   ports.ModelClient
	limiter *ratelimit.Limiter
	cfg     Config
	logger  *slog.Logger

	// priorSpentUSD is seeded from the checkpoint's cumulative cost at
	// session start so a fresh process cannot bypass the daily ceiling.
	priorSpentUSD float64
	sessionSpent  float64
}

// NewPipeline wires the model client and the AI-service rate limiter.
func NewPipeline(model ports.ModelClient, limiter *ratelimit.Limiter, cfg Config, log *slog.Logger) *Pipeline {
	return &Pipeline{model: model, limiter: limiter, cfg: cfg, logger: log}
}

// BeginSession resets the session counter and seeds the prior spend from the
// day's checkpoint.
func (p *Pipeline) BeginSession(priorSpentUSD float64) {
	p.priorSpentUSD = priorSpentUSD
	p.sessionSpent = 0
}

// SessionSpent reports the USD accumulated since BeginSession.
func (p *Pipeline) SessionSpent() float64 {
	return p.sessionSpent
}

// ScoreAndSummarize triages a paper against the user's topics and, if the
// relevance score clears the threshold, generates a summary. The budget check
// runs before any network call. A triage cost accumulated before a later
// failure stays charged; the failed call itself is never charged.
func (p *Pipeline) ScoreAndSummarize(ctx context.Context, title, abstract string, topics []string, threshold float64) Result {
	res := Result{ContentHash: ContentHash(title, abstract)}

	if budget.Exceeded(p.priorSpentUSD+p.sessionSpent, p.cfg.DailyBudgetUSD) {
		res.SkipReason = domain.SkipBudgetExceeded
		return res
	}

	if err := p.limiter.AwaitSlot(ctx); err != nil {
		res.SkipReason = domain.SkipError
		return res
	}

	raw, usage, err := p.model.Complete(ctx, p.cfg.TriageModel, triageMaxTokens, triagePrompt(title, abstract, topics))
	if err != nil {
		p.warn("triage call failed", "error", err)
		res.SkipReason = domain.SkipError
		return res
	}

	res.HaikuCost = p.cfg.TriageRates.Cost(usage)
	p.sessionSpent += res.HaikuCost
	res.Relevance = parseScore(raw)

	if res.Relevance < threshold {
		res.SkipReason = domain.SkipIrrelevant
		return res
	}

	if err := p.limiter.AwaitSlot(ctx); err != nil {
		res.SkipReason = domain.SkipError
		return res
	}

	summary, usage, err := p.model.Complete(ctx, p.cfg.SummaryModel, summaryMaxTokens, summaryPrompt(title, abstract))
	if err != nil {
		p.warn("summarization call failed", "error", err)
		res.SkipReason = domain.SkipError
		return res
	}

	res.SonnetCost = p.cfg.SummaryRates.Cost(usage)
	p.sessionSpent += res.SonnetCost
	res.Summary = strings.TrimSpace(summary)

	return res
}

// parseScore reads the triage response as a float in [0,1]; anything else
// falls back to the borderline policy score.
func parseScore(raw string) float64 {
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || score < 0 || score > 1 {
		return borderlineRelevance
	}
	return score
}

// ContentHash is a stable digest of title+abstract used for cross-run
// duplicate detection independent of the catalog identifier.
func ContentHash(title, abstract string) string {
	sum := sha256.Sum256([]byte(title + "\n" + abstract))
	return hex.EncodeToString(sum[:])
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
