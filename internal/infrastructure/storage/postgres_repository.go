package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

// PostgresRepository is the narrow relational contract the pipeline consumes.
// All queries are built with bound placeholders; nothing is interpolated.
type PostgresRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.PaperRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// PaperExists is the point lookup on the natural key.
func (r *PostgresRepository) PaperExists(ctx context.Context, naturalKey string) (bool, error) {
	query, args, err := r.sb.
		Select("1").
		From("papers").
		Where(sq.Eq{"natural_key": naturalKey}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query paper %s: %w", naturalKey, err)
	}
	return true, nil
}

// InsertPaper persists a scored paper. Inserting an already-present natural
// key is a no-op, keeping resumed invocations idempotent.
func (r *PostgresRepository) InsertPaper(ctx context.Context, paper domain.StoredPaper) error {
	var summary any
	if paper.Summary != "" {
		summary = paper.Summary
	}

	query, args, err := r.sb.
		Insert("papers").
		Columns("natural_key", "title", "authors", "abstract", "categories",
			"published_at", "pdf_url", "summary", "relevance", "content_hash",
			"user_id", "model").
		Values(paper.Paper.NaturalKey, paper.Paper.Title, pq.Array(paper.Paper.Authors),
			paper.Paper.Abstract, pq.Array(paper.Paper.Categories),
			paper.Paper.PublishedAt, paper.Paper.PDFURL, summary, paper.Relevance,
			paper.ContentHash, paper.UserID, paper.Model).
		Suffix("ON CONFLICT (natural_key) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert paper %s: %w", paper.Paper.NaturalKey, err)
	}
	return nil
}

// EnsureUserPaper records that a paper was collected for a user; repeated
// calls are no-ops.
func (r *PostgresRepository) EnsureUserPaper(ctx context.Context, userID int64, naturalKey string) error {
	query, args, err := r.sb.
		Insert("user_papers").
		Columns("user_id", "natural_key").
		Values(userID, naturalKey).
		Suffix("ON CONFLICT (user_id, natural_key) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build status query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ensure status %d/%s: %w", userID, naturalKey, err)
	}
	return nil
}

// ActiveUsers lists users eligible for the daily run, ascending by id; the
// ordering is what makes the checkpoint's resume point meaningful.
func (r *PostgresRepository) ActiveUsers(ctx context.Context) ([]domain.User, error) {
	query, args, err := r.sb.
		Select("id", "name").
		From("users").
		Where(sq.Eq{"active": true}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build users query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user := domain.User{Active: true}
		if err := rows.Scan(&user.ID, &user.Name); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return users, nil
}

// EnabledTopics lists a user's enabled topics in a stable order.
func (r *PostgresRepository) EnabledTopics(ctx context.Context, userID int64) ([]domain.Topic, error) {
	query, args, err := r.sb.
		Select("id", "user_id", "name", "query").
		From("topics").
		Where(sq.Eq{"user_id": userID, "enabled": true}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build topics query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		topic := domain.Topic{Enabled: true}
		if err := rows.Scan(&topic.ID, &topic.UserID, &topic.Name, &topic.Query); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return topics, nil
}
