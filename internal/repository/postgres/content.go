package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/sentinel-secure/awareness-platform/internal/domain"
	"github.com/sentinel-secure/awareness-platform/internal/pipeline"
)

// ContentRepo implements pipeline.ContentRepository against PostgreSQL.
type ContentRepo struct{ db *sql.DB }

// NewContentRepo creates a Postgres-backed content repository.
func NewContentRepo(db *sql.DB) *ContentRepo { return &ContentRepo{db: db} }

func (r *ContentRepo) Get(ctx context.Context, id string) (*domain.Content, error) {
	c := &domain.Content{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, artifact_path, difficulty, owner_id, domain_id, created_at, updated_at
		FROM content
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Kind, &c.ArtifactPath, &c.Difficulty, &c.OwnerID, &c.DomainID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, pipeline.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}

	tags, err := r.tags(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Tags = tags
	return c, nil
}

func (r *ContentRepo) Create(ctx context.Context, c *domain.Content) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO content (id, kind, owner_id, domain_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`, c.ID, c.Kind, c.OwnerID, c.DomainID)
	if err != nil {
		return "", fmt.Errorf("create content: %w", err)
	}
	return c.ID, nil
}

// SetArtifact records the pipeline output: artifact path, optional
// difficulty, and the discovered tag set. Duplicate (content, tag) pairs
// are ignored rather than erroring.
func (r *ContentRepo) SetArtifact(ctx context.Context, id, artifactPath string, difficulty *int, tags []string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE content
		SET artifact_path = $2, difficulty = COALESCE($3, difficulty), updated_at = NOW()
		WHERE id = $1
	`, id, artifactPath, difficulty)
	if err != nil {
		return fmt.Errorf("set artifact: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return pipeline.ErrContentNotFound
	}

	for _, tag := range tags {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO content_tags (content_id, tag)
			VALUES ($1, $2)
			ON CONFLICT (content_id, tag) DO NOTHING
		`, id, tag); err != nil {
			return fmt.Errorf("insert tag %s: %w", tag, err)
		}
	}
	return nil
}

func (r *ContentRepo) tags(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tag FROM content_tags WHERE content_id = $1 ORDER BY tag
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}
