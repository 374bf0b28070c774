package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) GetPost(ctx context.Context, postID int64) (Post, error) {
	var post Post
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, slug, post_type, status, created_at, modified_at
		FROM posts
		WHERE id=$1
	`, postID).Scan(&post.ID, &post.Title, &post.Slug, &post.Type, &post.Status, &post.CreatedAt, &post.ModifiedAt)
	if err != nil {
		return Post{}, err
	}
	return post, nil
}

func (s *PostgresStore) InsertPost(ctx context.Context, post Post) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (title, slug, post_type, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, post.Title, post.Slug, post.Type, post.Status).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return id, nil
}

// GetMeta reports ok=false when the key is not set for the post.
func (s *PostgresStore) GetMeta(ctx context.Context, postID int64, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT meta_value FROM post_meta WHERE post_id=$1 AND meta_key=$2`, postID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) SetMeta(ctx context.Context, postID int64, key, value string) error {
	return upsertMeta(ctx, s.db, postID, key, value)
}

func (s *PostgresStore) DeleteMeta(ctx context.Context, postID int64, key string) error {
	return deleteMeta(ctx, s.db, postID, key)
}

// DeleteMetaByKey removes key from every post and returns the number of rows
// deleted.
func (s *PostgresStore) DeleteMetaByKey(ctx context.Context, key string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM post_meta WHERE meta_key=$1`, key)
	if err != nil {
		return 0, fmt.Errorf("delete meta %s: %w", key, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete meta %s: %w", key, err)
	}
	return affected, nil
}

// LoadLayout returns the stored layout text, or "" when none is stored.
func (s *PostgresStore) LoadLayout(ctx context.Context, postID int64) (string, error) {
	value, _, err := s.GetMeta(ctx, postID, MetaLayout)
	return value, err
}

// SaveLayout replaces the layout text of a post. The generated stylesheet
// is dropped and the modification time bumped in the same transaction.
func (s *PostgresStore) SaveLayout(ctx context.Context, postID int64, raw string, opts LayoutWrite) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin layout tx: %w", err)
	}

	if err := upsertMeta(ctx, tx, postID, MetaLayout, raw); err != nil {
		_ = tx.Rollback()
		return err
	}
	if opts.BuilderMode {
		if err := upsertMeta(ctx, tx, postID, MetaEditMode, EditModeBuilder); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := deleteMeta(ctx, tx, postID, MetaCSS); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE posts SET modified_at=NOW() WHERE id=$1`, postID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("touch post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit layout tx: %w", err)
	}
	return nil
}

// SavePageSettings stores the settings object and drops the generated
// stylesheet in one transaction.
func (s *PostgresStore) SavePageSettings(ctx context.Context, postID int64, settings string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings tx: %w", err)
	}
	if err := upsertMeta(ctx, tx, postID, MetaPageSettings, settings); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := deleteMeta(ctx, tx, postID, MetaCSS); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOption(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM options WHERE name=$1`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read option %s: %w", name, err)
	}
	return value, true, nil
}

func (s *PostgresStore) SetOption(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO options (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value=EXCLUDED.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("save option %s: %w", name, err)
	}
	return nil
}

// ListTemplates returns published templates ordered by title. typeFilter
// "all" (or empty) matches every template type.
func (s *PostgresStore) ListTemplates(ctx context.Context, typeFilter string) ([]Template, error) {
	if typeFilter == "" {
		typeFilter = TemplateTypeAll
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.title, COALESCE(m.meta_value, ''), p.created_at, p.modified_at
		FROM posts p
		LEFT JOIN post_meta m ON m.post_id = p.id AND m.meta_key = $1
		WHERE p.post_type = $2
			AND p.status = $3
			AND ($4 = 'all' OR m.meta_value = $4)
		ORDER BY p.title ASC, p.id ASC
		LIMIT $5
	`, MetaTemplateType, PostTypeTemplate, StatusPublish, typeFilter, templateListCap)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	items := make([]Template, 0)
	for rows.Next() {
		var item Template
		if err := rows.Scan(&item.ID, &item.Title, &item.Type, &item.CreatedAt, &item.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if item.Type == "" {
			item.Type = "unknown"
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func upsertMeta(ctx context.Context, db execer, postID int64, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO post_meta (post_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (post_id, meta_key) DO UPDATE SET meta_value=EXCLUDED.meta_value
	`, postID, key, value)
	if err != nil {
		return fmt.Errorf("save meta %s: %w", key, err)
	}
	return nil
}

func deleteMeta(ctx context.Context, db execer, postID int64, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM post_meta WHERE post_id=$1 AND meta_key=$2`, postID, key); err != nil {
		return fmt.Errorf("delete meta %s: %w", key, err)
	}
	return nil
}
