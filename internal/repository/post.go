// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"strings"

	"postboard/internal/database"
	"postboard/internal/models"
	"postboard/internal/observability"
	"postboard/internal/tags"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListFilter selects one page of posts, newest first.
type ListFilter struct {
	// Tag, when set, keeps only posts whose tags contain it as an element.
	Tag    string
	Limit  int
	Offset int
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	List(ctx context.Context, filter ListFilter) ([]*models.Post, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error)
	FindRelated(ctx context.Context, tags []string, limit int) ([]*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
}

// postRepository implements PostRepository
type postRepository struct {
	gateway *database.Gateway
}

// NewPostRepository creates a new post repository
func NewPostRepository(gateway *database.Gateway) PostRepository {
	return &postRepository{gateway: gateway}
}

func (r *postRepository) db(ctx context.Context) *gorm.DB {
	return r.gateway.Client().WithContext(ctx)
}

func (r *postRepository) List(ctx context.Context, filter ListFilter) (posts []*models.Post, err error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "List", models.PostsTable)
	defer func() { observability.EndSpan(span, err) }()
	defer observability.TrackQuery("list", models.PostsTable)()

	query := r.db(ctx).Model(&models.Post{})
	if filter.Tag != "" {
		query = query.Where(`"tags" @> ?`, tags.Literal(filter.Tag))
	}

	err = query.
		Order(`"createdAt" DESC`).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&posts).Error
	if err != nil {
		return nil, storageError("list", err)
	}
	return posts, nil
}

func (r *postRepository) GetByID(ctx context.Context, id uuid.UUID) (post *models.Post, err error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "GetByID", models.PostsTable)
	defer func() { observability.EndSpan(span, err) }()
	defer observability.TrackQuery("get_by_id", models.PostsTable)()

	var p models.Post
	if err = r.db(ctx).Where(`"id" = ?`, id).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, storageError("get_by_id", err)
	}
	return &p, nil
}

// FindRelated returns up to limit posts sharing at least one of tagList. Callers
// must not pass an empty list; without predicates the query would match every row.
func (r *postRepository) FindRelated(ctx context.Context, tagList []string, limit int) (posts []*models.Post, err error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "FindRelated", models.PostsTable)
	defer func() { observability.EndSpan(span, err) }()
	defer observability.TrackQuery("find_related", models.PostsTable)()

	if len(tagList) == 0 {
		return []*models.Post{}, nil
	}

	conds := make([]string, 0, len(tagList))
	args := make([]interface{}, 0, len(tagList))
	for _, t := range tagList {
		conds = append(conds, `"tags" @> ?`)
		args = append(args, tags.Literal(t))
	}

	err = r.db(ctx).Model(&models.Post{}).
		Where(strings.Join(conds, " OR "), args...).
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, storageError("find_related", err)
	}
	return posts, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) (err error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "Create", models.PostsTable)
	defer func() { observability.EndSpan(span, err) }()
	defer observability.TrackQuery("create", models.PostsTable)()

	if err = r.db(ctx).Clauses(clause.Returning{}).Create(post).Error; err != nil {
		return storageError("create", err)
	}
	return nil
}

// StorageError is a failure reported by the database, carrying its message.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return StorageMessage(e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	observability.DatabaseQueryErrors.WithLabelValues(op).Inc()
	return &StorageError{Op: op, Err: err}
}

// StorageMessage extracts the server's own message from a Postgres error, or
// falls back to the error text.
func StorageMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	return err.Error()
}
