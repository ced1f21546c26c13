// Package service holds the post operations behind the HTTP handlers.
package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"postboard/internal/cache"
	"postboard/internal/models"
	"postboard/internal/observability"
	"postboard/internal/repository"
	"postboard/internal/tags"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	// RelatedLimit caps the number of posts returned by a related lookup.
	RelatedLimit = 5
)

type PostService struct {
	postRepo repository.PostRepository
	picker   *tags.Picker
	cache    *cache.Cache
}

type ListPostsInput struct {
	// Tag is matched as a single array element, never split.
	Tag   string
	Page  int
	Limit int
}

// CreateRelatedPostInput is the creation body. Tags is accepted but always
// replaced by a server-side pick.
type CreateRelatedPostInput struct {
	Title       string   `json:"title" validate:"required"`
	ImageURL    string   `json:"imageUrl" validate:"required,web_url"`
	Content     *string  `json:"content"`
	Featured    *bool    `json:"featured"`
	TotalVisits *int     `json:"totalVisits" validate:"omitempty,gte=0"`
	Tags        []string `json:"tags"`
}

// NewPostService wires the service. A nil picker uses a time-seeded one and a
// nil cache disables caching.
func NewPostService(postRepo repository.PostRepository, picker *tags.Picker, c *cache.Cache) *PostService {
	if picker == nil {
		picker = tags.NewPicker(nil)
	}
	if c == nil {
		c = cache.New(nil, 0)
	}
	return &PostService{
		postRepo: postRepo,
		picker:   picker,
		cache:    c,
	}
}

func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	page, limit := normalizePage(in.Page, in.Limit)
	if page-1 > math.MaxInt/limit {
		return nil, models.NewValidationError("Query parameter 'page' is out of range")
	}

	var posts []*models.Post
	key := s.cache.ListKey(ctx, in.Tag, page, limit)
	err := s.cache.Aside(ctx, key, &posts, func() error {
		var err error
		posts, err = s.postRepo.List(ctx, repository.ListFilter{
			Tag:    in.Tag,
			Limit:  limit,
			Offset: (page - 1) * limit,
		})
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return nonNil(posts), nil
}

// GetPostByID reports any failure, including a malformed id, as not found.
func (s *PostService) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	postID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, models.NewNotFoundError("Post", id)
	}

	var post models.Post
	err = s.cache.Aside(ctx, cache.PostKey(postID.String()), &post, func() error {
		p, err := s.postRepo.GetByID(ctx, postID)
		if err != nil {
			return err
		}
		post = *p
		return nil
	})
	if err != nil {
		observability.Logger.DebugContext(ctx, "post lookup failed", "id", id, "error", err)
		return nil, models.NewNotFoundError("Post", id)
	}
	return &post, nil
}

// GetRelatedPosts returns at most RelatedLimit posts sharing any of tagList.
// Blank tags are dropped; with nothing left no query is issued.
func (s *PostService) GetRelatedPosts(ctx context.Context, tagList []string) ([]*models.Post, error) {
	cleaned := tags.Normalize(tagList)
	if len(cleaned) == 0 {
		return []*models.Post{}, nil
	}

	var posts []*models.Post
	err := s.cache.Aside(ctx, s.cache.RelatedKey(ctx, cleaned), &posts, func() error {
		var err error
		posts, err = s.postRepo.FindRelated(ctx, cleaned, RelatedLimit)
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}
	if len(posts) > RelatedLimit {
		posts = posts[:RelatedLimit]
	}
	return nonNil(posts), nil
}

// CreateRelatedPost validates in, assigns random vocabulary tags and inserts
// the post, returning the stored row.
func (s *PostService) CreateRelatedPost(ctx context.Context, in CreateRelatedPostInput) (*models.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.ImageURL = strings.TrimSpace(in.ImageURL)

	if fields := validateStruct(&in); len(fields) > 0 {
		return nil, models.NewFieldValidationError(fields)
	}

	post := &models.Post{
		Title:       in.Title,
		ImageURL:    in.ImageURL,
		Content:     in.Content,
		Featured:    in.Featured,
		TotalVisits: in.TotalVisits,
		Tags:        pq.StringArray(s.picker.Pick()),
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, toAppError(err)
	}

	observability.PostsCreated.Inc()
	s.cache.InvalidateLists(ctx)
	observability.Logger.InfoContext(ctx, "post created", "id", post.ID, "tags", []string(post.Tags))
	return post, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = 1
	}
	return page, limit
}

func toAppError(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var storageErr *repository.StorageError
	if errors.As(err, &storageErr) {
		return models.NewStorageError(storageErr.Error(), err)
	}
	return models.NewStorageError(repository.StorageMessage(err), err)
}

func nonNil(posts []*models.Post) []*models.Post {
	if posts == nil {
		return []*models.Post{}
	}
	return posts
}
