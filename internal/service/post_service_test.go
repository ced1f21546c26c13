package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"postboard/internal/cache"
	"postboard/internal/models"
	"postboard/internal/repository"
	"postboard/internal/tags"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	listFn        func(context.Context, repository.ListFilter) ([]*models.Post, error)
	getByIDFn     func(context.Context, uuid.UUID) (*models.Post, error)
	findRelatedFn func(context.Context, []string, int) ([]*models.Post, error)
	createFn      func(context.Context, *models.Post) error

	calls int
}

func (s *postRepoStub) List(ctx context.Context, filter repository.ListFilter) ([]*models.Post, error) {
	s.calls++
	return s.listFn(ctx, filter)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	s.calls++
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) FindRelated(ctx context.Context, tagList []string, limit int) ([]*models.Post, error) {
	s.calls++
	return s.findRelatedFn(ctx, tagList, limit)
}
func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	s.calls++
	return s.createFn(ctx, post)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		listFn:        func(_ context.Context, _ repository.ListFilter) ([]*models.Post, error) { return nil, nil },
		getByIDFn:     func(_ context.Context, _ uuid.UUID) (*models.Post, error) { return nil, gorm.ErrRecordNotFound },
		findRelatedFn: func(_ context.Context, _ []string, _ int) ([]*models.Post, error) { return nil, nil },
		createFn: func(_ context.Context, p *models.Post) error {
			p.ID = uuid.New()
			p.CreatedAt = time.Now()
			return nil
		},
	}
}

func fakePost(tagList ...string) *models.Post {
	return &models.Post{
		ID:        uuid.New(),
		Title:     gofakeit.Sentence(4),
		ImageURL:  gofakeit.URL(),
		Tags:      tagList,
		CreatedAt: gofakeit.Date(),
	}
}

func assertAppErrorCode(t *testing.T, err error, code string) *models.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func TestPostService_ListPosts_Pagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		in         ListPostsInput
		wantLimit  int
		wantOffset int
	}{
		{name: "first page", in: ListPostsInput{Page: 1, Limit: 10}, wantLimit: 10, wantOffset: 0},
		{name: "third page", in: ListPostsInput{Page: 3, Limit: 10}, wantLimit: 10, wantOffset: 20},
		{name: "zero page clamps", in: ListPostsInput{Page: 0, Limit: 5}, wantLimit: 5, wantOffset: 0},
		{name: "negative values clamp", in: ListPostsInput{Page: -2, Limit: -7}, wantLimit: 1, wantOffset: 0},
		{name: "tag passes through", in: ListPostsInput{Tag: "Crypto", Page: 2, Limit: 4}, wantLimit: 4, wantOffset: 4},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := noopPostRepo()
			var got repository.ListFilter
			repo.listFn = func(_ context.Context, f repository.ListFilter) ([]*models.Post, error) {
				got = f
				return nil, nil
			}

			posts, err := NewPostService(repo, nil, nil).ListPosts(context.Background(), tc.in)
			require.NoError(t, err)
			assert.NotNil(t, posts)
			assert.Empty(t, posts)
			assert.Equal(t, tc.in.Tag, got.Tag)
			assert.Equal(t, tc.wantLimit, got.Limit)
			assert.Equal(t, tc.wantOffset, got.Offset)
		})
	}
}

func TestPostService_ListPosts_PageOutOfRange(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	_, err := NewPostService(repo, nil, nil).ListPosts(context.Background(), ListPostsInput{Page: math.MaxInt / 5, Limit: 10})
	assertAppErrorCode(t, err, models.CodeValidation)
	assert.Zero(t, repo.calls)

	// The largest page whose offset still fits is served.
	var got repository.ListFilter
	repo.listFn = func(_ context.Context, f repository.ListFilter) ([]*models.Post, error) {
		got = f
		return nil, nil
	}
	page := math.MaxInt/10 + 1
	_, err = NewPostService(repo, nil, nil).ListPosts(context.Background(), ListPostsInput{Page: page, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, (page-1)*10, got.Offset)
	assert.GreaterOrEqual(t, got.Offset, 0)
}

func TestPostService_ListPosts_StorageError(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.listFn = func(_ context.Context, _ repository.ListFilter) ([]*models.Post, error) {
		return nil, &repository.StorageError{Op: "list", Err: errors.New("permission denied for table posts")}
	}

	_, err := NewPostService(repo, nil, nil).ListPosts(context.Background(), ListPostsInput{Page: 1, Limit: 10})
	appErr := assertAppErrorCode(t, err, models.CodeStorage)
	assert.Equal(t, "permission denied for table posts", appErr.Message)
}

func TestPostService_GetPostByID(t *testing.T) {
	t.Parallel()

	existing := fakePost("Crypto")

	repo := noopPostRepo()
	repo.getByIDFn = func(_ context.Context, id uuid.UUID) (*models.Post, error) {
		if id == existing.ID {
			return existing, nil
		}
		return nil, gorm.ErrRecordNotFound
	}
	svc := NewPostService(repo, nil, nil)

	t.Run("found", func(t *testing.T) {
		post, err := svc.GetPostByID(context.Background(), existing.ID.String())
		require.NoError(t, err)
		assert.Equal(t, existing.ID, post.ID)
		assert.Equal(t, existing.Title, post.Title)
	})

	t.Run("missing", func(t *testing.T) {
		id := uuid.NewString()
		_, err := svc.GetPostByID(context.Background(), id)
		appErr := assertAppErrorCode(t, err, models.CodeNotFound)
		assert.Equal(t, "Post with ID "+id+" not found", appErr.Message)
	})

	t.Run("malformed id", func(t *testing.T) {
		before := repo.calls
		_, err := svc.GetPostByID(context.Background(), "not-a-uuid")
		appErr := assertAppErrorCode(t, err, models.CodeNotFound)
		assert.Contains(t, appErr.Message, "not-a-uuid")
		assert.Equal(t, before, repo.calls)
	})
}

func TestPostService_GetPostByID_StorageFailureIsNotFound(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.getByIDFn = func(_ context.Context, _ uuid.UUID) (*models.Post, error) {
		return nil, errors.New("connection refused")
	}

	_, err := NewPostService(repo, nil, nil).GetPostByID(context.Background(), uuid.NewString())
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func TestPostService_GetRelatedPosts(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	var gotTags []string
	var gotLimit int
	repo.findRelatedFn = func(_ context.Context, tagList []string, limit int) ([]*models.Post, error) {
		gotTags, gotLimit = tagList, limit
		return []*models.Post{fakePost("a"), fakePost("b", "z"), fakePost("a", "b")}, nil
	}

	posts, err := NewPostService(repo, nil, nil).GetRelatedPosts(context.Background(), []string{" a ", "b", "  "})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, gotTags)
	assert.Equal(t, RelatedLimit, gotLimit)
	require.LessOrEqual(t, len(posts), RelatedLimit)
	for _, p := range posts {
		assert.True(t, containsAny(p.Tags, "a", "b"), "post %s has tags %v", p.ID, p.Tags)
	}
}

func TestPostService_GetRelatedPosts_CapsAtFive(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.findRelatedFn = func(_ context.Context, _ []string, _ int) ([]*models.Post, error) {
		out := make([]*models.Post, 0, 8)
		for i := 0; i < 8; i++ {
			out = append(out, fakePost("a"))
		}
		return out, nil
	}

	posts, err := NewPostService(repo, nil, nil).GetRelatedPosts(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, posts, RelatedLimit)
}

func TestPostService_GetRelatedPosts_EmptyTagsSkipStorage(t *testing.T) {
	t.Parallel()

	for _, in := range [][]string{nil, {}, {"", "   "}} {
		repo := noopPostRepo()
		posts, err := NewPostService(repo, nil, nil).GetRelatedPosts(context.Background(), in)
		require.NoError(t, err)
		assert.NotNil(t, posts)
		assert.Empty(t, posts)
		assert.Zero(t, repo.calls)
	}
}

func TestPostService_GetRelatedPosts_StorageError(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.findRelatedFn = func(_ context.Context, _ []string, _ int) ([]*models.Post, error) {
		return nil, &repository.StorageError{Op: "find_related", Err: errors.New("malformed array literal")}
	}

	_, err := NewPostService(repo, nil, nil).GetRelatedPosts(context.Background(), []string{"x"})
	appErr := assertAppErrorCode(t, err, models.CodeStorage)
	assert.Equal(t, "malformed array literal", appErr.Message)
}

func TestPostService_CreateRelatedPost_Validation(t *testing.T) {
	t.Parallel()

	negative := -1
	tests := []struct {
		name      string
		input     CreateRelatedPostInput
		wantField string
	}{
		{name: "missing title", input: CreateRelatedPostInput{ImageURL: "http://x/y.png"}, wantField: "title"},
		{name: "blank title", input: CreateRelatedPostInput{Title: "   ", ImageURL: "http://x/y.png"}, wantField: "title"},
		{name: "missing image url", input: CreateRelatedPostInput{Title: "T"}, wantField: "imageUrl"},
		{name: "malformed image url", input: CreateRelatedPostInput{Title: "T", ImageURL: "not a url"}, wantField: "imageUrl"},
		{name: "javascript image url", input: CreateRelatedPostInput{Title: "T", ImageURL: "javascript:alert(1)"}, wantField: "imageUrl"},
		{name: "mailto image url", input: CreateRelatedPostInput{Title: "T", ImageURL: "mailto:a@b"}, wantField: "imageUrl"},
		{name: "image url without host", input: CreateRelatedPostInput{Title: "T", ImageURL: "https:///a.png"}, wantField: "imageUrl"},
		{name: "negative visits", input: CreateRelatedPostInput{Title: "T", ImageURL: "http://x/y.png", TotalVisits: &negative}, wantField: "totalVisits"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := noopPostRepo()
			_, err := NewPostService(repo, tags.NewSeededPicker(1), nil).CreateRelatedPost(context.Background(), tc.input)
			appErr := assertAppErrorCode(t, err, models.CodeValidation)
			assert.Contains(t, appErr.Fields, tc.wantField)
			assert.Zero(t, repo.calls, "storage must not be called for invalid input")
		})
	}
}

func TestPostService_CreateRelatedPost_ReplacesTags(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	var inserted *models.Post
	repo.createFn = func(_ context.Context, p *models.Post) error {
		inserted = p
		p.ID = uuid.New()
		p.CreatedAt = time.Now()
		return nil
	}
	svc := NewPostService(repo, tags.NewSeededPicker(42), nil)

	for i := 0; i < 50; i++ {
		post, err := svc.CreateRelatedPost(context.Background(), CreateRelatedPostInput{
			Title:    "T",
			ImageURL: "http://x/y.png",
			Tags:     []string{"client", "supplied"},
		})
		require.NoError(t, err)
		assert.Same(t, inserted, post)
		assert.NotEqual(t, uuid.Nil, post.ID)
		assert.False(t, post.CreatedAt.IsZero())
		assert.Equal(t, "T", post.Title)
		assert.Equal(t, "http://x/y.png", post.ImageURL)
		assert.GreaterOrEqual(t, len(post.Tags), 1)
		assert.LessOrEqual(t, len(post.Tags), len(tags.Vocabulary)-1)
		assert.Subset(t, tags.Vocabulary, []string(post.Tags))
		assert.NotContains(t, post.Tags, "client")
	}
}

func TestPostService_CreateRelatedPost_NewPostScenario(t *testing.T) {
	t.Parallel()

	featured := true
	post, err := NewPostService(noopPostRepo(), tags.NewSeededPicker(7), nil).CreateRelatedPost(context.Background(), CreateRelatedPostInput{
		Title:    "New Post",
		ImageURL: "https://example.com/image.jpg",
		Featured: &featured,
	})
	require.NoError(t, err)
	require.NotNil(t, post.Featured)
	assert.True(t, *post.Featured)
	assert.Nil(t, post.Content)
	assert.NotEqual(t, uuid.Nil, post.ID)
	assert.False(t, post.CreatedAt.IsZero())
	assert.Subset(t, tags.Vocabulary, []string(post.Tags))
	assert.NotEmpty(t, post.Tags)
}

func TestPostService_CreateRelatedPost_AcceptsWebSchemes(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"http://x/y.png", "https://example.com/a.jpg", "ftp://files.example.com/b.gif", "HTTPS://example.com/c.png"} {
		_, err := NewPostService(noopPostRepo(), tags.NewSeededPicker(1), nil).CreateRelatedPost(context.Background(), CreateRelatedPostInput{Title: "T", ImageURL: u})
		assert.NoError(t, err, u)
	}
}

func TestPostService_CreateRelatedPost_StorageError(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.createFn = func(_ context.Context, _ *models.Post) error {
		return &repository.StorageError{Op: "create", Err: errors.New(`new row violates row-level security policy for table "posts"`)}
	}

	_, err := NewPostService(repo, nil, nil).CreateRelatedPost(context.Background(), CreateRelatedPostInput{Title: "T", ImageURL: "http://x/y.png"})
	appErr := assertAppErrorCode(t, err, models.CodeStorage)
	assert.Contains(t, appErr.Message, "row-level security")
}

func TestPostService_CachedListInvalidatedOnCreate(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	repo := noopPostRepo()
	stored := []*models.Post{fakePost("Crypto")}
	repo.listFn = func(_ context.Context, _ repository.ListFilter) ([]*models.Post, error) {
		return stored, nil
	}
	svc := NewPostService(repo, tags.NewSeededPicker(3), cache.New(rdb, time.Minute))
	ctx := context.Background()
	in := ListPostsInput{Page: 1, Limit: 10}

	first, err := svc.ListPosts(ctx, in)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = svc.ListPosts(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls, "second listing should be served from cache")

	_, err = svc.CreateRelatedPost(ctx, CreateRelatedPostInput{Title: "T", ImageURL: "http://x/y.png"})
	require.NoError(t, err)
	stored = append(stored, fakePost("Global"))

	after, err := svc.ListPosts(ctx, in)
	require.NoError(t, err)
	assert.Len(t, after, 2)
}

func TestPostService_CachedGetByID(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	existing := fakePost("Leaks", "Security")
	repo := noopPostRepo()
	repo.getByIDFn = func(_ context.Context, _ uuid.UUID) (*models.Post, error) {
		return existing, nil
	}
	svc := NewPostService(repo, nil, cache.New(rdb, time.Minute))

	for i := 0; i < 3; i++ {
		post, err := svc.GetPostByID(context.Background(), existing.ID.String())
		require.NoError(t, err)
		assert.Equal(t, existing.ID, post.ID)
		assert.ElementsMatch(t, existing.Tags, post.Tags)
	}
	assert.Equal(t, 1, repo.calls)
	assert.True(t, mr.Exists(cache.PostKey(existing.ID.String())))
}

func TestPostService_CachedRelatedKeepsTagSetsApart(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	repo := noopPostRepo()
	repo.findRelatedFn = func(_ context.Context, tagList []string, _ int) ([]*models.Post, error) {
		return []*models.Post{fakePost(tagList...)}, nil
	}
	svc := NewPostService(repo, nil, cache.New(rdb, time.Minute))
	ctx := context.Background()

	first, err := svc.GetRelatedPosts(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.GetRelatedPosts(ctx, []string{"a\x1fb"})
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, 2, repo.calls)
	assert.ElementsMatch(t, []string{"a\x1fb"}, second[0].Tags)
}

func containsAny(have []string, want ...string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
