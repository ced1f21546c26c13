// Package seed creates demo posts for local development. Posts go through the
// same creation path as the API, so they get vocabulary tags the same way.
package seed

import (
	"context"
	"fmt"

	"postboard/internal/models"
	"postboard/internal/observability"
	"postboard/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

// Factory builds and persists fake posts.
type Factory struct {
	posts *service.PostService
	faker *gofakeit.Faker
}

// NewFactory returns a Factory. A zero seed draws a random one.
func NewFactory(posts *service.PostService, seed int64) *Factory {
	return &Factory{posts: posts, faker: gofakeit.New(seed)}
}

// BuildInput returns a creation body filled with fake content.
func (f *Factory) BuildInput() service.CreateRelatedPostInput {
	content := f.faker.Paragraph(1, 3, 5, "\n")
	featured := f.faker.Number(1, 10) == 1
	visits := f.faker.Number(0, 5000)

	return service.CreateRelatedPostInput{
		Title:       f.faker.Sentence(5),
		ImageURL:    fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID()),
		Content:     &content,
		Featured:    &featured,
		TotalVisits: &visits,
	}
}

// SeedPosts creates n posts and returns them in creation order. It stops at
// the first failure.
func (f *Factory) SeedPosts(ctx context.Context, n int) ([]*models.Post, error) {
	created := make([]*models.Post, 0, n)
	for i := 0; i < n; i++ {
		post, err := f.posts.CreateRelatedPost(ctx, f.BuildInput())
		if err != nil {
			return created, fmt.Errorf("seed post %d of %d: %w", i+1, n, err)
		}
		created = append(created, post)
	}
	observability.Logger.InfoContext(ctx, "seeded posts", "count", len(created))
	return created, nil
}
