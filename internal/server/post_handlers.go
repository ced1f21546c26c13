package server

import (
	"strings"

	"postboard/internal/models"
	"postboard/internal/service"
	"postboard/internal/tags"

	"github.com/gofiber/fiber/v2"
)

// GetPosts godoc
// @Summary Get paginated posts, optionally filtered by tag
// @Tags posts
// @Produce json
// @Param tags query string false "Single tag the post must carry"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Posts per page" default(10)
// @Success 200 {array} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	ctx := c.UserContext()

	page, err := queryInt(c, "page", service.DefaultPage)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	limit, err := queryInt(c, "limit", service.DefaultLimit)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	posts, err := s.postService.ListPosts(ctx, service.ListPostsInput{
		Tag:   strings.TrimSpace(c.Query("tags")),
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// GetRelatedPosts godoc
// @Summary Get related posts by tags
// @Tags posts
// @Produce json
// @Param tags query string true "Comma-separated tags"
// @Success 200 {array} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /posts/related [get]
func (s *Server) GetRelatedPosts(c *fiber.Ctx) error {
	raw := c.Query("tags")
	if raw == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Query parameter 'tags' is required"))
	}

	posts, err := s.postService.GetRelatedPosts(c.UserContext(), tags.Split(raw))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// GetPost godoc
// @Summary Get a post by ID
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.postService.GetPostByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// CreateRelatedPost godoc
// @Summary Create a post with random tags
// @Description Client-supplied tags are ignored; the server assigns a random subset of the tag vocabulary.
// @Tags posts
// @Accept json
// @Produce json
// @Param post body service.CreateRelatedPostInput true "Post to create"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /posts/related [post]
func (s *Server) CreateRelatedPost(c *fiber.Ctx) error {
	var req service.CreateRelatedPostInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.CreateRelatedPost(c.UserContext(), req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}
