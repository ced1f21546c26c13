package server

import (
	"fmt"
	"strconv"
	"strings"

	"postboard/internal/models"

	"github.com/gofiber/fiber/v2"
)

// queryInt reads an optional integer query parameter. Absent or empty values
// yield def; anything that is not an integer is a validation error.
func queryInt(c *fiber.Ctx, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.NewValidationError(fmt.Sprintf("Query parameter '%s' must be an integer", name))
	}
	return n, nil
}
