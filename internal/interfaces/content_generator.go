package interfaces

import (
	"context"

	"github.com/ternarybob/inkwell/internal/models"
)

// ContentGenerator is the AI client boundary. Each call returns the model's
// raw text; parsing and retry policy belong to the stage workers.
type ContentGenerator interface {
	GenerateTitles(ctx context.Context, payload models.TitlePayload) (string, error)
	GenerateOutline(ctx context.Context, payload models.OutlinePayload) (string, error)
	GenerateBlog(ctx context.Context, payload models.BlogPayload) (string, error)
}
