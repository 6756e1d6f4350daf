package dictionary

import (
	"context"

	"github.com/datafire-practice/patient-registry-backend/pkg/pagination"
)

// Repository is the persistent dictionary table.
type Repository interface {
	GetByCode(ctx context.Context, code string) (*Entry, error)
	ListAll(ctx context.Context) ([]Entry, error)
	// Search matches query case-insensitively against code or name. A blank
	// query returns the page over the whole table.
	Search(ctx context.Context, query string, p pagination.Params) ([]Entry, int, error)
	// Replace deletes every row and writes entries in their place.
	Replace(ctx context.Context, entries []Entry) (int, error)
	Count(ctx context.Context) (int, error)
}
