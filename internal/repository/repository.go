package repository

import (
	"fmt"

	"github.com/yourusername/nse-analytics/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Bhavcopy BhavcopyRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Bhavcopy: NewPostgresBhavcopyRepository(db),
	}, nil
}
