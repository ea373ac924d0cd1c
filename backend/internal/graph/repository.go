package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"discord-agent/backend/pkg/logger"
)

// Repository handles all Neo4j operations for the memory vector index
type Repository struct {
	driver     neo4j.DriverWithContext
	database   string
	dimensions int
	logger     *zap.Logger
}

// NewRepository creates a new graph repository. database may be empty to use the
// server default; dimensions is the expected embedding length.
func NewRepository(driver neo4j.DriverWithContext, database string, dimensions int) *Repository {
	return &Repository{
		driver:     driver,
		database:   database,
		dimensions: dimensions,
		logger:     logger.Get(),
	}
}

// NewDriver opens and verifies a Neo4j driver
func NewDriver(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return driver, nil
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// Dimensions returns the configured vector length
func (r *Repository) Dimensions() int {
	return r.dimensions
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}
