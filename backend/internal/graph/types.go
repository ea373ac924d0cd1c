package graph

import "fmt"

const (
	// VectorLabel is the node label holding memory embeddings
	VectorLabel = "MemoryVector"
	// VectorIndexName is the name of the vector index over VectorLabel.embedding
	VectorIndexName = "memory_embeddings"
	// GuildIndexName is the property index Search filters on before ranking
	GuildIndexName = "memory_vector_guild"
)

// ErrDimensionMismatch is returned when the existing index or a vector has the wrong length
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
