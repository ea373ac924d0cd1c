package graph

import (
	"errors"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getFloat64FromRecord(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0.0
	}
	if f, ok := val.(float64); ok {
		return f
	}
	if i, ok := val.(int64); ok {
		return float64(i)
	}
	return 0.0
}

func getStringSliceFromRecord(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return []string{}
	}
	if slice, ok := val.([]interface{}); ok {
		result := make([]string, 0, len(slice))
		for _, v := range slice {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return []string{}
}

// indexDimensions reads `vector.dimensions` out of a SHOW INDEXES options map
func indexDimensions(options interface{}) (int, bool) {
	opts, ok := options.(map[string]interface{})
	if !ok {
		return 0, false
	}
	cfg, ok := opts["indexConfig"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	switch v := cfg["vector.dimensions"].(type) {
	case int64:
		return int(v), true
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// isAlreadyExists reports whether err is a schema "already exists" error, which a
// concurrent index creation can raise even with IF NOT EXISTS
func isAlreadyExists(err error) bool {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return strings.Contains(neoErr.Code, "AlreadyExists")
	}
	return false
}
