package metadata

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/quartzite-io/quartzite-go/internal/core/domain"
	"github.com/quartzite-io/quartzite-go/pkg/cmap"
)

// ErrSchemaConflict reports an attempt to register a schema whose path is
// already taken by a different definition.
var ErrSchemaConflict = errors.New("metadata: conflicting schema for path")

// Registry holds the registered timeseries schemas, keyed by full path.
type Registry struct {
	schemas *cmap.Map[string, domain.SchemaEntry]
	logger  *slog.Logger
}

// NewRegistry creates an empty schema registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		schemas: cmap.New[string, domain.SchemaEntry](),
		logger:  logger,
	}
}

// RegisterSchema registers a schema. Registering the same schema again is a
// no-op; registering a different schema under an existing path is an error.
func (r *Registry) RegisterSchema(schema domain.SchemaEntry) error {
	existing, existed := r.schemas.GetOrSet(schema.Path, schema)
	if !existed {
		r.logger.Debug("schema registered", "path", schema.Path)
		return nil
	}
	if existing != schema {
		return fmt.Errorf("%w: %s", ErrSchemaConflict, schema.Path)
	}
	return nil
}

// Get returns the schema registered under path.
func (r *Registry) Get(path string) (domain.SchemaEntry, bool) {
	return r.schemas.Get(path)
}

// Count returns the number of registered schemas.
func (r *Registry) Count() int {
	return r.schemas.Count()
}
