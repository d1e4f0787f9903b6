package registry

import "context"

// Store persists pipeline definitions outside the process so a fleet of
// engines can share one set of pipelines. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save writes one definition under name, replacing any previous value.
	Save(ctx context.Context, name, definitionJSON string) error
	// Delete removes a definition. Deleting an absent name is not an error.
	Delete(ctx context.Context, name string) error
	// LoadAll returns every stored definition keyed by name.
	LoadAll(ctx context.Context) (map[string]string, error)
	// Close releases the underlying connection.
	Close() error
}
