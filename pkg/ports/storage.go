package ports

import "context"

// FlowStorage is the file collaborator flows are loaded from and saved to.
type FlowStorage interface {
	// List returns the paths matching a glob pattern (doublestar syntax, e.g. "**/*.flow.json").
	List(ctx context.Context, pattern string) ([]string, error)

	// Read returns the file contents, or (nil, nil) if the path does not exist.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write creates or replaces a file.
	Write(ctx context.Context, path string, data []byte) error

	// Delete removes a file. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error
}

// Watchable is implemented by storages that can report external changes.
type Watchable interface {
	// Watch emits the path of every changed file until ctx is canceled.
	Watch(ctx context.Context) (<-chan string, error)
}
