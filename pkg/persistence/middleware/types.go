// Package middleware decorates record stores, e.g. to encrypt records at rest.
package middleware

import "github.com/aretw0/parley/pkg/ports"

// Middleware wraps a RecordStore to add behavior.
type Middleware func(ports.RecordStore) ports.RecordStore

// Chain applies the middleware in order: the first one is the outermost.
func Chain(store ports.RecordStore, mws ...Middleware) ports.RecordStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// indexed keeps the ActivityIndex of the wrapped store visible.
type indexed struct {
	ports.RecordStore
	ports.ActivityIndex
}

// preserveIndex returns wrapped, still implementing ports.ActivityIndex when next did.
func preserveIndex(wrapped, next ports.RecordStore) ports.RecordStore {
	if idx, ok := next.(ports.ActivityIndex); ok {
		return indexed{RecordStore: wrapped, ActivityIndex: idx}
	}
	return wrapped
}
