// Package actions holds the named callables flows invoke from their instructions.
package actions

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Call is what a handler receives. State is read-only; return a new
// domain.State (or map) to replace it.
type Call struct {
	ConversationID string
	State          *domain.StateView
	Event          domain.Event
	Args           map[string]any
}

// Handler implements an action.
type Handler func(ctx context.Context, call Call) (any, error)

// Metadata describes an action for authoring tools.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Type        string `json:"type,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// MetadataProvider resolves metadata for an action by name, or returns nil.
type MetadataProvider func(name string) *Metadata

// Action is a registered handler plus its resolved metadata.
type Action struct {
	Name     string    `json:"name"`
	Metadata *Metadata `json:"metadata,omitempty"`
	handler  Handler
}

// Definition is one entry of a bulk registration.
type Definition struct {
	Handler  Handler
	Metadata *Metadata
}

// Registry manages the available actions.
type Registry struct {
	mu        sync.RWMutex
	actions   map[string]*Action
	providers []MetadataProvider
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]*Action),
	}
}

type registerOptions struct {
	overwrite bool
	metadata  *Metadata
}

// RegisterOption configures a single registration.
type RegisterOption func(*registerOptions)

// WithOverwrite replaces an existing action of the same name instead of failing.
func WithOverwrite() RegisterOption {
	return func(o *registerOptions) {
		o.overwrite = true
	}
}

// WithMetadata attaches explicit metadata. Its non-zero fields win over providers.
func WithMetadata(m *Metadata) RegisterOption {
	return func(o *registerOptions) {
		o.metadata = m
	}
}

// Register adds an action. It fails with DuplicateActionError if the name is
// taken and WithOverwrite was not given.
func (r *Registry) Register(name string, fn Handler, opts ...RegisterOption) error {
	if name == "" {
		return errors.New("action name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("action %q has no handler", name)
	}

	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists && !o.overwrite {
		return &domain.DuplicateActionError{Name: name}
	}

	r.actions[name] = &Action{
		Name:     name,
		Metadata: mergeMetadata(r.lookupProviders(name), o.metadata),
		handler:  fn,
	}
	return nil
}

// RegisterAll registers several actions. It checks every name before registering
// any, so a conflict leaves the registry untouched.
func (r *Registry) RegisterAll(defs map[string]Definition, overwrite bool) error {
	if !overwrite {
		r.mu.RLock()
		for name := range defs {
			if _, exists := r.actions[name]; exists {
				r.mu.RUnlock()
				return &domain.DuplicateActionError{Name: name}
			}
		}
		r.mu.RUnlock()
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := defs[name]
		opts := []RegisterOption{WithMetadata(def.Metadata)}
		if overwrite {
			opts = append(opts, WithOverwrite())
		}
		if err := r.Register(name, def.Handler, opts...); err != nil {
			return err
		}
	}
	return nil
}

// RegisterMetadataProvider appends a provider. Registering the same function twice is an error.
func (r *Registry) RegisterMetadataProvider(p MetadataProvider) error {
	if p == nil {
		return errors.New("metadata provider cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ptr := reflect.ValueOf(p).Pointer()
	for _, existing := range r.providers {
		if reflect.ValueOf(existing).Pointer() == ptr {
			return errors.New("metadata provider already registered")
		}
	}
	r.providers = append(r.providers, p)

	// Actions registered earlier without metadata may now resolve some.
	for name, a := range r.actions {
		if a.Metadata == nil {
			a.Metadata = p(name)
		}
	}
	return nil
}

// lookupProviders asks each provider in order; the first non-nil answer wins.
// Callers must hold r.mu.
func (r *Registry) lookupProviders(name string) *Metadata {
	for _, p := range r.providers {
		if m := p(name); m != nil {
			return m
		}
	}
	return nil
}

func mergeMetadata(base, explicit *Metadata) *Metadata {
	if base == nil && explicit == nil {
		return nil
	}
	out := Metadata{}
	if base != nil {
		out = *base
	}
	if explicit == nil {
		return &out
	}
	if explicit.Title != "" {
		out.Title = explicit.Title
	}
	if explicit.Description != "" {
		out.Description = explicit.Description
	}
	if explicit.Category != "" {
		out.Category = explicit.Category
	}
	if explicit.Type != "" {
		out.Type = explicit.Type
	}
	if explicit.Required {
		out.Required = true
	}
	if explicit.Default != nil {
		out.Default = explicit.Default
	}
	return &out
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actions[name]
	if !ok {
		return Action{}, false
	}
	return *a, true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns every registered name, internal ones included, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available lists the public actions (names not starting with "__"), sorted by name.
func (r *Registry) Available() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Action, 0, len(r.actions))
	for name, a := range r.actions {
		if strings.HasPrefix(name, "__") {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs the named action.
func (r *Registry) Invoke(ctx context.Context, name string, call Call) (any, error) {
	a, ok := r.Lookup(name)
	if !ok {
		return nil, &domain.LookupError{Kind: "action", Name: name}
	}
	return a.handler(ctx, call)
}

// DecodeArgs decodes an action's args into a typed struct.
// Values are converted weakly ("3" fills an int), matching how flows are authored.
func DecodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid action arguments: %w", err)
	}
	return nil
}
