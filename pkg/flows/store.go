package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/go-playground/validator/v10"
)

// FlowPattern matches every executable flow file.
const FlowPattern = "**/*" + domain.FlowSuffix

// ErrWatchUnsupported is returned by Watch when the storage cannot report changes.
var ErrWatchUnsupported = errors.New("flow storage does not support watching")

// Store loads and saves flows through a FlowStorage.
type Store struct {
	storage  ports.FlowStorage
	logger   *slog.Logger
	validate *validator.Validate

	mu        sync.RWMutex
	listeners []func()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report dropped flows.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store over the given storage.
func New(storage ports.FlowStorage, opts ...Option) *Store {
	s := &Store{
		storage:  storage,
		logger:   logging.NewNop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// layoutFile is the on-disk shape of "<name>.ui.json".
type layoutFile struct {
	Nodes []layoutNode `json:"nodes"`
}

type layoutNode struct {
	ID       string             `json:"id,omitempty"`
	Name     string             `json:"name,omitempty"`
	Position *domain.Position2D `json:"position"`
}

// LoadAll reads every flow file, drops (and logs) the invalid ones and returns
// the rest sorted by name.
func (s *Store) LoadAll(ctx context.Context) ([]domain.Flow, error) {
	paths, err := s.storage.List(ctx, FlowPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	flows := make([]domain.Flow, 0, len(paths))
	for _, path := range paths {
		flow, err := s.loadFlow(ctx, path)
		if err != nil {
			s.logger.Warn("Dropping invalid flow", "flow", path, "err", err)
			continue
		}
		if flow == nil {
			continue
		}
		flows = append(flows, *flow)
	}

	sort.Slice(flows, func(i, j int) bool { return flows[i].Name < flows[j].Name })
	s.logger.Debug("Flows loaded", "count", len(flows), "files", len(paths))
	return flows, nil
}

func (s *Store) loadFlow(ctx context.Context, path string) (*domain.Flow, error) {
	data, err := s.storage.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var flow domain.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, &domain.ValidationError{Flow: path, Err: err}
	}
	flow.Name = path

	if err := s.Validate(&flow); err != nil {
		return nil, err
	}

	if err := s.mergeLayout(ctx, &flow); err != nil {
		s.logger.Warn("Ignoring unreadable layout", "flow", path, "err", err)
	}
	return &flow, nil
}

func (s *Store) mergeLayout(ctx context.Context, flow *domain.Flow) error {
	data, err := s.storage.Read(ctx, domain.LayoutFileFor(flow.Name))
	if err != nil || data == nil {
		return err
	}

	var layout layoutFile
	if err := json.Unmarshal(data, &layout); err != nil {
		return err
	}

	for _, ln := range layout.Nodes {
		if ln.Position == nil {
			continue
		}
		for i := range flow.Nodes {
			n := &flow.Nodes[i]
			if (ln.Name != "" && ln.Name == n.Name) || (ln.ID != "" && ln.ID == n.ID) {
				pos := *ln.Position
				n.Position = &pos
			}
		}
	}
	return nil
}

// Validate checks a flow against the schema.
func (s *Store) Validate(flow *domain.Flow) error {
	err := s.validate.Struct(flow)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		err = errors.New(strings.Join(msgs, "; "))
	}
	return &domain.ValidationError{Flow: flow.Name, Err: err}
}

// SaveFlows replaces the whole flow set.
//
// The set must contain the entry flow and every flow must be valid; nothing is
// written otherwise. Flow and layout files absent from the set are deleted.
//
// Writes are not atomic. Once writing starts, listeners are notified even if a
// write fails, so they reload whatever reached the storage.
func (s *Store) SaveFlows(ctx context.Context, edits []domain.FlowEdit) error {
	keep := make(map[string]bool, len(edits)*2)
	flows := make([]domain.Flow, 0, len(edits))
	for _, edit := range edits {
		flow := edit.Flow
		flow.Name = edit.Name
		if err := s.Validate(&flow); err != nil {
			return err
		}
		flows = append(flows, flow)
		keep[flow.Name] = true
		keep[domain.LayoutFileFor(flow.Name)] = true
	}
	if !keep[domain.DefaultFlow] {
		return &domain.ValidationError{Err: fmt.Errorf("flow set must include %s", domain.DefaultFlow)}
	}

	defer s.emit()
	for _, flow := range flows {
		if err := s.writeFlow(ctx, flow); err != nil {
			s.logger.Error("Flow save aborted", "flow", flow.Name, "err", err)
			return err
		}
	}

	if err := s.deleteStale(ctx, keep); err != nil {
		s.logger.Error("Flow save aborted", "err", err)
		return err
	}

	s.logger.Info("Flows saved", "count", len(flows))
	return nil
}

func (s *Store) writeFlow(ctx context.Context, flow domain.Flow) error {
	layout := layoutFile{Nodes: make([]layoutNode, 0, len(flow.Nodes))}
	nodes := make([]domain.Node, len(flow.Nodes))
	for i, n := range flow.Nodes {
		if n.Position != nil {
			layout.Nodes = append(layout.Nodes, layoutNode{ID: n.ID, Name: n.Name, Position: n.Position})
		}
		n.Position = nil
		nodes[i] = n
	}
	flow.Nodes = nodes

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode flow %s: %w", flow.Name, err)
	}
	if err := s.storage.Write(ctx, flow.Name, data); err != nil {
		return fmt.Errorf("failed to write flow %s: %w", flow.Name, err)
	}

	data, err = json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode layout of %s: %w", flow.Name, err)
	}
	if err := s.storage.Write(ctx, domain.LayoutFileFor(flow.Name), data); err != nil {
		return fmt.Errorf("failed to write layout of %s: %w", flow.Name, err)
	}
	return nil
}

func (s *Store) deleteStale(ctx context.Context, keep map[string]bool) error {
	for _, pattern := range []string{FlowPattern, "**/*" + domain.LayoutSuffix} {
		paths, err := s.storage.List(ctx, pattern)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", pattern, err)
		}
		for _, path := range paths {
			if keep[path] {
				continue
			}
			if err := s.storage.Delete(ctx, path); err != nil {
				return fmt.Errorf("failed to delete %s: %w", path, err)
			}
			s.logger.Debug("Deleted stale flow file", "path", path)
		}
	}
	return nil
}

// OnFlowsChanged subscribes fn to the flowsChanged signal.
func (s *Store) OnFlowsChanged(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) emit() {
	s.mu.RLock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

// Watch forwards external changes of the storage as flowsChanged signals until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watchable, ok := s.storage.(ports.Watchable)
	if !ok {
		return ErrWatchUnsupported
	}

	events, err := watchable.Watch(ctx)
	if err != nil {
		return err
	}

	go func() {
		for path := range events {
			s.logger.Debug("Flow storage changed", "path", path)
			s.emit()
		}
	}()
	return nil
}
