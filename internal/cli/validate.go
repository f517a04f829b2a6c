package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/pkg/flows"
)

// Report is the outcome of Validate.
type Report struct {
	Loaded  int
	Dropped []string
	Issues  []flows.Issue
}

// OK reports whether every flow loaded and no reference dangles.
func (r Report) OK() bool {
	return len(r.Dropped) == 0 && len(r.Issues) == 0
}

// Validate loads the configured flows and lints them. Flows failing the
// schema are listed as dropped; the reason is logged by the flow store.
func Validate(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Report, error) {
	storage, err := newFlowStorage(cfg.Flows)
	if err != nil {
		return Report{}, err
	}
	store := flows.New(storage, flows.WithLogger(logger))

	paths, err := storage.List(ctx, flows.FlowPattern)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list flows: %w", err)
	}
	set, err := store.LoadAll(ctx)
	if err != nil {
		return Report{}, err
	}

	loaded := make(map[string]bool, len(set))
	for _, f := range set {
		loaded[f.Name] = true
	}

	report := Report{Loaded: len(set), Issues: flows.Lint(set)}
	for _, path := range paths {
		if !loaded[path] {
			report.Dropped = append(report.Dropped, path)
			report.Issues = append(report.Issues, flows.Issue{Flow: path, Message: "failed schema validation"})
		}
	}
	if !loaded[cfg.Flows.DefaultFlow] {
		report.Issues = append(report.Issues, flows.Issue{Flow: cfg.Flows.DefaultFlow, Message: "entry flow is missing"})
	}
	return report, nil
}
