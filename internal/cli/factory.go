// Package cli builds a Bot from configuration and implements the interactive
// commands of the parley binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/loam"
	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/pkg/adapters/file"
	parleyhttp "github.com/aretw0/parley/pkg/adapters/http"
	parleyloam "github.com/aretw0/parley/pkg/adapters/loam"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/postgres"
	"github.com/aretw0/parley/pkg/adapters/process"
	redisadapter "github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/output"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// webhookRetryWait is the pause between webhook delivery attempts.
const webhookRetryWait = 500 * time.Millisecond

// Runtime is a Bot plus the resources built for it.
type Runtime struct {
	Bot      *parley.Bot
	Registry *prometheus.Registry
	Streams  *parleyhttp.StreamManager

	closers []func(context.Context) error
}

// Close shuts the bot down, then releases storage connections and the tracer.
func (r *Runtime) Close(ctx context.Context) error {
	errs := []error{r.Bot.Close(ctx)}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// Build wires a Bot from cfg. Extra options are applied last.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...parley.Option) (*Runtime, error) {
	rt := &Runtime{
		Registry: prometheus.NewRegistry(),
		Streams:  parleyhttp.NewStreamManager(logger),
	}
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	fail := func(err error) (*Runtime, error) {
		for i := len(rt.closers) - 1; i >= 0; i-- {
			_ = rt.closers[i](ctx)
		}
		return nil, err
	}

	flowStorage, err := newFlowStorage(cfg.Flows)
	if err != nil {
		return fail(err)
	}

	opts := []parley.Option{
		parley.WithLogger(logger),
		parley.WithFlowStorage(flowStorage),
		parley.WithDefaultFlow(cfg.Flows.DefaultFlow),
		parley.WithConditionTimeout(cfg.Evaluator.Timeout),
		parley.WithRetries(cfg.Queue.MaxRetries, cfg.Queue.RetryDelay),
		parley.WithMetrics(rt.Registry),
		parley.WithOutput(rt.Streams),
	}
	if cfg.Janitor.Enabled {
		opts = append(opts, parley.WithJanitor(cfg.Janitor.Interval, cfg.Janitor.Inactivity))
	} else {
		opts = append(opts, parley.WithoutJanitor())
	}

	var records ports.RecordStore
	switch cfg.Sessions.Driver {
	case "redis":
		r := cfg.Sessions.Redis
		store := redisadapter.New(r.Addr, r.Password, r.DB,
			redisadapter.WithPrefix(r.Prefix),
			redisadapter.WithTTL(r.TTL),
		)
		rt.closers = append(rt.closers, func(context.Context) error { return store.Close() })
		if err := store.Client().Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("failed to reach redis at %s: %w", r.Addr, err))
		}
		records = store
		opts = append(opts, parley.WithLocker(redisadapter.NewLocker(store.Client(), r.Prefix), r.LockTTL))
	case "postgres":
		p := cfg.Sessions.Postgres
		store, err := postgres.Open(ctx, p.DSN, postgres.WithTable(p.Table))
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return store.Close() })
		records = store
	default:
		records = memory.NewStore()
	}

	if cfg.Sessions.EncryptionKey != "" {
		mw, err := newEncryption(cfg.Sessions)
		if err != nil {
			return fail(err)
		}
		records = middleware.Chain(records, mw)
	}
	opts = append(opts, parley.WithRecordStore(records))

	if cfg.Webhook.URL != "" {
		opts = append(opts, parley.WithOutput(output.NewWebhook("webhook", cfg.Webhook.URL,
			output.WithWebhookTimeout(cfg.Webhook.Timeout),
			output.WithWebhookRetries(cfg.Webhook.Retries, webhookRetryWait),
		)))
	}

	processes, err := process.LoadConfigs(cfg.Actions.File)
	if err != nil {
		return fail(err)
	}
	processes = append(processes, cfg.Actions.Process...)
	if len(processes) > 0 {
		runner := process.NewRunner(
			process.WithRegistry(processes),
			process.WithBaseDir(cfg.Actions.WorkDir),
			process.WithLogger(logger),
		)
		opts = append(opts, parley.WithActions(runner.Definitions()))
	}

	if cfg.Tracing.Endpoint != "" {
		shutdown, err := observability.InitTracer(ctx, cfg.Tracing.ServiceName, parley.Version, cfg.Tracing.Endpoint)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, shutdown)
	}

	bot, err := parley.New(append(opts, extra...)...)
	if err != nil {
		return fail(err)
	}
	rt.Bot = bot

	logger.Info("Bot ready",
		"flows", cfg.Flows.Dir,
		"flow_driver", cfg.Flows.Driver,
		"session_driver", cfg.Sessions.Driver,
		"janitor", cfg.Janitor.Enabled,
		"encrypted", cfg.Sessions.EncryptionKey != "",
		"process_actions", len(processes),
	)
	return rt, nil
}

// newFlowStorage opens the flow storage described by cfg.
func newFlowStorage(cfg config.Flows) (ports.FlowStorage, error) {
	switch cfg.Driver {
	case "loam":
		abs, err := filepath.Abs(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("invalid flows dir: %w", err)
		}
		repo, err := loam.Init(abs, loam.WithVersioning(false))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize loam: %w", err)
		}
		return parleyloam.New(loam.NewTypedRepository[parleyloam.Document](repo)), nil
	case "memory":
		return memory.NewFlowStorage(nil), nil
	default:
		return file.New(cfg.Dir), nil
	}
}

// newEncryption builds the record encryption middleware from the configured keys.
func newEncryption(cfg config.Sessions) (middleware.Middleware, error) {
	active, err := middleware.DecodeKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid sessions.encryptionKey: %w", err)
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range cfg.FallbackKeys {
		key, err := middleware.DecodeKey(k)
		if err != nil {
			return nil, fmt.Errorf("invalid sessions.fallbackKeys[%d]: %w", i, err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	return middleware.NewEncryption(enc)
}
