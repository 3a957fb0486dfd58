package app

import (
	"context"
	"fmt"
	"time"

	scriptruntime "github.com/llmspell/spellkernel/src/kernel/gateway/script-runtime"
	"github.com/llmspell/spellkernel/src/kernel/gateway/statestore"
	"github.com/llmspell/spellkernel/src/kernel/handler"
	"github.com/llmspell/spellkernel/src/kernel/internal/clock"
	"github.com/llmspell/spellkernel/src/kernel/internal/connectionfile"
	"github.com/llmspell/spellkernel/src/kernel/internal/core"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol/protocolfx"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport/transportfx"
	"github.com/llmspell/spellkernel/src/kernel/repository/client"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/fx"
)

const (
	_metricsConfigKey = "metrics"
	_defaultPrefix    = "spellkernel"
	_reportInterval   = time.Second
)

// Module defines the kernel application module.
var Module = fx.Options(
	scriptruntime.Module, // outbounds
	statestore.Module,
	handler.Module, // inbounds
	client.Module,
	transportfx.Module,
	protocolfx.Module,
	connectionfile.Module,
	executor.Module,
	clock.Module,
	fs.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(newScope),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        EnvLocal,
			RuntimeEnvironment: EnvLocal,
		}
	}),
)

// MetricsConfig is the metrics section of the configuration.
type MetricsConfig struct {
	Prefix string `yaml:"prefix"`
}

// ScopeParams are the inputs to newScope.
type ScopeParams struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Env       Context
}

// newScope creates the root metrics scope. Metrics are dropped unless a reporter is wired in.
func newScope(p ScopeParams) (tally.Scope, error) {
	cfg := MetricsConfig{Prefix: _defaultPrefix}
	if err := p.Config.Get(_metricsConfigKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _metricsConfigKey, err)
	}

	rs, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix: cfg.Prefix,
		Tags: map[string]string{
			"service":     "spellkernel",
			"environment": p.Env.Environment,
		},
	}, _reportInterval)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closer.Close()
		},
	})
	return rs, nil
}
