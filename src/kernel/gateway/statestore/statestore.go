// Package statestore persists session state so that a session recreated after a restart or a
// reconnect picks up its execution count, history and variables.
package statestore

import (
	"context"
	"fmt"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:generate mockgen -source=statestore.go -destination=statestoremock/statestore.go -package=statestoremock

const _configKey = "stateStore"

// Store kinds.
const (
	KindNone   = "none"
	KindFile   = "file"
	KindSQLite = "sqlite"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Store saves and loads session state by session id.
type Store interface {
	// Get returns the stored state, or false when there is none.
	Get(ctx context.Context, sessionID string) (*entity.SessionState, bool, error)
	Set(ctx context.Context, state *entity.SessionState) error
	Delete(ctx context.Context, sessionID string) error
	Kind() string
}

// Config selects the backend.
type Config struct {
	Kind string `yaml:"kind"`
	// Path is a directory for the file store and the database file's directory for sqlite.
	Path string `yaml:"path"`
}

// Params define the dependencies of the store.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	FS        fs.KernelFS
}

// New creates the store configured under "stateStore".
func New(p Params) (Store, error) {
	var cfg Config
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}

	switch cfg.Kind {
	case "", KindNone:
		return nopStore{}, nil
	case KindFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("missing field %q in config", _configKey+".path")
		}
		p.Logger.Infow("session state stored in files", "dir", cfg.Path)
		return NewFileStore(p.FS, cfg.Path), nil
	case KindSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("missing field %q in config", _configKey+".path")
		}
		s, err := NewSQLiteStore(p.FS, cfg.Path)
		if err != nil {
			return nil, err
		}
		p.Logger.Infow("session state stored in sqlite", "db", s.dbPath)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return s.Close()
			},
		})
		return s, nil
	}
	return nil, fmt.Errorf("unknown state store kind %q", cfg.Kind)
}

type nopStore struct{}

func (nopStore) Get(context.Context, string) (*entity.SessionState, bool, error) {
	return nil, false, nil
}

func (nopStore) Set(context.Context, *entity.SessionState) error { return nil }

func (nopStore) Delete(context.Context, string) error { return nil }

func (nopStore) Kind() string { return KindNone }
