package connectionfile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:generate mockgen -source=connection_file.go -destination=connectionfilemock/connection_file.go -package=connectionfilemock

const _configKeyConnectionFile = "kernel.connectionFilePath"

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// ConnectionFile manages the JSON file clients read to find a running kernel.
// It is written once the transport is bound and removed when the kernel stops.
type ConnectionFile interface {
	// Publish writes the endpoint fields to the file.
	Publish(endpoint entity.ConnectionEndpoint) error
	// UpdateField adds or replaces an extra top-level field.
	UpdateField(key string, value string) error
	Path() string
}

type module struct {
	path         string
	fs           fs.KernelFS
	logger       *zap.SugaredLogger
	fileContents map[string]any
	mu           sync.Mutex
}

// Params define values to be used by ConnectionFile.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	FS        fs.KernelFS
}

// New creates a ConnectionFile. An empty path disables the file.
func New(p Params) (ConnectionFile, error) {
	m := &module{
		fs:           p.FS,
		logger:       p.Logger,
		fileContents: make(map[string]any),
	}

	if err := p.Config.Get(_configKeyConnectionFile).Populate(&m.path); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeyConnectionFile, err)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: m.OnStop,
	})

	return m, nil
}

func (m *module) OnStop(ctx context.Context) error {
	if m.path == "" {
		return nil
	}
	return m.fs.Remove(m.path)
}

func (m *module) Path() string {
	return m.path
}

func (m *module) Publish(endpoint entity.ConnectionEndpoint) error {
	raw, err := json.Marshal(endpoint)
	if err != nil {
		return fmt.Errorf("marshalling endpoint: %w", err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("marshalling endpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range fields {
		m.fileContents[k] = v
	}
	if err := m.write(); err != nil {
		return err
	}
	m.logger.Infow("connection file written", zap.String("file", m.path), zap.String("transport", endpoint.Transport), zap.String("ip", endpoint.IP))
	return nil
}

func (m *module) UpdateField(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fileContents[key] = value
	if err := m.write(); err != nil {
		return err
	}
	m.logger.Infow("connection info saved", zap.String("file", m.path), zap.String(key, value))
	return nil
}

func (m *module) write() error {
	if m.path == "" {
		return nil
	}
	jsonOutput, err := json.MarshalIndent(m.fileContents, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling json: %w", err)
	}
	// The file carries the signing key.
	if err := m.fs.WriteFileAtomic(m.path, jsonOutput, 0o600); err != nil {
		return fmt.Errorf("writing connection file: %w", err)
	}
	return nil
}
