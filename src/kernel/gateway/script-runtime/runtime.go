// Package scriptruntime runs Go scripts with an embedded yaegi interpreter, one interpreter per session.
package scriptruntime

import (
	"context"
	"fmt"
	"io"
	"reflect"
	goruntime "runtime"
	"sort"
	"strings"

	"github.com/llmspell/spellkernel/src/kernel/internal/connectionfile"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"github.com/llmspell/spellkernel/src/kernel/internal/logfilewriter"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKey   = "runtime"
	_runtimeName = "yaegi"
	_outputName  = "script-runtime"

	// _userPkg is the package scripts import for kernel services such as input.
	_userPkg = "spell"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Config selects what scripts may import.
type Config struct {
	AllowedPackages []string `yaml:"allowedPackages"`
	// DefaultImports are imported into every new session.
	DefaultImports []string `yaml:"defaultImports"`
}

// Params define the dependencies of the runtime.
type Params struct {
	fx.In

	Config         config.Provider
	Logger         *zap.SugaredLogger
	Lifecycle      fx.Lifecycle
	FS             fs.KernelFS
	ConnectionFile connectionfile.ConnectionFile
}

// strayOutput receives what scripts write when no execution is running.
type strayOutput interface {
	Stream(sessionID, stream string) io.Writer
}

type discard struct{}

func (discard) Stream(string, string) io.Writer { return io.Discard }

type runtimeImpl struct {
	logger  *zap.SugaredLogger
	stray   strayOutput
	symbols interp.Exports
	// packages maps a package name to its key in symbols.
	packages       map[string]string
	allowed        map[string]bool
	defaultImports []string
}

// New creates the yaegi runtime from the "runtime" config section.
func New(p Params) (executor.Runtime, error) {
	var cfg Config
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}

	stray, err := logfilewriter.SetupOutputWriter(logfilewriter.Params{
		FS:             p.FS,
		Lifecycle:      p.Lifecycle,
		ConnectionFile: p.ConnectionFile,
	}, _outputName)
	if err != nil {
		return nil, fmt.Errorf("setting up stray output: %w", err)
	}

	return newRuntime(cfg, p.Logger, stray)
}

func newRuntime(cfg Config, logger *zap.SugaredLogger, stray strayOutput) (*runtimeImpl, error) {
	if stray == nil {
		stray = discard{}
	}
	r := &runtimeImpl{
		logger:         logger,
		stray:          stray,
		symbols:        interp.Exports{},
		packages:       make(map[string]string),
		allowed:        make(map[string]bool),
		defaultImports: cfg.DefaultImports,
	}

	for _, path := range cfg.AllowedPackages {
		r.allowed[path] = true
	}
	for key, syms := range stdlib.Symbols {
		path, name, ok := splitSymbolKey(key)
		if !ok || !r.allowed[path] {
			continue
		}
		r.symbols[key] = syms
		r.packages[name] = key
	}
	for _, path := range cfg.AllowedPackages {
		if !r.available(path) {
			return nil, fmt.Errorf("allowed package %q is not available to scripts", path)
		}
	}
	for _, path := range cfg.DefaultImports {
		if !r.allowed[path] {
			return nil, fmt.Errorf("default import %q is not an allowed package", path)
		}
	}
	return r, nil
}

// splitSymbolKey splits a yaegi export key of the form "path/name". Keys without a name, such
// as the "." entry of stdlib.Symbols, are reported as not ok.
func splitSymbolKey(key string) (path, name string, ok bool) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func (r *runtimeImpl) available(path string) bool {
	for key := range r.symbols {
		if p, _, ok := splitSymbolKey(key); ok && p == path {
			return true
		}
	}
	return false
}

func (r *runtimeImpl) Name() string {
	return _runtimeName
}

func (r *runtimeImpl) LanguageInfo() executor.LanguageInfo {
	return executor.LanguageInfo{
		Name:          "go",
		Version:       strings.TrimPrefix(goruntime.Version(), "go"),
		MimeType:      "text/x-go",
		FileExtension: ".go",
	}
}

func (r *runtimeImpl) NewContext(ctx context.Context, sessionID string) (executor.Context, error) {
	c := &sessionContext{
		runtime:   r,
		sessionID: sessionID,
		logger:    r.logger.With("session", sessionID),
	}
	if err := c.reset(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// checkImports rejects import paths that are not on the allow-list.
func (r *runtimeImpl) checkImports(paths []string) error {
	for _, path := range paths {
		if path == _userPkg {
			continue
		}
		if !r.allowed[path] {
			return fmt.Errorf("package %q is not allowed", path)
		}
	}
	return nil
}

// symbolsOf returns the exported symbols of an allowed package by its name.
func (r *runtimeImpl) symbolsOf(pkg string) map[string]reflect.Value {
	key, ok := r.packages[pkg]
	if !ok {
		return nil
	}
	return r.symbols[key]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
