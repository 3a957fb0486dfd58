package app

import (
	"fmt"
	"os"
	"path"

	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Context describes where the kernel runs.
type Context struct {
	Environment        string `yaml:"environment"`
	RuntimeEnvironment string `yaml:"runtimeEnvironment"`
}

const (
	// EnvLocal indicates that the kernel is running locally.
	EnvLocal = "local"

	// EnvProduction indicates that the kernel is running as a deployed service.
	EnvProduction = "production"

	// Environment variables
	_envKernelEnvironment = "SPELLKERNEL_ENVIRONMENT"
)

func decorateEnvContext(env Context) Context {
	envValue := EnvLocal
	if os.Getenv(_envKernelEnvironment) == EnvProduction {
		envValue = EnvProduction
	}

	env.Environment = envValue
	env.RuntimeEnvironment = envValue
	return env
}

// DecorateConfigParams is the set of dependencies required to decorate the config.Provider.
type DecorateConfigParams struct {
	fx.In

	Env Context
	Cfg config.Provider
	FS  fs.KernelFS
}

// decorateConfigProvider runs the startup steps that depend on the configuration before anything else reads it.
func decorateConfigProvider(p DecorateConfigParams) (config.Provider, error) {
	combined, err := ensureLogFolder(p.Cfg, p.FS)
	if err != nil {
		return nil, fmt.Errorf("ensuring log folder: %w", err)
	}

	return combined, nil
}

// Ensure that all configured logging output directories exist or create if necessary.
func ensureLogFolder(cfg config.Provider, fs fs.KernelFS) (config.Provider, error) {
	var c zap.Config
	if err := cfg.Get("logging").Populate(&c); err != nil {
		return nil, fmt.Errorf("loading logging config: %w", err)
	}

	for _, outputPath := range c.OutputPaths {
		if outputPath == "stdout" || outputPath == "stderr" {
			continue
		}
		dir := path.Dir(outputPath)
		if err := fs.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("creating logging directory: %w", err)
		}
	}

	return cfg, nil
}
