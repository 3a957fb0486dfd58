package core

import (
	"fmt"
	"os"
	"path/filepath"

	uber_config "go.uber.org/config"
	"go.uber.org/fx"
)

const (
	_envConfigDir     = "SPELLKERNEL_CONFIG_DIR"
	_defaultConfigDir = "src/kernel/config"
)

// KernelConfigKey is the config section read into KernelConfig.
const KernelConfigKey = "kernel"

// KernelConfig is the "kernel" config section. The registry, the protocol and the kernel each read
// their part of it, and strict population rejects keys a partial view would not declare, so every
// reader shares this one type.
type KernelConfig struct {
	Name                  string `yaml:"name"`
	Protocol              string `yaml:"protocol"`
	Key                   string `yaml:"key"`
	ConnectionFilePath    string `yaml:"connectionFilePath"`
	ShutdownGracePeriodMs int    `yaml:"shutdownGracePeriodMs"`
	HeartbeatTimeoutMs    int    `yaml:"heartbeatTimeoutMs"`
	SweepIntervalMs       int    `yaml:"sweepIntervalMs"`
	CorrelationWindow     int    `yaml:"correlationWindow"`
}

// ConfigModule provides the kernel's config.Provider.
var ConfigModule = fx.Options(
	fx.Provide(NewConfig),
)

// Config is a named config.Provider backed by the files listed in meta.yaml.
type Config struct {
	provider uber_config.Provider
}

func (c Config) Get(path string) uber_config.Value {
	return c.provider.Get(path)
}

func (c Config) Name() string {
	return "config"
}

// NewConfig loads meta.yaml from the config directory, then every listed file that exists,
// with ${VAR:default} expansion from the environment.
func NewConfig() (uber_config.Provider, error) {
	return NewConfigFromDir(getConfigDir())
}

// NewConfigFromDir is NewConfig for an explicit directory.
func NewConfigFromDir(configDir string) (uber_config.Provider, error) {
	metaPath := filepath.Join(configDir, "meta.yaml")
	metaProvider, err := uber_config.NewYAML(
		uber_config.File(metaPath),
		uber_config.Expand(os.LookupEnv),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load meta configuration: %w", err)
	}

	var configFiles []string
	if err := metaProvider.Get("files").Populate(&configFiles); err != nil {
		return nil, fmt.Errorf("failed to read files list from meta.yaml: %w", err)
	}

	var options []uber_config.YAMLOption
	for _, file := range configFiles {
		fullPath := filepath.Join(configDir, file)
		if _, err := os.Stat(fullPath); err == nil {
			options = append(options, uber_config.File(fullPath))
		}
	}

	if len(options) == 0 {
		return nil, fmt.Errorf("no configuration files found in %s", configDir)
	}
	options = append(options, uber_config.Expand(os.LookupEnv))

	provider, err := uber_config.NewYAML(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return Config{provider: provider}, nil
}

func getConfigDir() string {
	if configDir := os.Getenv(_envConfigDir); configDir != "" {
		return configDir
	}
	return _defaultConfigDir
}
