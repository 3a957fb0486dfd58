package app

import (
	"os"
	"testing"

	"github.com/llmspell/spellkernel/src/kernel/controller/debugger"
	"github.com/llmspell/spellkernel/src/kernel/controller/dispatcher"
	scriptruntime "github.com/llmspell/spellkernel/src/kernel/gateway/script-runtime"
	"github.com/llmspell/spellkernel/src/kernel/gateway/statestore"
	"github.com/llmspell/spellkernel/src/kernel/internal/core"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport/transportfx"
	"github.com/llmspell/spellkernel/src/kernel/repository/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const _shippedConfigDir = "../config"

func TestShippedConfigPopulates(t *testing.T) {
	for _, env := range []string{EnvLocal, EnvProduction} {
		env := env
		t.Run(env, func(t *testing.T) {
			t.Setenv(_envKernelEnvironment, env)
			unsetenv(t, "SPELLKERNEL_KEY")
			provider, err := core.NewConfigFromDir(_shippedConfigDir)
			require.NoError(t, err)

			sections := []struct {
				key    string
				target any
			}{
				{key: "logging", target: &core.LoggingConfig{}},
				{key: core.KernelConfigKey, target: &core.KernelConfig{}},
				{key: "transport", target: &transportfx.Config{}},
				{key: "auth", target: &client.AuthConfig{}},
				{key: "limits", target: &client.LimitsConfig{}},
				{key: "dispatcher", target: &dispatcher.Config{}},
				{key: "stateStore", target: &statestore.Config{}},
				{key: "runtime", target: &scriptruntime.Config{}},
				{key: "debug", target: &debugger.Config{}},
				{key: _metricsConfigKey, target: &MetricsConfig{}},
			}
			for _, s := range sections {
				assert.NoError(t, provider.Get(s.key).Populate(s.target), s.key)
			}

			var kernel core.KernelConfig
			require.NoError(t, provider.Get(core.KernelConfigKey).Populate(&kernel))
			assert.Equal(t, "spellkernel", kernel.Name)
			assert.Equal(t, "jupyter", kernel.Protocol)
			assert.Positive(t, kernel.HeartbeatTimeoutMs)
			assert.Positive(t, kernel.CorrelationWindow)
		})
	}
}

func TestShippedConfigSigningKeyDefaultsEmpty(t *testing.T) {
	unsetenv(t, "SPELLKERNEL_KEY")
	provider, err := core.NewConfigFromDir(_shippedConfigDir)
	require.NoError(t, err)

	var kernel core.KernelConfig
	require.NoError(t, provider.Get(core.KernelConfigKey).Populate(&kernel))
	assert.Empty(t, kernel.Key)
}

// unsetenv removes key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
