package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigDir(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestNewConfigFromDir(t *testing.T) {
	tests := []struct {
		name        string
		files       map[string]string
		env         map[string]string
		expectError bool
		check       func(t *testing.T, c Config)
	}{
		{
			name: "later files override earlier ones",
			files: map[string]string{
				"meta.yaml":  "files:\n  - base.yaml\n  - local.yaml\n  - missing.yaml\n",
				"base.yaml":  "kernel:\n  name: spell\n  protocol: jupyter\n",
				"local.yaml": "kernel:\n  protocol: jsonrpc\n",
			},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "spell", c.Get("kernel.name").String())
				assert.Equal(t, "jsonrpc", c.Get("kernel.protocol").String())
			},
		},
		{
			name: "environment expansion",
			files: map[string]string{
				"meta.yaml": "files:\n  - base.yaml\n",
				"base.yaml": "kernel:\n  key: ${TEST_SPELLKERNEL_KEY:fallback}\n",
			},
			env: map[string]string{"TEST_SPELLKERNEL_KEY": "secret"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "secret", c.Get("kernel.key").String())
			},
		},
		{
			name: "no listed file exists",
			files: map[string]string{
				"meta.yaml": "files:\n  - base.yaml\n",
			},
			expectError: true,
		},
		{
			name:        "no meta file",
			files:       map[string]string{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := writeConfigDir(t, tt.files)

			provider, err := NewConfigFromDir(dir)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, provider)
				return
			}
			require.NoError(t, err)
			c, ok := provider.(Config)
			require.True(t, ok)
			assert.Equal(t, "config", c.Name())
			tt.check(t, c)
		})
	}
}

func TestNewConfig_EnvDir(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"meta.yaml": "files:\n  - base.yaml\n",
		"base.yaml": "kernel:\n  name: spell\n",
	})
	t.Setenv(_envConfigDir, dir)

	provider, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "spell", provider.Get("kernel.name").String())
}
