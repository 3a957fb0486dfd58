package statestore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs/fsmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleState(id string) *entity.SessionState {
	return &entity.SessionState{
		SessionID:      id,
		ExecutionCount: 2,
		History: []entity.HistoryEntry{
			{ExecutionCount: 1, Code: "x := 1"},
			{ExecutionCount: 2, Code: "x++"},
		},
		Variables: map[string]any{"x": float64(2), "name": "ada"},
		UpdatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStores(t *testing.T) {
	tests := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{
			name: "file",
			open: func(t *testing.T) Store {
				return NewFileStore(fs.New(), t.TempDir())
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) Store {
				s, err := NewSQLiteStore(fs.New(), t.TempDir())
				require.NoError(t, err)
				t.Cleanup(func() { s.Close() })
				return s
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := tt.open(t)
			assert.Equal(t, tt.name, s.Kind())

			_, found, err := s.Get(ctx, "s/1")
			require.NoError(t, err)
			assert.False(t, found)

			want := sampleState("s/1")
			require.NoError(t, s.Set(ctx, want))
			got, found, err := s.Get(ctx, "s/1")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, want.ExecutionCount, got.ExecutionCount)
			assert.Equal(t, want.History, got.History)
			assert.Equal(t, want.Variables, got.Variables)
			assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))

			want.ExecutionCount = 3
			require.NoError(t, s.Set(ctx, want))
			got, _, err = s.Get(ctx, "s/1")
			require.NoError(t, err)
			assert.Equal(t, 3, got.ExecutionCount, "set overwrites")

			require.NoError(t, s.Delete(ctx, "s/1"))
			_, found, err = s.Get(ctx, "s/1")
			require.NoError(t, err)
			assert.False(t, found)
			assert.NoError(t, s.Delete(ctx, "s/1"), "deleting a missing session is not an error")
		})
	}
}

func TestFileStoreEscapesIDs(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(fs.New(), dir)
	assert.Equal(t, filepath.Join(dir, "..%2Fescape.json"), s.path("../escape"))
}

func TestFileStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	fsMock := fsmock.NewMockKernelFS(ctrl)
	s := NewFileStore(fsMock, "/state")

	fsMock.EXPECT().FileExists("/state/a.json").Return(true, nil)
	fsMock.EXPECT().ReadFile("/state/a.json").Return([]byte("{not json"), nil)
	_, _, err := s.Get(context.Background(), "a")
	assert.ErrorContains(t, err, "decoding")

	fsMock.EXPECT().FileExists("/state/b.json").Return(false, errors.New("permission denied"))
	_, _, err = s.Get(context.Background(), "b")
	assert.ErrorContains(t, err, "permission denied")
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantKind string
		wantErr  string
	}{
		{name: "default", yaml: "stateStore: {}\n", wantKind: KindNone},
		{name: "none", yaml: "stateStore:\n  kind: none\n", wantKind: KindNone},
		{name: "file", yaml: "stateStore:\n  kind: file\n  path: DIR\n", wantKind: KindFile},
		{name: "sqlite", yaml: "stateStore:\n  kind: sqlite\n  path: DIR\n", wantKind: KindSQLite},
		{name: "file without path", yaml: "stateStore:\n  kind: file\n", wantErr: "missing field"},
		{name: "unknown", yaml: "stateStore:\n  kind: redis\n", wantErr: "unknown state store kind"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			yaml := strings.ReplaceAll(tt.yaml, "DIR", t.TempDir())
			provider, err := config.NewYAML(config.Source(strings.NewReader(yaml)))
			require.NoError(t, err)

			lifecycle := fxtest.NewLifecycle(t)
			s, err := New(Params{Config: provider, Lifecycle: lifecycle, Logger: zap.NewNop().Sugar(), FS: fs.New()})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			lifecycle.RequireStart()
			defer lifecycle.RequireStop()
			assert.Equal(t, tt.wantKind, s.Kind())

			got, found, err := s.Get(context.Background(), "nobody")
			require.NoError(t, err)
			assert.False(t, found)
			assert.Nil(t, got)
		})
	}
}
