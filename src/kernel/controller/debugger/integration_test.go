package debugger

import (
	"context"
	"strings"
	"testing"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	scriptruntime "github.com/llmspell/spellkernel/src/kernel/gateway/script-runtime"
	"github.com/llmspell/spellkernel/src/kernel/internal/connectionfile/connectionfilemock"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func TestScriptBreakpoint(t *testing.T) {
	ctx := context.Background()
	connectionFileMock := connectionfilemock.NewMockConnectionFile(gomock.NewController(t))
	connectionFileMock.EXPECT().UpdateField(gomock.Any(), gomock.Any()).Return(nil)
	provider, err := config.NewYAML(config.Source(strings.NewReader("runtime:\n  allowedPackages: [fmt]\n")))
	require.NoError(t, err)

	lifecycle := fxtest.NewLifecycle(t)
	rt, err := scriptruntime.New(scriptruntime.Params{
		Config:         provider,
		Logger:         zap.NewNop().Sugar(),
		Lifecycle:      lifecycle,
		FS:             fs.New(),
		ConnectionFile: connectionFileMock,
	})
	require.NoError(t, err)
	lifecycle.RequireStart()
	defer lifecycle.RequireStop()

	sc, err := rt.NewContext(ctx, "s1")
	require.NoError(t, err)
	defer sc.Close()

	c := newController(t, "{}")
	require.NoError(t, c.Launch(ctx, "s1", "alice", LaunchOptions{Program: "loop.go"}))
	_, err = c.SetBreakpoint(ctx, "s1", "alice", "loop.go", entity.BreakpointSpec{Line: 3, Condition: "i == 5"})
	require.NoError(t, err)

	done := async(func() error {
		_, err := sc.Execute(ctx, executor.Request{
			Code:   "total := 0\nfor i := 0; i < 10; i++ {\n\ttotal += i\n}",
			Source: "loop.go",
			Hooks:  c.Hooks("s1"),
		})
		return err
	})

	nextEvent(t, c, EventStopped)
	frames, err := c.StackTrace(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, frames[0].Line)

	total, err := c.Evaluate(ctx, "s1", 0, "total")
	require.NoError(t, err)
	assert.Equal(t, "10", total.Value)

	require.NoError(t, c.Continue(ctx, "s1", "alice"))
	require.NoError(t, wait(t, done))
	noEvent(t, c, EventStopped)

	out, err := sc.Execute(ctx, executor.Request{Code: "total", Source: "cell"})
	require.NoError(t, err)
	assert.Equal(t, "45", out.Data["text/plain"])
}
