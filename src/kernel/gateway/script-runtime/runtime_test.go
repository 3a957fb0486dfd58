package scriptruntime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kerrors "github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"
)

var _testConfig = Config{
	AllowedPackages: []string{"fmt", "strings", "strconv", "time"},
	DefaultImports:  []string{"fmt"},
}

type recorder struct {
	mu      sync.Mutex
	stdout  strings.Builder
	stderr  strings.Builder
	display []map[string]any
	answers []string
	prompts []string
}

func (r *recorder) Stdout(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stdout.WriteString(text)
}

func (r *recorder) Stderr(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stderr.WriteString(text)
}

func (r *recorder) Display(data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.display = append(r.display, data)
}

func (r *recorder) Input(_ context.Context, prompt string, _ bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	if len(r.answers) == 0 {
		return "", executor.ErrInputUnavailable
	}
	a := r.answers[0]
	r.answers = r.answers[1:]
	return a, nil
}

type lineHit struct {
	loc    executor.Location
	locals map[string]any
}

type recordingHooks struct {
	mu         sync.Mutex
	hits       []lineHit
	entered    []string
	depth      int
	exceptions []error
	onLine     func(executor.Location, executor.Vars) error
}

func (h *recordingHooks) Line(_ context.Context, loc executor.Location, vars executor.Vars) error {
	h.mu.Lock()
	h.hits = append(h.hits, lineHit{loc: loc, locals: vars.Locals})
	onLine := h.onLine
	h.mu.Unlock()
	if onLine != nil {
		return onLine(loc, vars)
	}
	return nil
}

func (h *recordingHooks) Enter(function string, _ executor.Location) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entered = append(h.entered, function)
	h.depth++
}

func (h *recordingHooks) Leave() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.depth--
}

func (h *recordingHooks) Exception(_ context.Context, err error, _ executor.Location, _ executor.Vars) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exceptions = append(h.exceptions, err)
	return nil
}

func newTestRuntime(t *testing.T) *runtimeImpl {
	r, err := newRuntime(_testConfig, zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	return r
}

func newTestContext(t *testing.T, r *runtimeImpl) *sessionContext {
	c, err := r.NewContext(context.Background(), "s1")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c.(*sessionContext)
}

func run(t *testing.T, c executor.Context, code string) executor.Outcome {
	t.Helper()
	out, err := c.Execute(context.Background(), executor.Request{Code: code, Source: "cell"})
	require.NoError(t, err)
	return out
}

func text(out executor.Outcome) any {
	return out.Data["text/plain"]
}

func TestNewRuntimeConfig(t *testing.T) {
	_, err := newRuntime(Config{AllowedPackages: []string{"no/such/pkg"}}, zap.NewNop().Sugar(), nil)
	assert.ErrorContains(t, err, "not available")

	_, err = newRuntime(Config{AllowedPackages: []string{"fmt"}, DefaultImports: []string{"os"}}, zap.NewNop().Sugar(), nil)
	assert.ErrorContains(t, err, "not an allowed package")

	r := newTestRuntime(t)
	assert.Equal(t, "yaegi", r.Name())
	assert.Equal(t, "go", r.LanguageInfo().Name)
	assert.Equal(t, ".go", r.LanguageInfo().FileExtension)
}

func TestSplitSymbolKey(t *testing.T) {
	tests := []struct {
		key  string
		path string
		name string
		ok   bool
	}{
		{key: "fmt/fmt", path: "fmt", name: "fmt", ok: true},
		{key: "net/http/http", path: "net/http", name: "http", ok: true},
		{key: ".", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.key, func(t *testing.T) {
			path, name, ok := splitSymbolKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestNewRuntimeAcceptsEveryStdlibPackage(t *testing.T) {
	var paths []string
	for key := range stdlib.Symbols {
		if path, _, ok := splitSymbolKey(key); ok {
			paths = append(paths, path)
		}
	}
	require.NotEmpty(t, paths)

	r, err := newRuntime(Config{AllowedPackages: paths}, zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	assert.Len(t, r.symbols, len(paths))
}

func TestExecuteKeepsState(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))

	assert.Nil(t, run(t, c, "x := 21").Data)
	assert.Equal(t, "42", text(run(t, c, "x * 2")))

	run(t, c, "func double(n int) int {\n\treturn n * 2\n}")
	assert.Equal(t, "8", text(run(t, c, "double(4)")))
	assert.Equal(t, `"ab"`, text(run(t, c, "import \"strings\"\ns := strings.ToLower(\"AB\")\ns")),
		"string values are quoted")
}

func TestExecuteOutput(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	rec := &recorder{}

	out, err := c.Execute(context.Background(), executor.Request{
		Code:   "fmt.Println(\"hello\")\nspell.Display(map[string]interface{}{\"text/html\": \"<b>x</b>\"})",
		Source: "cell",
		Output: rec,
	})
	require.NoError(t, err)
	assert.Nil(t, out.Data, "package calls do not produce a result")
	assert.Equal(t, "hello\n", rec.stdout.String())
	require.Len(t, rec.display, 1)
	assert.Equal(t, "<b>x</b>", rec.display[0]["text/html"])
}

func TestExecuteInput(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	rec := &recorder{answers: []string{"ada"}}

	out, err := c.Execute(context.Background(), executor.Request{
		Code:   "name := spell.Input(\"who? \")\n\"hi \" + name",
		Source: "cell",
		Output: rec,
	})
	require.NoError(t, err)
	assert.Equal(t, `"hi ada"`, text(out))
	assert.Equal(t, []string{"who? "}, rec.prompts)

	_, err = c.Execute(context.Background(), executor.Request{
		Code:   "other := spell.Input(\"again? \")\nother",
		Source: "cell",
		Output: rec,
	})
	re, ok := kerrors.AsRuntime(err)
	require.True(t, ok)
	assert.Equal(t, NameInputError, re.Name)
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantNames []string
	}{
		{name: "disallowed import", code: "import \"os\"\nos.Exit(1)", wantNames: []string{NameImportError}},
		{name: "compile error", code: "undefinedThing + 1", wantNames: []string{NameCompileError, NameSyntaxError}},
		{name: "panic", code: "var xs []int\nxs[3]", wantNames: []string{NamePanic}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext(t, newTestRuntime(t))
			_, err := c.Execute(context.Background(), executor.Request{Code: tt.code, Source: "cell"})
			re, ok := kerrors.AsRuntime(err)
			require.True(t, ok, "got %v", err)
			assert.Contains(t, tt.wantNames, re.Name)
		})
	}
}

func TestExecuteCancelled(t *testing.T) {
	r := newTestRuntime(t)
	c := newTestContext(t, r)
	run(t, c, "x := 1")
	snap, err := c.Snapshot()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = c.Execute(ctx, executor.Request{
		Code:   "import \"time\"\nx = 2\nfor {\n\ttime.Sleep(time.Millisecond)\n}",
		Source: "cell",
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)

	_, err = c.Execute(context.Background(), executor.Request{Code: "x", Source: "cell"})
	assert.True(t, isTainted(err), "a cancelled context needs a restore")

	require.NoError(t, c.Restore(snap))
	assert.Equal(t, "1", text(run(t, c, "x")))
}

func isTainted(err error) bool {
	var te *kerrors.SessionTaintedError
	return errors.As(err, &te)
}

func TestSnapshotRestoreInPlace(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	run(t, c, "x := 1\nnames := []string{\"a\"}")

	snap, err := c.Snapshot()
	require.NoError(t, err)

	run(t, c, "x = 5\nnames = append(names, \"b\")\ny := 3")
	require.NoError(t, c.Restore(snap))

	assert.Equal(t, "1", text(run(t, c, "x")))
	assert.Equal(t, "[a]", text(run(t, c, "names")))
	_, err = c.Execute(context.Background(), executor.Request{Code: "y", Source: "cell"})
	re, ok := kerrors.AsRuntime(err)
	require.True(t, ok, "globals created after the snapshot are dropped, got %v", err)
	assert.Contains(t, []string{NameCompileError, NameSyntaxError}, re.Name)
}

func TestSnapshotRestoreDropsLaterDeclarations(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	run(t, c, "total := 1")

	snap, err := c.Snapshot()
	require.NoError(t, err)

	run(t, c, "const limit = 9")
	run(t, c, "var extra = total + 1")
	require.NoError(t, c.Restore(snap))

	assert.Equal(t, "1", text(run(t, c, "total")))
	run(t, c, "limit := 4")
	assert.Equal(t, "4", text(run(t, c, "limit")), "names from after the snapshot can be declared again")
}

func TestSnapshotRestoreIntoNewContext(t *testing.T) {
	r := newTestRuntime(t)
	c := newTestContext(t, r)
	run(t, c, "base := 10")
	run(t, c, "func scaled(n int) int {\n\treturn n * base\n}")
	run(t, c, "base = 3")

	snap, err := c.Snapshot()
	require.NoError(t, err)

	fresh := newTestContext(t, r)
	require.NoError(t, fresh.Restore(snap))
	assert.Equal(t, "12", text(run(t, fresh, "scaled(4)")))
}

func TestSnapshotRejectsForeignAndOpaqueState(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	run(t, c, "type point struct{ X int }")
	run(t, c, "p := point{X: 1}")

	snap, err := c.Snapshot()
	require.NoError(t, err)
	assert.ErrorContains(t, c.Restore(snap), "cannot be restored")

	other := newTestContext(t, newTestRuntime(t))
	clean, err := other.Snapshot()
	require.NoError(t, err)
	assert.ErrorContains(t, c.Restore(clean), "another runtime")
}

func TestExportImport(t *testing.T) {
	r := newTestRuntime(t)
	c := newTestContext(t, r)
	run(t, c, "count := 3\nlabel := \"runs\"\nweights := map[string]float64{\"a\": 0.5}\nf := func() {}")

	vars, err := c.Export()
	require.NoError(t, err)
	assert.Equal(t, 3, vars["count"])
	assert.Equal(t, "runs", vars["label"])
	assert.Equal(t, map[string]float64{"a": 0.5}, vars["weights"])
	assert.NotContains(t, vars, "f")

	fresh := newTestContext(t, r)
	require.NoError(t, fresh.Import(map[string]any{"count": float64(3), "label": "runs"}))
	assert.Equal(t, "4", text(run(t, fresh, "count + 1")))
	assert.Equal(t, `"runs"`, text(run(t, fresh, "label")))

	require.NoError(t, fresh.Import(map[string]any{"count": float64(7)}))
	assert.Equal(t, "7", text(run(t, fresh, "count")))

	assert.Error(t, fresh.Import(map[string]any{"missing": nil}))
}

func TestHooksSeeLoopVariables(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	hooks := &recordingHooks{}

	_, err := c.Execute(context.Background(), executor.Request{
		Code:   "total := 0\nfor i := 0; i < 3; i++ {\n\ttotal += i\n}",
		Source: "loop.go",
		Hooks:  hooks,
	})
	require.NoError(t, err)

	var body []any
	for _, h := range hooks.hits {
		assert.Equal(t, "loop.go", h.loc.Source)
		if h.loc.Line == 3 {
			body = append(body, h.locals["i"])
		}
	}
	assert.Equal(t, []any{0, 1, 2}, body)
	assert.Equal(t, 1, hooks.hits[0].loc.Line)
}

func TestHooksInFunctions(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	run(t, c, "func sum(n int) int {\n\ttotal := 0\n\tfor i := 0; i < n; i++ {\n\t\ttotal += i\n\t}\n\treturn total\n}")

	hooks := &recordingHooks{}
	out, err := c.Execute(context.Background(), executor.Request{Code: "sum(4)", Source: "cell", Hooks: hooks})
	require.NoError(t, err)
	assert.Equal(t, "6", text(out))
	assert.Equal(t, []string{"sum"}, hooks.entered)
	assert.Equal(t, 0, hooks.depth)

	lines := map[int]int{}
	for _, h := range hooks.hits {
		lines[h.loc.Line]++
	}
	assert.Equal(t, 4, lines[4], "loop body runs once per iteration")
}

func TestHookErrorAbortsExecution(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	run(t, c, "seen := 0")
	stop := errors.New("terminated")

	hooks := &recordingHooks{onLine: func(loc executor.Location, vars executor.Vars) error {
		if loc.Line == 3 && vars.Locals["i"] == 5 {
			return stop
		}
		return nil
	}}
	_, err := c.Execute(context.Background(), executor.Request{
		Code:   "seen = 0\nfor i := 0; i < 10; i++ {\n\tseen = i\n}",
		Source: "cell",
		Hooks:  hooks,
	})
	assert.ErrorIs(t, err, stop)
}

func TestExceptionHook(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	hooks := &recordingHooks{}

	_, err := c.Execute(context.Background(), executor.Request{Code: "var m map[string]int\nm[\"a\"] = 1", Source: "cell", Hooks: hooks})
	require.Error(t, err)
	require.Len(t, hooks.exceptions, 1)
	assert.Equal(t, err, hooks.exceptions[0])
}

func TestInspector(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	run(t, c, "answer := 42")

	data, found, err := c.Inspect("answer + 1", 3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "answer: int = 42", data["text/plain"])

	data, found, err = c.Inspect("strings.Split", 10)
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, data["text/plain"], "strings.Split: func(string, string) []string")

	_, found, err = c.Inspect("nothing", 2)
	require.NoError(t, err)
	assert.False(t, found)

	matches, start, end, err := c.Complete("x := strings.Spl", 16)
	require.NoError(t, err)
	assert.Subset(t, matches, []string{"strings.Split", "strings.SplitAfter", "strings.SplitN"})
	for _, m := range matches {
		assert.True(t, strings.HasPrefix(m, "strings.Spl"), m)
	}
	assert.Equal(t, 5, start)
	assert.Equal(t, 16, end)

	matches, _, _, err = c.Complete("ans", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"answer"}, matches)
}

func TestIsComplete(t *testing.T) {
	c := newTestContext(t, newTestRuntime(t))
	tests := []struct {
		code   string
		status string
	}{
		{code: "", status: executor.Complete},
		{code: "x := 1", status: executor.Complete},
		{code: "func f() {}", status: executor.Complete},
		{code: "for i := 0; i < 3; i++ {", status: executor.Incomplete},
		{code: "s := `open", status: executor.Incomplete},
		{code: "x := )", status: executor.Invalid},
	}
	for _, tt := range tests {
		status, _ := c.IsComplete(tt.code)
		assert.Equal(t, tt.status, status, tt.code)
	}
}
