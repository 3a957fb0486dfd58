package scriptruntime

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
	"go.uber.org/multierr"
)

// snapshot is the replayable state of a session: the import and declaration cells that built it and
// the literal values of its globals.
type snapshot struct {
	runtime *runtimeImpl
	imports []string
	decls   []declRecord
	globals map[string]string
	// opaque lists what could not be captured. A snapshot with opaque entries cannot be restored.
	opaque []string
}

var _ executor.Snapshotter = (*sessionContext)(nil)
var _ executor.StateExporter = (*sessionContext)(nil)

func (c *sessionContext) Snapshot() (executor.Snapshot, error) {
	if c.closed || c.poisoned {
		return nil, fmt.Errorf("session %s: context cannot be snapshotted", c.sessionID)
	}
	s := &snapshot{
		runtime: c.runtime,
		imports: append([]string(nil), c.imports...),
		decls:   append([]declRecord(nil), c.decls...),
		globals: make(map[string]string),
	}
	if c.rawCells > 0 {
		s.opaque = append(s.opaque, fmt.Sprintf("%d mixed cell(s)", c.rawCells))
	}
	for name, v := range c.interp.Globals() {
		lit, ok := literal(v)
		if !ok {
			s.opaque = append(s.opaque, name)
			continue
		}
		s.globals[name] = lit
	}
	return s, nil
}

// Restore brings the context back to s. The live interpreter is reused when it still holds the
// declarations s was taken from and no global appeared since; otherwise a fresh interpreter is built
// and s is replayed into it.
func (c *sessionContext) Restore(snap executor.Snapshot) error {
	s, ok := snap.(*snapshot)
	if !ok || s.runtime != c.runtime {
		return fmt.Errorf("session %s: snapshot belongs to another runtime", c.sessionID)
	}
	if len(s.opaque) > 0 {
		return fmt.Errorf("session %s: state cannot be restored: %s", c.sessionID, strings.Join(s.opaque, ", "))
	}
	if c.closed {
		return fmt.Errorf("session %s: context is closed", c.sessionID)
	}

	ctx := context.Background()
	current := c.interp.Globals()
	if c.poisoned || !c.extends(s) || addedGlobals(current, s) {
		return c.rebuild(ctx, s)
	}

	for _, name := range sortedKeys(s.globals) {
		lit := s.globals[name]
		v, ok := current[name]
		if !ok {
			continue
		}
		if now, ok := literal(v); ok && now == lit {
			continue
		}
		if _, err := c.interp.EvalWithContext(ctx, name+" = "+lit); err != nil {
			return fmt.Errorf("session %s: restoring %s: %w", c.sessionID, name, err)
		}
	}
	return nil
}

// addedGlobals reports whether current holds a name s did not. The interpreter cannot undeclare it.
func addedGlobals(current map[string]reflect.Value, s *snapshot) bool {
	for name := range current {
		if _, ok := s.globals[name]; !ok {
			return true
		}
	}
	return false
}

// extends reports whether the live interpreter was built from s's cells plus, possibly, later ones.
func (c *sessionContext) extends(s *snapshot) bool {
	if len(c.imports) < len(s.imports) || len(c.decls) < len(s.decls) {
		return false
	}
	for i := range s.imports {
		if c.imports[i] != s.imports[i] {
			return false
		}
	}
	for i := range s.decls {
		if c.decls[i].src != s.decls[i].src {
			return false
		}
	}
	return true
}

func (c *sessionContext) rebuild(ctx context.Context, s *snapshot) error {
	c.logger.Infow("rebuilding interpreter from snapshot", "decls", len(s.decls), "globals", len(s.globals))
	if err := c.reset(ctx); err != nil {
		return err
	}

	declared := make(map[string]bool)
	for _, d := range s.decls {
		for _, n := range d.names {
			declared[n] = true
		}
	}

	fail := func(what string, err error) error {
		// The context is unusable until it is restored again.
		c.poisoned = true
		return fmt.Errorf("session %s: replaying %s: %w", c.sessionID, what, err)
	}
	for _, src := range s.imports {
		if _, err := c.interp.EvalWithContext(ctx, src); err != nil {
			return fail("imports", err)
		}
		c.imports = append(c.imports, src)
	}
	// Globals from statements come first since declarations may refer to them.
	for _, name := range sortedKeys(s.globals) {
		if declared[name] {
			continue
		}
		if _, err := c.interp.EvalWithContext(ctx, "var "+name+" = "+s.globals[name]); err != nil {
			return fail(name, err)
		}
	}
	for _, d := range s.decls {
		if _, err := c.interp.EvalWithContext(ctx, d.src); err != nil {
			return fail("declarations", err)
		}
		c.decls = append(c.decls, d)
	}
	current := c.interp.Globals()
	for _, name := range sortedKeys(s.globals) {
		if !declared[name] {
			continue
		}
		if now, ok := literal(current[name]); ok && now == s.globals[name] {
			continue
		}
		if _, err := c.interp.EvalWithContext(ctx, name+" = "+s.globals[name]); err != nil {
			return fail(name, err)
		}
	}
	return nil
}

// Export returns the globals that survive a JSON round trip.
func (c *sessionContext) Export() (map[string]any, error) {
	if c.closed || c.poisoned {
		return nil, fmt.Errorf("session %s: context cannot be exported", c.sessionID)
	}
	out := make(map[string]any)
	for name, v := range c.interp.Globals() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if value, ok := exportable(v); ok {
			out[name] = value
		}
	}
	return out, nil
}

// Import assigns persisted variables, declaring the ones the session does not have yet.
func (c *sessionContext) Import(vars map[string]any) error {
	if c.closed || c.poisoned {
		return fmt.Errorf("session %s: context cannot be imported into", c.sessionID)
	}
	ctx := context.Background()
	current := c.interp.Globals()
	var err error
	for _, name := range sortedKeys(vars) {
		lit, ok := importLiteral(vars[name])
		if !ok {
			err = multierr.Append(err, fmt.Errorf("variable %s: unsupported value %T", name, vars[name]))
			continue
		}
		src := "var " + name + " = " + lit
		if _, exists := current[name]; exists {
			src = name + " = " + lit
		}
		if _, evalErr := c.interp.EvalWithContext(ctx, src); evalErr != nil {
			err = multierr.Append(err, fmt.Errorf("variable %s: %w", name, evalErr))
		}
	}
	return err
}
