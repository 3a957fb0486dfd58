package scriptruntime

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

const (
	_hookPkg     = "spellhook"
	_declPrefix  = "package main\n"
	_stmtPrefix  = "package main\nfunc _() {\n"
	_stmtSuffix  = "\n}"
	_declOffset  = 1
	_stmtOffset  = 2
	_importBlock = "import ("
)

type cellKind int

const (
	// declCell holds only top-level declarations and is replayed when a context is rebuilt.
	declCell cellKind = iota
	// stmtCell holds statements that are evaluated one at a time.
	stmtCell
	// rawCell mixes both and is evaluated as a whole.
	rawCell
)

type cell struct {
	kind cellKind
	// imports are the import paths the cell requests and importSrc the declarations that load them.
	imports   []string
	importSrc string
	// decls is the (instrumented) declaration source of a declCell, or the code of a rawCell.
	decls string
	// names are the top-level identifiers a declCell declares.
	names []string
	stmts []statement
}

type statement struct {
	line int
	src  string
	// value is set for a trailing expression whose value should be shown.
	value bool
	// pkg is the package qualifier of a trailing pkg.Func(...) call.
	pkg string
}

// parseCell splits code into imports and either declarations or statements. Function bodies are
// always instrumented with line hooks; statements only when instrumentStmts is set.
func parseCell(code, source string, instrumentStmts bool) (*cell, error) {
	importSrc, rest := hoistImports(code)
	c := &cell{importSrc: importSrc}
	if importSrc != "" {
		paths, err := importPaths(importSrc)
		if err != nil {
			return nil, err
		}
		c.imports = paths
	}

	fset := token.NewFileSet()
	if file, err := parser.ParseFile(fset, "", _declPrefix+rest, 0); err == nil {
		c.kind = declCell
		in := &instrumenter{fset: fset, source: source, lineOffset: _declOffset}
		var out []string
		for _, d := range file.Decls {
			if gd, ok := d.(*ast.GenDecl); ok && gd.Tok == token.IMPORT {
				for _, spec := range gd.Specs {
					p, _ := strconv.Unquote(spec.(*ast.ImportSpec).Path.Value)
					c.imports = append(c.imports, p)
				}
				src, err := render(fset, gd)
				if err != nil {
					return nil, err
				}
				c.importSrc = strings.TrimSpace(c.importSrc + "\n" + src)
				continue
			}
			c.names = append(c.names, declNames(d)...)
			if fd, ok := d.(*ast.FuncDecl); ok && fd.Body != nil {
				in.funcDecl(fd)
			}
			src, err := render(fset, d)
			if err != nil {
				return nil, err
			}
			out = append(out, src)
		}
		c.decls = strings.Join(out, "\n\n")
		return c, nil
	}

	fset = token.NewFileSet()
	file, err := parser.ParseFile(fset, "", _stmtPrefix+rest+_stmtSuffix, 0)
	if err != nil {
		c.kind = rawCell
		c.decls = rest
		return c, nil
	}
	c.kind = stmtCell
	body := file.Decls[0].(*ast.FuncDecl).Body
	in := &instrumenter{fset: fset, source: source, lineOffset: _stmtOffset}
	base := fset.File(file.Pos()).Base()
	for i, s := range body.List {
		st := statement{line: fset.Position(s.Pos()).Line - _stmtOffset}
		if instrumentStmts && in.nested(s, nil) {
			if st.src, err = render(fset, s); err != nil {
				return nil, err
			}
		} else {
			start := int(s.Pos()) - base - len(_stmtPrefix)
			end := int(s.End()) - base - len(_stmtPrefix)
			st.src = rest[start:end]
		}
		if es, ok := s.(*ast.ExprStmt); ok && i == len(body.List)-1 {
			st.value = true
			if call, ok := es.X.(*ast.CallExpr); ok {
				if sel, ok := call.Fun.(*ast.SelectorExpr); ok {
					if id, ok := sel.X.(*ast.Ident); ok {
						st.pkg = id.Name
					}
				}
			}
		}
		c.stmts = append(c.stmts, st)
	}
	return c, nil
}

func declNames(d ast.Decl) []string {
	switch d := d.(type) {
	case *ast.FuncDecl:
		if d.Recv == nil {
			return []string{d.Name.Name}
		}
	case *ast.GenDecl:
		var names []string
		for _, spec := range d.Specs {
			switch spec := spec.(type) {
			case *ast.ValueSpec:
				for _, n := range spec.Names {
					names = append(names, n.Name)
				}
			case *ast.TypeSpec:
				names = append(names, spec.Name.Name)
			}
		}
		return names
	}
	return nil
}

// hoistImports moves leading import declarations out of code, leaving blank lines so that line
// numbers are unchanged.
func hoistImports(code string) (string, string) {
	lines := strings.Split(code, "\n")
	var imports []string
	inBlock := false
scan:
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case inBlock:
			imports = append(imports, line)
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
			}
		case trimmed == "" || strings.HasPrefix(trimmed, "//"):
			continue
		case strings.HasPrefix(trimmed, _importBlock) || trimmed == "import(":
			imports = append(imports, line)
			inBlock = !strings.HasSuffix(trimmed, ")")
		case strings.HasPrefix(trimmed, "import "):
			imports = append(imports, line)
		default:
			break scan
		}
		lines[i] = ""
	}
	return strings.Join(imports, "\n"), strings.Join(lines, "\n")
}

func importPaths(src string) ([]string, error) {
	file, err := parser.ParseFile(token.NewFileSet(), "", "package p\n"+src, parser.ImportsOnly)
	if err != nil {
		return nil, fmt.Errorf("parsing imports: %w", err)
	}
	paths := make([]string, 0, len(file.Imports))
	for _, spec := range file.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func render(fset *token.FileSet, node any) (string, error) {
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, node); err != nil {
		return "", fmt.Errorf("rendering instrumented code: %w", err)
	}
	return buf.String(), nil
}

// instrumenter inserts hook calls before statements so that debuggers and cancellation get a safe
// point on every line.
type instrumenter struct {
	fset       *token.FileSet
	source     string
	lineOffset int
}

func (in *instrumenter) line(n ast.Node) int {
	return in.fset.Position(n.Pos()).Line - in.lineOffset
}

func (in *instrumenter) funcDecl(fd *ast.FuncDecl) {
	var scope []string
	if fd.Recv != nil {
		scope = fieldNames(scope, fd.Recv)
	}
	scope = fieldNames(scope, fd.Type.Params)
	scope = fieldNames(scope, fd.Type.Results)

	list := in.stmtList(fd.Body.List, scope)
	enter := &ast.ExprStmt{X: hookCall("Enter",
		strLit(fd.Name.Name), strLit(in.source), intLit(in.line(fd)))}
	leave := &ast.DeferStmt{Call: hookCall("Leave")}
	fd.Body.List = append([]ast.Stmt{enter, leave}, list...)
}

// nested instruments the blocks inside a top-level statement and reports whether anything changed.
func (in *instrumenter) nested(s ast.Stmt, scope []string) bool {
	changed := false
	in.stmt(s, scope, &changed)
	return changed
}

func (in *instrumenter) stmtList(list []ast.Stmt, scope []string) []ast.Stmt {
	out := make([]ast.Stmt, 0, 2*len(list))
	for _, s := range list {
		out = append(out, &ast.ExprStmt{X: in.lineCall(in.line(s), scope)})
		changed := false
		in.stmt(s, scope, &changed)
		out = append(out, s)
		scope = declaredBy(scope, s)
	}
	return out
}

func (in *instrumenter) stmt(s ast.Stmt, scope []string, changed *bool) {
	block := func(b *ast.BlockStmt, scope []string) {
		if b == nil {
			return
		}
		b.List = in.stmtList(b.List, scope)
		*changed = true
	}
	switch s := s.(type) {
	case *ast.BlockStmt:
		block(s, scope)
	case *ast.IfStmt:
		inner := declaredBy(scope, s.Init)
		block(s.Body, inner)
		if s.Else != nil {
			in.stmt(s.Else, inner, changed)
		}
	case *ast.ForStmt:
		block(s.Body, declaredBy(scope, s.Init))
	case *ast.RangeStmt:
		inner := scope
		if s.Tok == token.DEFINE {
			inner = addIdents(inner, s.Key, s.Value)
		}
		block(s.Body, inner)
	case *ast.SwitchStmt:
		inner := declaredBy(scope, s.Init)
		for _, c := range s.Body.List {
			cc := c.(*ast.CaseClause)
			cc.Body = in.stmtList(cc.Body, inner)
			*changed = true
		}
	case *ast.TypeSwitchStmt:
		inner := declaredBy(scope, s.Init)
		if as, ok := s.Assign.(*ast.AssignStmt); ok {
			inner = addIdents(inner, as.Lhs...)
		}
		for _, c := range s.Body.List {
			cc := c.(*ast.CaseClause)
			cc.Body = in.stmtList(cc.Body, inner)
			*changed = true
		}
	case *ast.SelectStmt:
		for _, c := range s.Body.List {
			cc := c.(*ast.CommClause)
			cc.Body = in.stmtList(cc.Body, declaredBy(scope, cc.Comm))
			*changed = true
		}
	case *ast.LabeledStmt:
		in.stmt(s.Stmt, scope, changed)
	}
}

func (in *instrumenter) lineCall(line int, scope []string) ast.Expr {
	seen := map[string]bool{}
	var elts []ast.Expr
	for i := len(scope) - 1; i >= 0; i-- {
		name := scope[i]
		if seen[name] {
			continue
		}
		seen[name] = true
		elts = append([]ast.Expr{&ast.KeyValueExpr{Key: strLit(name), Value: ast.NewIdent(name)}}, elts...)
	}
	locals := &ast.CompositeLit{
		Type: &ast.MapType{Key: ast.NewIdent("string"), Value: &ast.InterfaceType{Methods: &ast.FieldList{}}},
		Elts: elts,
	}
	return hookCall("Line", strLit(in.source), intLit(line), locals)
}

// declaredBy extends scope with the variables a statement declares for the statements after it.
func declaredBy(scope []string, s ast.Stmt) []string {
	switch s := s.(type) {
	case *ast.AssignStmt:
		if s.Tok == token.DEFINE {
			return addIdents(scope, s.Lhs...)
		}
	case *ast.DeclStmt:
		if gd, ok := s.Decl.(*ast.GenDecl); ok && (gd.Tok == token.VAR || gd.Tok == token.CONST) {
			for _, spec := range gd.Specs {
				vs := spec.(*ast.ValueSpec)
				for _, n := range vs.Names {
					scope = addName(scope, n.Name)
				}
			}
		}
	}
	return scope
}

func addIdents(scope []string, exprs ...ast.Expr) []string {
	for _, e := range exprs {
		if id, ok := e.(*ast.Ident); ok {
			scope = addName(scope, id.Name)
		}
	}
	return scope
}

func addName(scope []string, name string) []string {
	if name == "_" || name == "" {
		return scope
	}
	out := make([]string, len(scope), len(scope)+1)
	copy(out, scope)
	return append(out, name)
}

func fieldNames(scope []string, fl *ast.FieldList) []string {
	if fl == nil {
		return scope
	}
	for _, f := range fl.List {
		for _, n := range f.Names {
			scope = addName(scope, n.Name)
		}
	}
	return scope
}

func hookCall(fn string, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{
		Fun:  &ast.SelectorExpr{X: ast.NewIdent(_hookPkg), Sel: ast.NewIdent(fn)},
		Args: args,
	}
}

func strLit(s string) *ast.BasicLit {
	return &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(s)}
}

func intLit(n int) *ast.BasicLit {
	return &ast.BasicLit{Kind: token.INT, Value: strconv.Itoa(n)}
}
