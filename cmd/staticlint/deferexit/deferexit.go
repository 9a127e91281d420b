// Package deferexit reports os.Exit and log.Fatal* calls made from a function
// that has deferred calls: the process ends before the defers run, so
// storage is not closed and the logger is not synced.
package deferexit

import (
	"go/ast"
	"go/types"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/analysis"
)

var Analyzer = &analysis.Analyzer{
	Name: "deferexit",
	Doc:  "reports os.Exit and log.Fatal calls in functions that defer calls",
	Run:  run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		// Exclude go-build cache files
		filename := pass.Fset.File(file.Pos()).Name()
		if isGoBuildCacheFile(filename) {
			continue
		}

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Body == nil {
				continue
			}
			checkBody(pass, fn.Body, fn.Name.Name)
		}
	}
	return nil, nil
}

// checkBody inspects one function body. Function literals are separate
// functions with their own defers and are checked on their own.
func checkBody(pass *analysis.Pass, body *ast.BlockStmt, name string) {
	hasDefer := false
	var exits []*ast.CallExpr

	ast.Inspect(body, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.FuncLit:
			checkBody(pass, node.Body, "a function literal")
			return false
		case *ast.DeferStmt:
			hasDefer = true
		case *ast.CallExpr:
			if exitName(pass, node) != "" {
				exits = append(exits, node)
			}
		}
		return true
	})

	if !hasDefer {
		return
	}
	for _, call := range exits {
		pass.Reportf(call.Pos(), "%s skips the deferred calls of %s", exitName(pass, call), name)
	}
}

func exitName(pass *analysis.Pass, call *ast.CallExpr) string {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return ""
	}
	fn, ok := pass.TypesInfo.Uses[sel.Sel].(*types.Func)
	if !ok || fn.Pkg() == nil {
		return ""
	}

	switch path := fn.Pkg().Path(); {
	case path == "os" && fn.Name() == "Exit":
		return "os.Exit"
	case path == "log" && strings.HasPrefix(fn.Name(), "Fatal"):
		return "log." + fn.Name()
	}
	return ""
}

func isGoBuildCacheFile(path string) bool {
	path = filepath.ToSlash(path)
	return strings.Contains(path, "/go-build/") || strings.Contains(path, `\go-build\`)
}
