// Package nofloatmoney forbids binary floating point for monetary struct
// fields. Amounts and balances are decimal.Decimal or decimal strings.
package nofloatmoney

import (
	"go/ast"
	"go/types"
	"regexp"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

var moneyName = regexp.MustCompile(`(?i)(amount|balance|price|total)`)

var Analyzer = &analysis.Analyzer{
	Name:     "nofloatmoney",
	Doc:      "reports float struct fields named like amounts or balances",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	inspect.Preorder([]ast.Node{(*ast.StructType)(nil)}, func(n ast.Node) {
		for _, field := range n.(*ast.StructType).Fields.List {
			if !isFloat(pass.TypesInfo.TypeOf(field.Type)) {
				continue
			}
			for _, name := range field.Names {
				if moneyName.MatchString(name.Name) {
					pass.Reportf(name.Pos(), "money field %s is a float; use decimal.Decimal", name.Name)
				}
			}
		}
	})

	return nil, nil
}

func isFloat(t types.Type) bool {
	if t == nil {
		return false
	}
	if pointer, ok := t.Underlying().(*types.Pointer); ok {
		t = pointer.Elem()
	}
	basic, ok := t.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsFloat != 0
}
