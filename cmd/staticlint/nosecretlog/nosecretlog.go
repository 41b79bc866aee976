// Package nosecretlog defines an analyzer that reports variables and fields
// with secret-looking names passed to logging calls.
package nosecretlog

import (
	"go/ast"
	"go/types"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// Analyzer reports arguments of zap, log and log/slog calls whose variable or
// field name mentions a password, credential or secret. Hashes count too.
var Analyzer = &analysis.Analyzer{
	Name: "nosecretlog",
	Doc:  "prohibits passing password, credential or secret values to loggers",
	Run:  run,
}

var loggerPackages = map[string]bool{
	"go.uber.org/zap": true,
	"log":             true,
	"log/slog":        true,
}

var secretWords = []string{"password", "passwd", "credential", "secret"}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		// Exclude go-build cache files
		filename := pass.Fset.File(file.Pos()).Name()
		if isGoBuildCacheFile(filename) {
			continue
		}

		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}

			fn := loggerFunc(pass, call)
			if fn == nil {
				return true
			}

			for _, arg := range call.Args {
				if name, found := secretIn(pass, arg); found {
					pass.Reportf(arg.Pos(), "possible secret %q passed to %s", name, fn.Name())
				}
			}

			return true
		})
	}

	return nil, nil
}

func loggerFunc(pass *analysis.Pass, call *ast.CallExpr) *types.Func {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return nil
	}

	fn, ok := pass.TypesInfo.Uses[sel.Sel].(*types.Func)
	if !ok || fn.Pkg() == nil || !loggerPackages[fn.Pkg().Path()] {
		return nil
	}

	return fn
}

// secretIn finds the first variable or field in expr named like a secret.
// Function names and package names are ignored.
func secretIn(pass *analysis.Pass, expr ast.Expr) (string, bool) {
	var (
		name  string
		found bool
	)

	ast.Inspect(expr, func(n ast.Node) bool {
		if found {
			return false
		}

		ident, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		if _, isVar := pass.TypesInfo.ObjectOf(ident).(*types.Var); isVar && isSecretName(ident.Name) {
			name, found = ident.Name, true
		}

		return !found
	})

	return name, found
}

func isSecretName(name string) bool {
	lower := strings.ToLower(name)
	for _, word := range secretWords {
		if strings.Contains(lower, word) {
			return true
		}
	}

	return false
}

func isGoBuildCacheFile(path string) bool {
	path = filepath.ToSlash(path)
	return strings.Contains(path, "/go-build/") || strings.Contains(path, `\go-build\`)
}
