//go:build ignore

// check_naked_goroutine.go fails when a `go` statement appears in non-test
// code under internal/ outside the worker package. Background work goes
// through worker.Pools so shutdown can cancel and drain it.
//
// A `//nolint:naked-goroutine` comment on the line above, or on the same
// line, exempts one statement.

package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	root      = "internal"
	exemptDir = "internal/pkg/worker"
	nolintTag = "nolint:naked-goroutine"
)

func main() {
	var violations []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		slash := filepath.ToSlash(path)
		if d.IsDir() {
			if slash == exemptDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(slash, ".go") || strings.HasSuffix(slash, "_test.go") {
			return nil
		}

		found, err := nakedGoroutines(path)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
		return nil
	})
	if err != nil {
		fmt.Printf("[naked-goroutine] FAIL: %v\n", err)
		os.Exit(1)
	}

	if len(violations) > 0 {
		fmt.Println("[naked-goroutine] FAIL")
		for _, v := range violations {
			fmt.Println(" -", v)
		}
		fmt.Println("Submit background work with pools.SubmitDetached or Pool.Submit.")
		os.Exit(1)
	}
	fmt.Println("[naked-goroutine] OK")
}

func nakedGoroutines(path string) ([]string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	exempt := make(map[int]bool)
	for _, group := range file.Comments {
		for _, c := range group.List {
			if strings.Contains(c.Text, nolintTag) {
				line := fset.Position(c.Pos()).Line
				exempt[line] = true
				exempt[line+1] = true
			}
		}
	}

	var out []string
	ast.Inspect(file, func(n ast.Node) bool {
		stmt, ok := n.(*ast.GoStmt)
		if !ok {
			return true
		}
		line := fset.Position(stmt.Pos()).Line
		if !exempt[line] {
			out = append(out, fmt.Sprintf("%s:%d: naked goroutine", path, line))
		}
		return true
	})
	return out, nil
}
