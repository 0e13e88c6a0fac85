package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "merkledrop"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule lists what a context layer may import besides the standard library.
// Paths starting with "/" are relative to the owning service.
type layerRule struct {
	allowed    []string
	thirdParty bool
}

var layerRules = map[string]layerRule{
	"domain":      {allowed: []string{"/domain"}},
	"application": {allowed: []string{"/application", "/domain", "/ports", modulePath + "/contracts"}},
	"ports":       {allowed: []string{"/domain", "/ports", modulePath + "/contracts"}},
	"transport":   {allowed: []string{"/transport"}},
	"adapters":    {allowed: []string{"/adapters", "/application", "/domain", "/ports", "/transport", modulePath + "/contracts"}, thirdParty: true},
}

func main() {
	root := "contexts"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	violations := collectViolations(root)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		return violations[i].Import < violations[j].Import
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(path), "/")
		if len(parts) < 4 || parts[0] != "contexts" {
			return nil
		}
		servicePrefix := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[1], parts[2])
		violations = append(violations, validateFile(path, servicePrefix, parts[3])...)
		return nil
	})
	return violations
}

func validateFile(path string, servicePrefix string, layer string) []violation {
	normalized := filepath.ToSlash(path)
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: normalized, Line: 1, Rule: "file must parse"}}
	}

	rule, layered := layerRules[layer]
	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		report := func(reason string) {
			violations = append(violations, violation{
				File:   normalized,
				Line:   fset.Position(imp.Pos()).Line,
				Import: importPath,
				Rule:   reason,
			})
		}

		if hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, servicePrefix) {
			report("cross-service imports are forbidden")
			continue
		}
		if !layered || isStdlib(importPath) {
			continue
		}
		if hasPrefix(importPath, modulePath+"/internal") {
			report(layer + " must not import runtime infrastructure")
			continue
		}
		if !hasPrefix(importPath, modulePath) {
			if !rule.thirdParty {
				report(layer + " must not import third-party packages")
			}
			continue
		}
		if !isAllowed(importPath, servicePrefix, rule.allowed) {
			report(layer + " import is outside explicit allowlist")
		}
	}
	return violations
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, servicePrefix string, allowed []string) bool {
	for _, p := range allowed {
		if strings.HasPrefix(p, "/") {
			p = servicePrefix + p
		}
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first := importPath
	if idx := strings.Index(first, "/"); idx != -1 {
		first = first[:idx]
	}
	return !strings.Contains(first, ".")
}
