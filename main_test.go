package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ldemailly/onefile/bundle"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

var library = map[string]string{
	"qfw/qfw.h":                "#pragma once\n#include \"internal/vectorize.h\"\n#include <vector>\nvoid qfw();\n",
	"qfw/internal/vectorize.h": "#pragma once\n#include \"../utils.h\"\nvoid vec();\n",
	"qfw/utils.h":              "#pragma once\nvoid utils();\n",
}

func TestRunWritesOutput(t *testing.T) {
	root := writeFiles(t, library)
	dot := filepath.Join(t.TempDir(), "includes.dot")
	cfg := Config{Entry: "qfw/qfw.h", Root: root, Output: "combined.h", DotFile: dot, Sum: true}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(root, "combined.h"))
	if err != nil {
		t.Fatal(err)
	}
	want := "void utils();\n\nvoid vec();\n\n#include <vector>\nvoid qfw();\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	dotData, err := os.ReadFile(dot)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(dotData), `"qfw/internal/vectorize.h" -> "qfw/utils.h"`) {
		t.Errorf("dot output missing edge:\n%s", dotData)
	}

	// Same tree, same bytes.
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	again, err := os.ReadFile(filepath.Join(root, "combined.h"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(string(got), string(again)); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".combined.h") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestRunMissingHeaderWritesNothing(t *testing.T) {
	files := map[string]string{
		"a.h":     "#include \"b.h\"\n",
		"b.h":     "#include \"missing.h\"\n",
		"keep.h":  "previous\n",
		"other.h": "x\n",
	}
	root := writeFiles(t, files)
	err := Run(context.Background(), Config{Entry: "a.h", Root: root, Output: "out.h"})
	var nf *bundle.HeaderNotFoundError
	if !errors.As(err, &nf) || nf.Header != "missing.h" {
		t.Fatalf("expected missing.h not found, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "out.h")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output should not exist, stat err = %v", err)
	}

	// An existing output is left untouched.
	err = Run(context.Background(), Config{Entry: "a.h", Root: root, Output: "keep.h"})
	if err == nil {
		t.Fatal("expected error")
	}
	data, err := os.ReadFile(filepath.Join(root, "keep.h"))
	if err != nil || string(data) != "previous\n" {
		t.Errorf("keep.h changed: %q, %v", data, err)
	}
}

func TestRunAbsoluteOutputAndDedupe(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.h": "#include \"b.h\"\n#include \"b.h\"\nA\n",
		"b.h": "#pragma once\nB\n",
	})
	out := filepath.Join(t.TempDir(), "single.h")
	if err := Run(context.Background(), Config{Entry: "a.h", Root: root, Output: out, Dedupe: true}); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("B\n\n\nA\n", string(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRunBadRepo(t *testing.T) {
	err := Run(context.Background(), Config{Entry: "a.h", Root: t.TempDir(), GitHub: "not-a-repo"})
	if err == nil || !strings.Contains(err.Error(), "invalid repository") {
		t.Errorf("expected invalid repository error, got %v", err)
	}
}

func TestRunDotRelativeToRoot(t *testing.T) {
	root := writeFiles(t, library)
	cfg := Config{Entry: "qfw/qfw.h", Root: root, Output: "combined.h", DotFile: "includes.dot"}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"combined.h", "includes.dot"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("%s should be next to the sources: %v", name, err)
		}
	}
}

func TestRunReportFailureKeepsSuccess(t *testing.T) {
	root := writeFiles(t, library)
	cfg := Config{
		Entry:   "qfw/qfw.h",
		Root:    root,
		Output:  "combined.h",
		DotFile: filepath.Join(root, "no", "such", "dir", "includes.dot"),
	}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("report failure should not fail the run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "combined.h")); err != nil {
		t.Errorf("bundle should be written: %v", err)
	}
}
