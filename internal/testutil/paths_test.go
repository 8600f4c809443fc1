package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/mod/modfile"
)

func TestFindProjectRoot(t *testing.T) {
	root, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("FindProjectRoot returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("go.mod not found at %s: %v", root, err)
	}
	if got := modfile.ModulePath(data); got != ModulePath {
		t.Errorf("module = %q, want %q", got, ModulePath)
	}
}

func TestFindModuleRootSkipsOtherModules(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "examples", "other", "pkg")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	writeGoMod(t, root, "example.com/wanted")
	writeGoMod(t, filepath.Join(root, "examples", "other"), "example.com/other")

	got, err := findModuleRoot(nested, "example.com/wanted")
	if err != nil || got != root {
		t.Errorf("findModuleRoot = %q, %v, want %q", got, err, root)
	}

	if _, err := findModuleRoot(nested, "example.com/missing"); err == nil {
		t.Error("expected error for an unknown module")
	}
}

func writeGoMod(t *testing.T, dir, module string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module "+module+"\n\ngo 1.25\n"), 0644); err != nil {
		t.Fatal(err)
	}
}
