package library

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir string, manifest string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeLib(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestResolver_TransitiveChain mirrors the layout→geometry→units chain
// (S5): requesting "layout" must pull in its transitive dependencies in
// dependency-first order, and adding an already-included dependency must
// not duplicate it.
func TestResolver_TransitiveChain(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"version": "1",
		"libraries": {
			"units": {"file": "units.jsx", "exports": ["toPoints"]},
			"geometry": {"file": "geometry.jsx", "dependencies": ["units"], "exports": ["area"]},
			"layout": {"file": "layout.jsx", "dependencies": ["geometry"], "exports": ["grid"]}
		}
	}`)
	writeLib(t, dir, "units.jsx", "function toPoints() {}")
	writeLib(t, dir, "geometry.jsx", "function area() {}")
	writeLib(t, dir, "layout.jsx", "function grid() {}")

	r := New(dir, nil)
	out, err := r.Resolve([]string{"layout"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unitsIdx := strings.Index(out, "toPoints")
	geomIdx := strings.Index(out, "function area")
	layoutIdx := strings.Index(out, "function grid")
	if !(unitsIdx < geomIdx && geomIdx < layoutIdx) {
		t.Fatalf("expected units, then geometry, then layout; got order in %q", out)
	}

	out2, err := r.Resolve([]string{"layout", "geometry"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(out2, "function area") != 1 {
		t.Errorf("expected geometry to appear exactly once, got content: %q", out2)
	}
}

func TestResolver_SymbolCollision(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"libraries": {
			"libA": {"file": "a.jsx", "exports": ["foo"]},
			"libB": {"file": "b.jsx", "exports": ["foo"]}
		}
	}`)
	writeLib(t, dir, "a.jsx", "function foo() {}")
	writeLib(t, dir, "b.jsx", "function foo() {}")

	r := New(dir, nil)
	_, err := r.Resolve([]string{"libA", "libB"})
	if err == nil {
		t.Fatal("expected a symbol collision error")
	}
	for _, want := range []string{"foo", "libA", "libB"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got: %v", want, err)
		}
	}
}

func TestResolver_InjectAppendsSentinelAndPayload(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"libraries": {"units": {"file": "units.jsx", "exports": ["toPoints"]}}}`)
	writeLib(t, dir, "units.jsx", "function toPoints() {}")

	r := New(dir, nil)
	out, err := r.Inject("doSomething();", []string{"units"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, UserScriptSentinel) {
		t.Error("expected sentinel comment before user script")
	}
	if strings.Index(out, UserScriptSentinel) > strings.Index(out, "doSomething") ||
		strings.Index(out, "toPoints") > strings.Index(out, UserScriptSentinel) {
		t.Errorf("expected order: library, sentinel, payload; got %q", out)
	}
}

func TestResolver_InjectWithNoIncludesReturnsScriptUnchanged(t *testing.T) {
	r := New(t.TempDir(), nil)
	out, err := r.Inject("only the payload", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "only the payload" {
		t.Errorf("expected unchanged script, got %q", out)
	}
}

func TestResolver_FallbackModeWithNoManifest(t *testing.T) {
	dir := t.TempDir()
	writeLib(t, dir, "helpers.jsx", "function helper() {}")

	r := New(dir, nil)
	out, err := r.Resolve([]string{"helpers"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "function helper") {
		t.Errorf("expected fallback concatenation to include helpers.jsx, got %q", out)
	}
}

func TestResolver_UnknownLibraryFails(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"libraries": {}}`)

	r := New(dir, nil)
	if _, err := r.Resolve([]string{"nope"}); err == nil {
		t.Fatal("expected an error for an unknown library")
	}
}

func TestResolver_ClearCacheForcesReread(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"libraries": {"units": {"file": "units.jsx", "exports": ["toPoints"]}}}`)
	writeLib(t, dir, "units.jsx", "v1")

	r := New(dir, nil)
	out1, _ := r.Resolve([]string{"units"})
	if out1 != "v1" {
		t.Fatalf("expected v1, got %q", out1)
	}

	writeLib(t, dir, "units.jsx", "v2")
	out2, _ := r.Resolve([]string{"units"})
	if out2 != "v1" {
		t.Fatalf("expected cache to still return v1 before ClearCache, got %q", out2)
	}

	r.ClearCache()
	out3, _ := r.Resolve([]string{"units"})
	if out3 != "v2" {
		t.Fatalf("expected v2 after ClearCache, got %q", out3)
	}
}
