package discover

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		path := filepath.Join(root, filepath.FromSlash(r))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestImages(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"App.ilm",
		"libs/Core.ilm.yaml",
		"libs/Util.ILM",
		"libs/notes.txt",
		"libs/vendor/Third.ilm",
		"tests/Fixture.ilm.yml",
		".cache/Hidden.ilm",
		"obfuscated/App.ilm",
		"bin/Debug.ilm",
		"scratch.ilm",
	)
	if err := os.WriteFile(filepath.Join(root, IgnoreFile), []byte("scratch.ilm\nlibs/vendor/\n"), 0o644); err != nil {
		t.Fatalf("write ignore: %v", err)
	}

	got, err := Images(root)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	want := []string{"App.ilm", "libs/Core.ilm.yaml", "libs/Util.ILM", "tests/Fixture.ilm.yml"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Images = %v, want %v", got, want)
	}
}

func TestImagesMissingRoot(t *testing.T) {
	if _, err := Images(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("Images on a missing root succeeded")
	}
}

func TestIsImage(t *testing.T) {
	for name, want := range map[string]bool{
		"A.ilm":      true,
		"A.ilm.yaml": true,
		".ilm":       false,
		"A.il":       false,
		"A.yaml":     false,
	} {
		if got := IsImage(name); got != want {
			t.Fatalf("IsImage(%q) = %v, want %v", name, got, want)
		}
	}
}
