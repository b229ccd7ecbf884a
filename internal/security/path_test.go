package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/snapkeep/internal/errdefs"
)

func TestResolveWithin_Accepts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, rel := range []string{"server.properties", "config/paper-global.yml", "a/../b.json"} {
		got, err := ResolveWithin(root, rel)
		if err != nil {
			t.Errorf("ResolveWithin(%q) unexpected error: %v", rel, err)
			continue
		}
		base, _ := filepath.EvalSymlinks(root)
		if filepath.Dir(got) != base && filepath.Dir(filepath.Dir(got)) != base {
			t.Errorf("ResolveWithin(%q) = %q, not under %q", rel, got, base)
		}
	}
}

func TestResolveWithin_RejectsEscapes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, rel := range []string{"../outside", "config/../../etc/passwd", "/etc/passwd", ".."} {
		if _, err := ResolveWithin(root, rel); !errdefs.IsSecurity(err) {
			t.Errorf("ResolveWithin(%q) err = %v, want security violation", rel, err)
		}
	}
}

func TestResolveWithin_RejectsSymlinkEscape(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := ResolveWithin(root, "link/file.txt"); !errdefs.IsSecurity(err) {
		t.Errorf("err = %v, want security violation", err)
	}
}
