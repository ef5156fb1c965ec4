package library

import (
	"testing"

	"github.com/spf13/afero"
)

func TestSanitizeDirName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"One Piece", "One Piece"},
		{"Fate/stay night", "Fate_stay night"},
		{`a:b*c?d"e<f>g|h`, "a_b_c_d_e_f_g_h"},
		{"Trailing dots...", "Trailing dots"},
		{"  padded  ", "padded"},
		{"", "untitled"},
		{"...", "untitled"},
	}
	for _, tt := range tests {
		if got := sanitizeDirName(tt.in); got != tt.want {
			t.Errorf("sanitizeDirName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeDirName_Transliterates(t *testing.T) {
	got := sanitizeDirName("進撃の巨人")
	if got == "" || got == "untitled" {
		t.Fatalf("expected transliterated name, got %q", got)
	}
	for _, r := range got {
		if r > 0x7f {
			t.Fatalf("expected ASCII output, got %q", got)
		}
	}
}

func TestDirsRename(t *testing.T) {
	fs := afero.NewMemMapFs()
	dirs := NewDirs(fs, "/titles")

	if err := fs.MkdirAll(dirs.TitleDir("Old"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := dirs.Rename("Old", "New"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	moved, _ := afero.DirExists(fs, dirs.TitleDir("New"))
	if !moved {
		t.Error("expected new directory to exist")
	}
	old, _ := afero.DirExists(fs, dirs.TitleDir("Old"))
	if old {
		t.Error("expected old directory to be gone")
	}
}

func TestDirsRename_MissingSourceIsNoop(t *testing.T) {
	dirs := NewDirs(afero.NewMemMapFs(), "/titles")

	if err := dirs.Rename("Never Downloaded", "New"); err != nil {
		t.Fatalf("expected no-op rename, got %v", err)
	}
}

func TestDirsRename_ExistingTargetFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	dirs := NewDirs(fs, "/titles")

	fs.MkdirAll(dirs.TitleDir("Old"), 0o755)
	fs.MkdirAll(dirs.TitleDir("New"), 0o755)

	if err := dirs.Rename("Old", "New"); err == nil {
		t.Fatal("expected error when target directory exists")
	}
}

func TestDirsRename_SameSanitizedName(t *testing.T) {
	fs := afero.NewMemMapFs()
	dirs := NewDirs(fs, "/titles")
	fs.MkdirAll(dirs.TitleDir("Name?"), 0o755)

	// Different raw titles collapsing to the same directory are a no-op.
	if err := dirs.Rename("Name?", "Name*"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}
