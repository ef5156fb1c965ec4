package library

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"github.com/spf13/afero"
)

// Dirs manages the per-title storage directories under the titles root.
type Dirs struct {
	fs   afero.Fs
	root string
}

func NewDirs(fs afero.Fs, root string) *Dirs {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Dirs{fs: fs, root: root}
}

// TitleDir returns the storage directory for a title name.
func (d *Dirs) TitleDir(title string) string {
	return filepath.Join(d.root, sanitizeDirName(title))
}

// Rename moves a title's storage directory to match a new title. A missing
// old directory is fine (nothing downloaded yet); an existing target is not,
// since moving over it could clobber another title's files.
func (d *Dirs) Rename(oldTitle, newTitle string) error {
	oldDir := d.TitleDir(oldTitle)
	newDir := d.TitleDir(newTitle)
	if oldDir == newDir {
		return nil
	}

	exists, err := afero.DirExists(d.fs, oldDir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", oldDir, err)
	}
	if !exists {
		return nil
	}

	targetExists, err := afero.DirExists(d.fs, newDir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", newDir, err)
	}
	if targetExists {
		return fmt.Errorf("rename %s: target %s already exists", oldDir, newDir)
	}

	if err := d.fs.MkdirAll(filepath.Dir(newDir), 0o755); err != nil {
		return err
	}
	return d.fs.Rename(oldDir, newDir)
}

// sanitizeDirName turns a title into a safe directory name: transliterated to
// ASCII, filesystem-reserved characters stripped.
func sanitizeDirName(title string) string {
	name := unidecode.Unidecode(title)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	if name == "" {
		return "untitled"
	}
	return name
}
