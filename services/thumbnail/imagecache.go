package thumbnail

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// ErrMissing signals that no image is cached for a root/key pair. Callers
// use it to trigger a download-then-retry; any other error is fatal.
var ErrMissing = errors.New("no cached image")

// ImageCache is a content-addressed on-disk image store. Files live at
// <root>/<key><ext> where ext is derived from the image bytes, so a key can
// be looked up and cleared without knowing the format it arrived in.
type ImageCache struct {
	fs afero.Fs
}

func NewImageCache(fs afero.Fs) *ImageCache {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ImageCache{fs: fs}
}

// Get opens the cached image for key and sniffs its content type.
func (c *ImageCache) Get(root, key string) (io.ReadCloser, string, error) {
	path, err := c.find(root, key)
	if err != nil {
		return nil, "", err
	}

	f, err := c.fs.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open cached image %s: %w", path, err)
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("sniff cached image %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, "", err
	}
	return f, mtype.String(), nil
}

// Put stores the image bytes under key, replacing any previous variant. The
// write goes through a temp file so readers never see a partial image.
func (c *ImageCache) Put(root, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read image body: %w", err)
	}

	if err := c.fs.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if err := c.Clear(root, key); err != nil {
		return err
	}

	ext := mimetype.Detect(data).Extension()
	if ext == "" {
		ext = ".jpg"
	}

	tmp := filepath.Join(root, key+".tmp")
	if err := afero.WriteFile(c.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cached image: %w", err)
	}
	return c.fs.Rename(tmp, filepath.Join(root, key+ext))
}

// FetchAndStore returns the cached image for key, running fetch to populate
// the cache when it is absent.
func (c *ImageCache) FetchAndStore(root, key string, fetch func() (*http.Response, error)) (io.ReadCloser, string, error) {
	rc, contentType, err := c.Get(root, key)
	if err == nil {
		return rc, contentType, nil
	}
	if !errors.Is(err, ErrMissing) {
		return nil, "", err
	}

	resp, err := fetch()
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if err := c.Put(root, key, resp.Body); err != nil {
		return nil, "", err
	}
	return c.Get(root, key)
}

// Clear removes every cached variant of key under root.
func (c *ImageCache) Clear(root, key string) error {
	entries, err := afero.ReadDir(c.fs, root)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isVariantOf(entry.Name(), key) {
			if err := c.fs.Remove(filepath.Join(root, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *ImageCache) find(root, key string) (string, error) {
	entries, err := afero.ReadDir(c.fs, root)
	if err != nil {
		if isNotExist(err) {
			return "", fmt.Errorf("image %s/%s: %w", root, key, ErrMissing)
		}
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isVariantOf(entry.Name(), key) && !strings.HasSuffix(entry.Name(), ".tmp") {
			return filepath.Join(root, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("image %s/%s: %w", root, key, ErrMissing)
}

// isVariantOf reports whether name is key plus an extension (or exactly key).
func isVariantOf(name, key string) bool {
	if name == key {
		return true
	}
	return strings.HasPrefix(name, key+".")
}
