package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Settings is the persisted server configuration.
type Settings struct {
	ListenAddr   string `json:"listenAddr"`
	DataDir      string `json:"dataDir"`
	DatabasePath string `json:"databasePath"`
	LogPath      string `json:"logPath"`

	// Thumbnail cache roots. Temp holds on-demand fetches, downloads holds
	// images persisted for library titles.
	TempThumbnailCacheDir string `json:"tempThumbnailCacheDir"`
	ThumbnailDownloadsDir string `json:"thumbnailDownloadsDir"`

	// TitlesDir is the root under which each title gets a storage directory
	// named after its (sanitized) title.
	TitlesDir string `json:"titlesDir"`

	// DownloadAheadLimit is the maximum number of not-yet-downloaded chapters
	// to prefetch per title. 0 disables download-ahead scheduling entirely.
	DownloadAheadLimit int `json:"downloadAheadLimit"`

	// LibraryUpdateIntervalHours drives the periodic library refresh.
	// 0 disables the updater.
	LibraryUpdateIntervalHours int `json:"libraryUpdateIntervalHours"`

	// Per-IP rate limit on the endpoints that can trigger source traffic.
	APIRateLimitPerSecond int `json:"apiRateLimitPerSecond"`
	APIRateLimitBurst     int `json:"apiRateLimitBurst"`
}

// DefaultSettings returns settings rooted at dataDir.
func DefaultSettings(dataDir string) *Settings {
	return &Settings{
		ListenAddr:                 ":4567",
		DataDir:                    dataDir,
		DatabasePath:               filepath.Join(dataDir, "library.db"),
		LogPath:                    filepath.Join(dataDir, "logs", "server.log"),
		TempThumbnailCacheDir:      filepath.Join(dataDir, "cache", "thumbnails"),
		ThumbnailDownloadsDir:      filepath.Join(dataDir, "thumbnails"),
		TitlesDir:                  filepath.Join(dataDir, "titles"),
		DownloadAheadLimit:         0,
		LibraryUpdateIntervalHours: 12,
		APIRateLimitPerSecond:      5,
		APIRateLimitBurst:          20,
	}
}

// DataDir resolves the data directory: MANGAVAULT_DATA overrides, otherwise
// ~/.mangavault.
func DataDir() string {
	if p := os.Getenv("MANGAVAULT_DATA"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".mangavault")
}

// Manager loads and saves the settings file. Concurrent readers and writers
// go through the same manager, so access is serialized here.
type Manager struct {
	mu   sync.Mutex
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads the settings file, falling back to defaults when it does not
// exist yet.
func (m *Manager) Load() (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(filepath.Dir(m.path)), nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	settings := DefaultSettings(filepath.Dir(m.path))
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return settings, nil
}

// Save writes the settings file atomically.
func (m *Manager) Save(settings *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, m.path)
}
