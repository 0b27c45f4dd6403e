// Package mlconfig defines minileaf's configuration surface (spec §6) and
// an optional JSONC (hujson) file loader for it.
package mlconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/tailscale/hujson"
)

// Config configures a Handle (pkg/collection). Zero-valued fields fall
// back to the defaults documented per field.
type Config struct {
	// DataDir is the root directory collections are stored under. Required
	// unless MemoryOnly is set.
	DataDir string `json:"data_dir"` //nolint:tagliatelle

	// EncryptionKey, if non-nil, must be exactly 32 bytes and is used to
	// AEAD-seal every record and snapshot written to disk. Nil disables
	// encryption.
	EncryptionKey []byte `json:"-"`

	// AutosaveInterval is the cadence at which each open collection's
	// background task calls Compact on its storage engine (a snapshot for
	// the WAL+snapshot engine). Defaults to DefaultAutosaveInterval.
	AutosaveInterval time.Duration `json:"autosave_interval_ms"` //nolint:tagliatelle

	// SnapshotInterval is loaded and defaulted to DefaultSnapshotInterval,
	// but no background task reads it: periodic snapshots run only at
	// AutosaveInterval.
	SnapshotInterval time.Duration `json:"snapshot_interval_ms"` //nolint:tagliatelle

	// WALMaxBytesBeforeSnapshot triggers a snapshot once the WAL exceeds
	// this size. Defaults to DefaultWALMaxBytesBeforeSnapshot.
	WALMaxBytesBeforeSnapshot int64 `json:"wal_max_bytes_before_snapshot"` //nolint:tagliatelle

	// MemoryOnly selects the in-memory engine: no durability, no DataDir
	// required.
	MemoryOnly bool `json:"memory_only"` //nolint:tagliatelle

	// CacheSize, if positive, selects the LRU+log engine with this many
	// materialized documents held in RAM. Zero selects the WAL+snapshot
	// engine instead. WithDefaults fills a zero CacheSize with
	// DefaultCacheSize; collection.Open makes the engine choice from the
	// value it was given, before applying defaults.
	CacheSize int `json:"cache_size"` //nolint:tagliatelle

	// SyncOnWrite fsyncs after every write. Defaults to true.
	SyncOnWrite *bool `json:"sync_on_write"` //nolint:tagliatelle

	// MaxDocumentSize rejects documents whose serialized size exceeds this
	// many bytes. Zero means no cap.
	MaxDocumentSize int `json:"max_document_size"` //nolint:tagliatelle

	// BackgroundIndexBuild runs CreateIndex's existing-document iteration
	// on a background worker instead of the caller's goroutine.
	BackgroundIndexBuild bool `json:"background_index_build"` //nolint:tagliatelle

	// Logger receives structured diagnostics for background-task failures
	// (spec §7: logged, never fatal). A nil Logger defaults to zerolog.Nop().
	Logger *zerolog.Logger `json:"-"`
}

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultAutosaveInterval          = 5 * time.Second
	DefaultSnapshotInterval          = time.Minute
	DefaultWALMaxBytesBeforeSnapshot = 16 * 1024 * 1024
	DefaultCacheSize                 = 1024
)

// SyncOnWriteOrDefault returns cfg.SyncOnWrite, defaulting to true when
// unset (spec §6: "sync_on_write — fsync per write (default true)").
func (c Config) SyncOnWriteOrDefault() bool {
	if c.SyncOnWrite == nil {
		return true
	}

	return *c.SyncOnWrite
}

// WithDefaults returns a copy of c with zero-valued cadence/size fields
// replaced by their documented defaults.
func (c Config) WithDefaults() Config {
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = DefaultAutosaveInterval
	}

	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}

	if c.WALMaxBytesBeforeSnapshot <= 0 {
		c.WALMaxBytesBeforeSnapshot = DefaultWALMaxBytesBeforeSnapshot
	}

	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}

	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}

	return c
}

// fileConfig mirrors the on-disk JSONC shape; EncryptionKey and Logger are
// process-only and never round-trip through a file.
type fileConfig struct {
	DataDir                   string `json:"data_dir"`                     //nolint:tagliatelle
	AutosaveIntervalMS        int64  `json:"autosave_interval_ms"`         //nolint:tagliatelle
	SnapshotIntervalMS        int64  `json:"snapshot_interval_ms"`         //nolint:tagliatelle
	WALMaxBytesBeforeSnapshot int64  `json:"wal_max_bytes_before_snapshot"` //nolint:tagliatelle
	MemoryOnly                bool   `json:"memory_only"`                  //nolint:tagliatelle
	CacheSize                 int    `json:"cache_size"`                   //nolint:tagliatelle
	SyncOnWrite               *bool  `json:"sync_on_write"`                //nolint:tagliatelle
	MaxDocumentSize           int    `json:"max_document_size"`            //nolint:tagliatelle
	BackgroundIndexBuild      bool   `json:"background_index_build"`       //nolint:tagliatelle
}

// LoadFile reads a JSONC (JSON-with-comments) config file at path, using
// hujson to standardize it before unmarshaling. Returns a Config with
// EncryptionKey and Logger left zero-valued; callers set those from a
// process-only source (e.g. an env var or secrets manager), never from a
// config file on disk.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return Config{}, fmt.Errorf("mlconfig: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("mlconfig: %s is not valid JSONC: %w", path, err)
	}

	var fc fileConfig

	if err := json.Unmarshal(standardized, &fc); err != nil {
		return Config{}, fmt.Errorf("mlconfig: %s is not valid JSON: %w", path, err)
	}

	return Config{
		DataDir:                   fc.DataDir,
		AutosaveInterval:          time.Duration(fc.AutosaveIntervalMS) * time.Millisecond,
		SnapshotInterval:          time.Duration(fc.SnapshotIntervalMS) * time.Millisecond,
		WALMaxBytesBeforeSnapshot: fc.WALMaxBytesBeforeSnapshot,
		MemoryOnly:                fc.MemoryOnly,
		CacheSize:                 fc.CacheSize,
		SyncOnWrite:               fc.SyncOnWrite,
		MaxDocumentSize:           fc.MaxDocumentSize,
		BackgroundIndexBuild:      fc.BackgroundIndexBuild,
	}, nil
}
