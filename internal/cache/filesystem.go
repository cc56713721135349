package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/colthorp/spacetraders-cache-go/internal/core"
)

// FilesystemBackend stores one file per shard on disk.
// Directory layout: <root>/<collection>/<shard><ext>, e.g. ~/.spacetraders/cache/systems/X1-A.json
type FilesystemBackend struct {
	root  string
	codec Codec
}

// NewFilesystemBackend creates a new filesystem-based shard backend.
// An empty root uses the default cache root; a nil codec uses JSON.
func NewFilesystemBackend(root string, codec Codec) *FilesystemBackend {
	if root == "" {
		root = core.CacheRoot()
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	return &FilesystemBackend{root: root, codec: codec}
}

// Root returns the cache root directory.
func (b *FilesystemBackend) Root() string {
	return b.root
}

// Path returns the filesystem path for the given shard.
func (b *FilesystemBackend) Path(id ShardID) string {
	return filepath.Join(b.root, safeName(id.Collection), safeName(id.Name)+b.codec.Ext())
}

// Load returns the shard, or an empty shard if the file is absent or empty.
func (b *FilesystemBackend) Load(id ShardID) (Shard, error) {
	path := b.Path(id)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(Shard), nil
		}
		return make(Shard), fmt.Errorf("cache: read %s: %w", path, err)
	}

	shard, err := b.codec.Unmarshal(data)
	if err != nil {
		return make(Shard), fmt.Errorf("cache: decode %s: %w: %v", path, ErrCorruptShard, err)
	}
	return shard, nil
}

// Save persists the shard atomically.
func (b *FilesystemBackend) Save(id ShardID, shard Shard) error {
	path := b.Path(id)

	data, err := b.codec.Marshal(shard)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", id, err)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cache: mkdir %s: %w", dir, err)
	}

	// Write to a temp file first, then rename (atomic). The suffix is unique
	// so a crashed writer never leaves a temp file another writer reuses.
	tmpPath := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("cache: write %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cache: rename %s: %w", path, err)
	}
	return nil
}

// Delete removes the shard file.
func (b *FilesystemBackend) Delete(id ShardID) error {
	err := os.Remove(b.Path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cache: delete %s: %w", id, err)
	}
	return nil
}

// List returns the shards stored for a collection, sorted by name.
func (b *FilesystemBackend) List(collection string) ([]ShardID, error) {
	dir := filepath.Join(b.root, safeName(collection))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: list %s: %w", collection, err)
	}

	ext := b.codec.Ext()
	ids := make([]ShardID, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ext {
			continue
		}
		ids = append(ids, ShardID{Collection: collection, Name: unsafeName(strings.TrimSuffix(name, ext))})
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Name < ids[j].Name })
	return ids, nil
}

var (
	nameEscaper   = strings.NewReplacer("%", "%25", "/", "%2F", "\\", "%5C")
	nameUnescaper = strings.NewReplacer("%25", "%", "%2F", "/", "%5C", "\\", "%2E", ".")
)

// safeName maps a shard or collection name to a file name inside its
// directory. The mapping is one-to-one, so distinct names never share a file.
func safeName(name string) string {
	switch name {
	case "":
		return "%00"
	case ".", "..":
		return strings.Repeat("%2E", len(name))
	}
	return nameEscaper.Replace(name)
}

// unsafeName reverses safeName.
func unsafeName(file string) string {
	if file == "%00" {
		return ""
	}
	return nameUnescaper.Replace(file)
}
