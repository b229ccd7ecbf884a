// Package collect gathers the configuration files of a server directory
// and fingerprints them for file-set snapshots.
package collect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/flemzord/snapkeep/internal/errdefs"
)

// MaxFileSize is the largest file collected. Larger files are skipped.
const MaxFileSize = 1 << 20

// KnownFiles are always collected when present.
var KnownFiles = []string{
	"server.properties",
	"config.env",
	"docker-compose.yml",
	"bukkit.yml",
	"spigot.yml",
	"paper.yml",
	"paper-global.yml",
	"paper-world-defaults.yml",
	"ops.json",
	"whitelist.json",
	"banned-players.json",
	"banned-ips.json",
}

// Extensions select additional files from the scanned directories.
var Extensions = []string{".yml", ".yaml", ".json", ".properties"}

// scanDirs are the directories, relative to the root, that are scanned.
var scanDirs = []string{".", "config"}

// File is one collected file.
type File struct {
	// Path is slash-separated and relative to the collected root.
	Path string
	Hash string
	Size int64
	Data []byte
}

// Collector returns the current set of files for a directory.
type Collector interface {
	Collect(ctx context.Context, root string) ([]File, error)
}

// FSCollector collects from the local filesystem.
type FSCollector struct{}

// Compile-time interface check.
var _ Collector = FSCollector{}

// Collect implements Collector. A missing root yields no files. Files are
// returned sorted by path.
func (FSCollector) Collect(ctx context.Context, root string) ([]File, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var files []File

	for _, dir := range scanDirs {
		entries, err := os.ReadDir(filepath.Join(root, dir))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, errdefs.Storage("read "+dir, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !e.Type().IsRegular() || !wanted(e.Name()) {
				continue
			}
			rel := path.Join(dir, e.Name())
			if _, dup := seen[rel]; dup {
				continue
			}
			f, ok, err := readFile(root, rel)
			if err != nil {
				return nil, err
			}
			if ok {
				seen[rel] = struct{}{}
				files = append(files, f)
			}
		}
	}

	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Path, b.Path) })
	return files, nil
}

func wanted(name string) bool {
	if slices.Contains(KnownFiles, name) {
		return true
	}
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(name)))
}

func readFile(root, rel string) (File, bool, error) {
	full := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return File{}, false, errdefs.Storage("stat "+rel, err)
	}
	if info.Size() > MaxFileSize {
		return File{}, false, nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return File{}, false, errdefs.Storage("read "+rel, err)
	}
	return File{Path: rel, Hash: Hash(data), Size: int64(len(data)), Data: data}, true, nil
}

// Hash returns the lowercase hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
