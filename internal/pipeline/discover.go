package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Input is one candidate source file.
type Input struct {
	Path string
	// Explicit is set for files named on the command line rather than found
	// by walking a directory. Explicit files no format accepts are failures.
	Explicit bool
}

// Discover expands paths into the regular files to ingest. Directories are
// walked recursively, dot-files and dot-directories are ignored, and the
// result is sorted by path with duplicates removed.
func Discover(paths []string) ([]Input, error) {
	seen := make(map[string]int)
	var inputs []Input
	add := func(path string, explicit bool) {
		path = filepath.Clean(path)
		if i, ok := seen[path]; ok {
			inputs[i].Explicit = inputs[i].Explicit || explicit
			return
		}
		seen[path] = len(inputs)
		inputs = append(inputs, Input{Path: path, Explicit: explicit})
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root, true)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root && d.Name()[0] == '.' {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				add(path, false)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Path < inputs[j].Path })
	return inputs, nil
}

// Checksum is the hex SHA-256 of the concatenated contents of paths.
func Checksum(paths ...string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		if err := hashFile(h, p); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	return nil
}
