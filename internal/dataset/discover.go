package dataset

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// DiscoverFiles walks root and maps each wanted base name to the first
// matching path in lexical order.
func DiscoverFiles(root string, names ...string) (map[string]string, error) {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	var entries []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if wanted[d.Name()] {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover corpus: %w", err)
	}
	sort.Strings(entries)

	found := make(map[string]string, len(names))
	for _, path := range entries {
		base := filepath.Base(path)
		if _, ok := found[base]; !ok {
			found[base] = path
		}
	}
	for _, name := range names {
		if _, ok := found[name]; !ok {
			return nil, fmt.Errorf("discover corpus: %s not found under %s", name, root)
		}
	}
	return found, nil
}
