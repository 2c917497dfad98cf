package filtmgr

import (
	"os"

	"github.com/rishabg/bloomd/internal/bloomfilter"
)

// discoverFilterNames scans dataDir for immediate children whose name
// is at least 8 characters and begins with bloomfilter.FolderPrefix,
// returning the filter name with the prefix stripped.
func discoverFilterNames(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}

	prefix := bloomfilter.FolderPrefix
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) < 8 {
			continue
		}
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		names = append(names, name[len(prefix):])
	}
	return names, nil
}
