package scripts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ValidExtensions are the file extensions pushed by --all
var ValidExtensions = []string{
	".sh",
	".py",
	".pl",
}

// IsScriptFile returns true if the file has a script extension and is not hidden
func IsScriptFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := filepath.Ext(base)
	for _, valid := range ValidExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}

// DiscoverFiles lists the script files at the top level of dir, sorted by
// name. Subdirectories are not searched.
func DiscoverFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if IsScriptFile(entry.Name()) {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	return files, nil
}
