// Package artifact locates engine executables on disk.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// DefaultPattern matches engine builds such as chess-engine-2.9.0.jar. The
// first capture group is the version.
const DefaultPattern = `^chess-engine-(\d+\.\d+\.\d+)\.jar$`

// ErrNotFound is returned when no file in the directory matches the pattern.
var ErrNotFound = errors.New("no matching artifact")

// Candidate is one matching file.
type Candidate struct {
	Path    string
	Version string // canonical semver ("v2.9.0"), empty when the name carries none
}

// Find lists the files in dir whose base name matches pattern, highest
// version first. Files without a parsable version sort after versioned ones,
// in reverse name order.
func Find(dir, pattern string) ([]Candidate, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("artifact pattern %q: %w", pattern, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read artifact dir: %w", err)
	}
	var out []Candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		out = append(out, Candidate{
			Path:    filepath.Join(dir, e.Name()),
			Version: versionOf(m),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := semver.Compare(a.Version, b.Version); c != 0 {
			return c > 0
		}
		return filepath.Base(a.Path) > filepath.Base(b.Path)
	})
	return out, nil
}

// Latest returns the path of the highest-versioned artifact in dir.
func Latest(dir, pattern string) (string, error) {
	found, err := Find(dir, pattern)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNotFound, dir)
	}
	return found[0].Path, nil
}

// Identity derives an engine name from an artifact path: the base name
// without its extension.
func Identity(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func versionOf(m []string) string {
	if len(m) < 2 || m[1] == "" {
		return ""
	}
	v := m[1]
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
