package block

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// tempDirName is the subdirectory created under the home or working
// directory as a last-resort fallback candidate.
const tempDirName = ".xsort-tmp"

var (
	preferredDir string
	dirOnce      sync.Once
	cachedHome   string
	cachedCwd    string
)

// chooseTempDir returns the directory a disk's backing file should be
// created in. If dir is non-empty and usable it is returned as-is;
// otherwise a disk-backed (non-tmpfs) candidate is discovered once and
// cached, falling back to os.TempDir(). Grounded on
// _examples/lanrat-extsort/tempfile/tempdir.go's directory-discovery
// shape, simplified: xsort's DiskManager owns one set of backing files
// for all disks rather than one temp file per logical section, so most of
// the source's per-preference candidate machinery collapses to a single
// cached choice.
func chooseTempDir(dir string) string {
	if dir != "" && isDirUsable(dir) {
		return dir
	}
	dirOnce.Do(discoverPreferredDir)
	return preferredDir
}

func discoverPreferredDir() {
	if home, err := os.UserHomeDir(); err == nil {
		cachedHome = home
	}
	if cwd, err := os.Getwd(); err == nil {
		cachedCwd = cwd
	}

	candidates := diskBackedCandidates()
	candidates = append(candidates, os.TempDir())
	if cachedHome != "" {
		candidates = append(candidates, filepath.Join(cachedHome, tempDirName))
	}
	if cachedCwd != "" {
		candidates = append(candidates, filepath.Join(cachedCwd, tempDirName))
	}

	for _, c := range candidates {
		if isDirUsable(c) {
			preferredDir = c
			return
		}
	}
	preferredDir = os.TempDir()
}

// diskBackedCandidates returns directories that are more likely to be
// disk-backed rather than memory-backed (like tmpfs), mirroring
// _examples/lanrat-extsort/tempfile/tempdir.go's buildDiskPreferredCandidates.
// On Unix-like systems, /var/tmp is traditionally disk-backed, unlike /tmp
// which may be tmpfs.
func diskBackedCandidates() []string {
	var candidates []string
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "openbsd", "netbsd", "dragonfly", "solaris":
		candidates = append(candidates, "/var/tmp")
		if runtime.GOOS == "darwin" {
			candidates = append(candidates, "/private/var/tmp")
		}
	}
	return candidates
}

// isDirUsable reports whether dir exists and is a directory, or does not
// exist yet and could plausibly be created; actual writability is only
// proven when a backing file is opened.
func isDirUsable(dir string) bool {
	stat, err := os.Stat(dir)
	if err != nil {
		return os.IsNotExist(err)
	}
	return stat.IsDir()
}
