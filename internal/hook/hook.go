package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Target describes the managed hook of one project
type Target struct {
	GitDir     string // <project>/.git
	HookPath   string // <project>/.git/hooks/<name>
	LinkTarget string // Symlink content, relative to the hooks directory
}

// LinkStatus represents the state of the hook symlink
type LinkStatus struct {
	RepoPresent bool   // Does the version-control directory exist?
	Exists      bool   // Is there anything at the hook path?
	IsSymlink   bool   // Is the hook path a symlink?
	Linked      bool   // Does the symlink point at our tracked script?
	SymlinkDest string // Where the symlink points (if it is one)
	Error       error  // Any error encountered
}

// RepoPresent reports whether the version-control directory exists
func RepoPresent(t Target) bool {
	info, err := os.Stat(t.GitDir)
	return err == nil && info.IsDir()
}

// Check inspects the hook path without modifying anything
func Check(t Target) LinkStatus {
	status := LinkStatus{RepoPresent: RepoPresent(t)}
	if !status.RepoPresent {
		return status
	}

	info, err := os.Lstat(t.HookPath)
	if err != nil {
		if os.IsNotExist(err) {
			return status
		}
		status.Error = fmt.Errorf("failed to stat hook: %w", err)
		return status
	}
	status.Exists = true

	if info.Mode()&os.ModeSymlink == 0 {
		return status
	}
	status.IsSymlink = true

	dest, err := os.Readlink(t.HookPath)
	if err != nil {
		status.Error = fmt.Errorf("failed to read symlink: %w", err)
		return status
	}
	status.SymlinkDest = dest
	status.Linked = sameTarget(t.HookPath, dest, t.LinkTarget)
	return status
}

// sameTarget compares two symlink values as seen from linkPath
func sameTarget(linkPath, a, b string) bool {
	abs := func(p string) string {
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(linkPath), p)
		}
		return filepath.Clean(p)
	}
	return abs(a) == abs(b)
}

// Unlink removes whatever is at the hook path. A missing hook is not an error.
func Unlink(t Target) error {
	err := os.Remove(t.HookPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Link creates the hook symlink, creating the hooks directory if needed
func Link(t Target) error {
	if err := os.MkdirAll(filepath.Dir(t.HookPath), 0755); err != nil {
		return fmt.Errorf("failed to create hooks directory: %w", err)
	}
	if runtime.GOOS == "windows" {
		return createWindowsLink(t.HookPath, t.LinkTarget)
	}
	return os.Symlink(t.LinkTarget, t.HookPath)
}

// createWindowsLink creates a file symlink on Windows, which requires
// developer mode or admin rights
func createWindowsLink(linkPath, target string) error {
	return os.Symlink(filepath.FromSlash(target), linkPath)
}

// ScriptPath returns the absolute path the link target resolves to
func ScriptPath(t Target) string {
	if filepath.IsAbs(t.LinkTarget) {
		return t.LinkTarget
	}
	return filepath.Clean(filepath.Join(filepath.Dir(t.HookPath), t.LinkTarget))
}
