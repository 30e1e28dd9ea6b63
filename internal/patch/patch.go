// Package patch applies source patches to installed third-party packages.
// Each patch is guarded by a marker string that the patch itself adds to a
// check file: when the marker is already present the patch is skipped, which
// makes repeated setup runs safe.
package patch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"sparxel/internal/diff"
	"sparxel/internal/manifest"
)

// Patcher applies one patch file with paths relative to root
type Patcher interface {
	Apply(ctx context.Context, root, patchFile string) error
}

// ExecPatcher runs the patch(1) utility
type ExecPatcher struct {
	Path string // Resolved location of the patch executable
}

// Apply runs "patch -p0 -N -i <patchFile>" inside root
func (p ExecPatcher) Apply(ctx context.Context, root, patchFile string) error {
	exe := p.Path
	if exe == "" {
		exe = "patch"
	}
	cmd := exec.CommandContext(ctx, exe, "-p0", "-N", "-i", patchFile)
	cmd.Dir = root
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(out.String()); msg != "" {
			return fmt.Errorf("%w\n%s", err, msg)
		}
		return err
	}
	return nil
}

// Outcome of one patch entry
type Outcome int

const (
	Applied Outcome = iota
	AlreadyApplied
	WouldApply // Dry run: marker absent, nothing changed
)

// Result describes what happened to one entry
type Result struct {
	Entry    manifest.PatchEntry
	RelPatch string
	Outcome  Outcome
	Changes  diff.Stat // Lines changed in the check file, when Applied
	Diff     string    // Unified diff of the check file, when Applied
}

// Applier scans and applies a patch set
type Applier struct {
	Root    string
	Patcher Patcher
	DryRun  bool
}

// ApplyAll resolves every entry concurrently. All paths are built from Root;
// the working directory is never changed. Results keep declaration order.
func (a *Applier) ApplyAll(ctx context.Context, spec manifest.PatchSpec) ([]Result, error) {
	results := make([]Result, len(spec.Entries))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range spec.Entries {
		i, entry := i, entry
		g.Go(func() error {
			res, err := a.applyOne(gctx, spec, entry)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *Applier) applyOne(ctx context.Context, spec manifest.PatchSpec, entry manifest.PatchEntry) (Result, error) {
	res := Result{Entry: entry, RelPatch: spec.RelPatch(entry)}
	checkPath := a.resolve(entry.CheckFile)

	found, err := ContainsMarker(ctx, checkPath, entry.Marker)
	if err != nil {
		return res, fmt.Errorf("failed to check %s: %w", entry.CheckFile, err)
	}
	if found {
		res.Outcome = AlreadyApplied
		return res, nil
	}
	if a.DryRun {
		res.Outcome = WouldApply
		return res, nil
	}

	before, err := os.ReadFile(checkPath)
	if err != nil {
		return res, fmt.Errorf("failed to read %s: %w", entry.CheckFile, err)
	}
	if err := a.Patcher.Apply(ctx, a.Root, a.resolve(res.RelPatch)); err != nil {
		return res, fmt.Errorf("failed to apply patch %s: %w", res.RelPatch, err)
	}
	after, err := os.ReadFile(checkPath)
	if err != nil {
		return res, fmt.Errorf("failed to read %s: %w", entry.CheckFile, err)
	}

	res.Outcome = Applied
	res.Changes = diff.Summarize(before, after)
	res.Diff, err = diff.Unified(entry.CheckFile, entry.CheckFile, before, after)
	if err != nil {
		return res, fmt.Errorf("failed to diff %s: %w", entry.CheckFile, err)
	}
	return res, nil
}

func (a *Applier) resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(a.Root, filepath.FromSlash(rel))
}

// ContainsMarker reads path line by line and stops at the first line that
// contains marker. Lines longer than the read buffer are matched in chunks,
// keeping enough of the previous chunk that a marker split across the
// boundary is still found.
func ContainsMarker(ctx context.Context, path, marker string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	needle := []byte(marker)
	keep := len(needle) - 1
	r := bufio.NewReader(f)
	var window []byte
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		chunk, isPrefix, err := r.ReadLine()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		window = append(window, chunk...)
		if bytes.Contains(window, needle) {
			return true, nil
		}
		if !isPrefix || keep <= 0 {
			window = window[:0]
			continue
		}
		if len(window) > keep {
			window = append(window[:0], window[len(window)-keep:]...)
		}
	}
}
