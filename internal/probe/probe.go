// Package probe checks host preconditions before any stage touches disk:
// the runtime that installed the project's dependencies must be recent
// enough, and every required executable must be on the search path.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	ErrRuntimeTooOld = errors.New("runtime version too old")
	ErrToolNotFound  = errors.New("required tool not found")
)

// ExecutablePathIndex maps a tool name to its resolved location
type ExecutablePathIndex map[string]string

// Path returns the resolved location of tool
func (x ExecutablePathIndex) Path(tool string) (string, bool) {
	p, ok := x[tool]
	return p, ok
}

// Names returns the resolved tool names in sorted order
func (x ExecutablePathIndex) Names() []string {
	names := make([]string, 0, len(x))
	for name := range x {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options controls a probe run
type Options struct {
	RuntimeCommand  string // Empty skips the version check
	MinRuntimeMajor int
	Tools           []string

	// LookPath and RuntimeVersion default to exec.LookPath and running
	// "<RuntimeCommand> --version".
	LookPath       func(file string) (string, error)
	RuntimeVersion func(ctx context.Context, command string) (string, error)
}

// Result is what a successful probe learned about the host
type Result struct {
	RuntimeVersion string
	Executables    ExecutablePathIndex
}

// Run verifies the runtime version, then resolves every tool concurrently.
// The version check happens first so an outdated runtime aborts before any
// tool lookup.
func Run(ctx context.Context, opts Options) (*Result, error) {
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	runtimeVersion := opts.RuntimeVersion
	if runtimeVersion == nil {
		runtimeVersion = commandVersion
	}

	result := &Result{}
	if opts.RuntimeCommand != "" {
		raw, err := runtimeVersion(ctx, opts.RuntimeCommand)
		if err != nil {
			return nil, fmt.Errorf("failed to determine %s version: %w", opts.RuntimeCommand, err)
		}
		major, err := MajorVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s version: %w", opts.RuntimeCommand, err)
		}
		if major < opts.MinRuntimeMajor {
			return nil, fmt.Errorf("%w: %s v%d is required, %s is installed",
				ErrRuntimeTooOld, opts.RuntimeCommand, opts.MinRuntimeMajor, strings.TrimSpace(raw))
		}
		result.RuntimeVersion = strings.TrimSpace(raw)
	}

	index, err := resolveTools(ctx, opts.Tools, lookPath)
	if err != nil {
		return nil, err
	}
	result.Executables = index
	return result, nil
}

func resolveTools(ctx context.Context, tools []string, lookPath func(string) (string, error)) (ExecutablePathIndex, error) {
	var mu sync.Mutex
	index := make(ExecutablePathIndex, len(tools))

	g, gctx := errgroup.WithContext(ctx)
	for _, tool := range tools {
		tool := tool
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := lookPath(tool)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrToolNotFound, tool, err)
			}
			mu.Lock()
			index[tool] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return index, nil
}

// MajorVersion extracts the leading major number from strings such as
// "v18.19.0", "18.19.0" or "node v20.1.0".
func MajorVersion(raw string) (int, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty version string")
	}
	v := strings.TrimPrefix(fields[len(fields)-1], "v")
	head, _, _ := strings.Cut(v, ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("unrecognized version %q", raw)
	}
	return major, nil
}

func commandVersion(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, command, "--version")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w\n%s", err, msg)
		}
		return "", err
	}
	return string(out), nil
}
