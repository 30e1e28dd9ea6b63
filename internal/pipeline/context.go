package pipeline

import (
	"context"
	"errors"
	"fmt"

	"sparxel/internal/config"
	"sparxel/internal/hook"
	"sparxel/internal/manifest"
	"sparxel/internal/patch"
	"sparxel/internal/probe"
	"sparxel/internal/ui"
	"sparxel/internal/vendor"
)

var errManifestNotLoaded = errors.New("manifest not loaded (read-manifest must run first)")

// RunContext carries everything a run needs and everything its stages
// publish. Each published field is written by exactly one stage and only
// read afterwards.
type RunContext struct {
	Config   *config.Config
	Console  *ui.Console
	Observer Observer
	DryRun   bool

	// Optional overrides; nil means use the real host
	LookPath       func(file string) (string, error)
	RuntimeVersion func(ctx context.Context, command string) (string, error)
	Patcher        patch.Patcher

	// Published by probe-env
	RuntimeVersionFound string
	Executables         probe.ExecutablePathIndex

	// Published by read-manifest
	Manifest *manifest.Manifest

	// Published by reset-vendor-dirs and copy-vendor-files
	ResetDirs []string
	Copy      vendor.CopyReport

	// Published by apply-patches
	Patches []patch.Result

	// Published by link-hook
	HookLinked bool
}

// NewRunContext creates a run context with a discarding console
func NewRunContext(cfg *config.Config) *RunContext {
	return &RunContext{
		Config:  cfg,
		Console: ui.Discard(),
	}
}

func (rc *RunContext) setup() (*manifest.SetupManifest, error) {
	if rc.Manifest == nil || rc.Manifest.Setup == nil {
		return nil, errManifestNotLoaded
	}
	return rc.Manifest.Setup, nil
}

func (rc *RunContext) hookTarget() hook.Target {
	return hook.Target{
		GitDir:     rc.Config.GitDir(),
		HookPath:   rc.Config.HookPath(),
		LinkTarget: rc.Config.HookLinkTarget,
	}
}

// patcher returns the patcher for apply-patches. The patch executable must
// have been resolved by probe-env.
func (rc *RunContext) patcher() (patch.Patcher, error) {
	if rc.Patcher != nil {
		return rc.Patcher, nil
	}
	exe, ok := rc.Executables.Path("patch")
	if !ok || exe == "" {
		return nil, fmt.Errorf("%w: patch (add it to tools)", probe.ErrToolNotFound)
	}
	return patch.ExecPatcher{Path: exe}, nil
}
