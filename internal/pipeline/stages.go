package pipeline

import (
	"context"
	"fmt"
	"strings"

	"sparxel/internal/config"
	"sparxel/internal/hook"
	"sparxel/internal/manifest"
	"sparxel/internal/patch"
	"sparxel/internal/probe"
	"sparxel/internal/vendor"
)

const (
	StageProbeEnv     StageName = "probe-env"
	StageReadManifest StageName = "read-manifest"
	StageResetVendor  StageName = "reset-vendor-dirs"
	StageCopyVendor   StageName = "copy-vendor-files"
	StageApplyPatches StageName = "apply-patches"
	StageCheckGit     StageName = "check-git"
	StageUnlinkHook   StageName = "unlink-hook"
	StageLinkHook     StageName = "link-hook"
	StageFinish       StageName = "finish"
)

// AppName prefixes the start and finish lines
const AppName = "sparxel"

// DefaultStages returns the setup run in its fixed order
func DefaultStages() []Stage {
	return []Stage{
		{StageProbeEnv, "Checking environment...", probeEnv},
		{StageReadManifest, "Reading package file...", readManifest},
		{StageResetVendor, "Removing vendor directories...", resetVendor},
		{StageCopyVendor, "Deploying vendor assets...", copyVendor},
		{StageApplyPatches, "Applying patches...", applyPatches},
		{StageCheckGit, "Checking for git installation...", checkGit},
		{StageUnlinkHook, "Remove any old commit hook...", unlinkHook},
		{StageLinkHook, "Linking commit hook...", linkHook},
		{StageFinish, "", finish},
	}
}

// NewSetup builds the default sequencer using the configured stage timeout
func NewSetup(cfg *config.Config) (*Sequencer, error) {
	seq, err := NewSequencer(DefaultStages())
	if err != nil {
		return nil, err
	}
	seq.Timeout = cfg.StageTimeout
	return seq, nil
}

// Run performs a complete setup run with the default stages
func Run(ctx context.Context, rc *RunContext) error {
	seq, err := NewSetup(rc.Config)
	if err != nil {
		return err
	}
	rc.Console.Step("%s Started.", AppName)
	return seq.Run(ctx, rc)
}

func probeEnv(ctx context.Context, rc *RunContext) (Transition, error) {
	res, err := probe.Run(ctx, probe.Options{
		RuntimeCommand:  rc.Config.RuntimeCommand,
		MinRuntimeMajor: rc.Config.MinRuntimeMajor,
		Tools:           rc.Config.Tools,
		LookPath:        rc.LookPath,
		RuntimeVersion:  rc.RuntimeVersion,
	})
	if err != nil {
		return Next(), err
	}
	rc.RuntimeVersionFound = res.RuntimeVersion
	rc.Executables = res.Executables
	for _, name := range res.Executables.Names() {
		p, _ := res.Executables.Path(name)
		rc.Console.Debug("found %s at %s", name, p)
	}
	return Next(), nil
}

func readManifest(_ context.Context, rc *RunContext) (Transition, error) {
	m, err := manifest.Load(rc.Config.ManifestPath(), rc.Config.SetupKey, config.SetupKeyAliases...)
	if err != nil {
		return Next(), err
	}
	rc.Manifest = m
	rc.Console.Debug("%d asset group(s), %d asset(s), %d patch(es)",
		len(m.Setup.AssetGroups), m.Setup.AssetCount(), len(m.Setup.Patches.Entries))
	return Next(), nil
}

func resetVendor(ctx context.Context, rc *RunContext) (Transition, error) {
	setup, err := rc.setup()
	if err != nil {
		return Next(), err
	}

	if rc.DryRun {
		for _, dir := range vendor.DestDirs(rc.Config.ProjectDir, setup.AssetGroups) {
			rc.Console.Step("Would reset %s", rc.Config.Rel(dir))
		}
		return Next(), nil
	}

	dirs, err := vendor.ResetDirs(ctx, rc.Config.ProjectDir, setup.AssetGroups)
	if err != nil {
		return Next(), err
	}
	rc.ResetDirs = dirs
	return Next(), nil
}

func copyVendor(ctx context.Context, rc *RunContext) (Transition, error) {
	setup, err := rc.setup()
	if err != nil {
		return Next(), err
	}

	ops, skips, err := vendor.Plan(rc.Config.ProjectDir, rc.Config.DependencyDir(), setup.AssetGroups, rc.Manifest.Versions)
	if err != nil {
		return Next(), err
	}
	for _, s := range skips {
		if s.Version != "" {
			rc.Console.Warn("package %s version %q cannot be used in a file name, skipped.", s.Package, s.Version)
			continue
		}
		rc.Console.Warn("package %s not found.", s.Package)
	}
	rc.Copy.Skipped = skips

	if rc.DryRun {
		for _, op := range ops {
			rc.Console.Step("Would copy %s -> %s", rc.Config.Rel(op.Src), rc.Config.Rel(op.Dest))
		}
		return Next(), nil
	}

	copied, err := vendor.CopyAll(ctx, ops)
	if err != nil {
		return Next(), err
	}
	rc.Copy.Copied = copied
	for _, dest := range copied {
		rc.Console.Debug("copied %s", rc.Config.Rel(dest))
	}
	return Next(), nil
}

func applyPatches(ctx context.Context, rc *RunContext) (Transition, error) {
	setup, err := rc.setup()
	if err != nil {
		return Next(), err
	}

	applier := &patch.Applier{
		Root:   rc.Config.ProjectDir,
		DryRun: rc.DryRun,
	}
	if len(setup.Patches.Entries) > 0 && !rc.DryRun {
		if applier.Patcher, err = rc.patcher(); err != nil {
			return Next(), err
		}
	}
	results, err := applier.ApplyAll(ctx, setup.Patches)
	if err != nil {
		return Next(), err
	}
	rc.Patches = results

	for _, r := range results {
		switch r.Outcome {
		case patch.AlreadyApplied:
			rc.Console.Step("Patch %s already applied.", r.RelPatch)
		case patch.WouldApply:
			rc.Console.Step("Would apply patch %s", r.RelPatch)
		case patch.Applied:
			rc.Console.Step("Applied patch %s (%s)", r.RelPatch, r.Changes)
			if r.Diff != "" {
				rc.Console.Debug("%s", strings.TrimRight(r.Diff, "\n"))
			}
		}
	}
	return Next(), nil
}

func checkGit(_ context.Context, rc *RunContext) (Transition, error) {
	t := rc.hookTarget()
	if !hook.RepoPresent(t) {
		rc.Console.Step("Git directory %s NOT found.", t.GitDir)
		rc.Console.Step("Please run \"%s setup\" if you add code to a git repo.", AppName)
		return SkipTo(StageFinish), nil
	}
	rc.Console.Step("Git directory %s found.", t.GitDir)
	rc.Console.Step("Installing commit hook...")
	if rc.DryRun {
		rc.Console.Step("Would link %s -> %s", rc.Config.Rel(t.HookPath), t.LinkTarget)
		return SkipTo(StageFinish), nil
	}
	return Next(), nil
}

func unlinkHook(_ context.Context, rc *RunContext) (Transition, error) {
	// Errors are ignored: the hook may not exist, and a real obstruction
	// makes link-hook fail.
	if err := hook.Unlink(rc.hookTarget()); err != nil {
		rc.Console.Debug("ignoring failure to remove old hook: %v", err)
	}
	return Next(), nil
}

func linkHook(_ context.Context, rc *RunContext) (Transition, error) {
	t := rc.hookTarget()
	if err := hook.Link(t); err != nil {
		return Next(), fmt.Errorf("failed to link %s: %w", t.HookPath, err)
	}
	rc.HookLinked = true
	return Next(), nil
}

func finish(_ context.Context, rc *RunContext) (Transition, error) {
	rc.Console.Success("%s Finished.", AppName)
	return Next(), nil
}
