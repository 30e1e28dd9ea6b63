package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"sparxel/internal/config"
	"sparxel/internal/hook"
	"sparxel/internal/probe"
	"sparxel/internal/ui"
)

const taffyManifest = `{
  "name": "hi_score",
  "devDependencies": {
    "taffydb": "2.7.3"
  },
  "xhiSetupMatrix": {
    "asset_group_table": [
      {
        "dest_dir_str": "js/vendor",
        "dest_ext_str": "js",
        "asset_list": [
          { "src_pkg_name": "taffydb", "src_asset_name": "taffy.js", "dest_name": "taffy" }
        ]
      }
    ],
    "patch_matrix": {
      "patch_dir_str": "patch",
      "patch_map_list": [
        {
          "check_filename": "node_modules/uglifyjs/lib/scope.js",
          "match_str": "BEGIN hi_score patch",
          "patch_filename": "uglify-js-3.0.21.patch"
        }
      ]
    }
  }
}
`

const taffySource = "var TAFFY = function () {};\n"

// markerPatcher stands in for patch(1) by appending the marker line
type markerPatcher struct {
	mu    sync.Mutex
	calls int
	file  string
}

func (p *markerPatcher) Apply(_ context.Context, root, _ string) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	path := filepath.Join(root, p.file)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = append(data, []byte("// BEGIN hi_score patch\n")...)
	return os.WriteFile(path, data, 0o644)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fakeLookPath(missing ...string) func(string) (string, error) {
	return func(file string) (string, error) {
		for _, m := range missing {
			if m == file {
				return "", fmt.Errorf("exec: %q: executable file not found in $PATH", file)
			}
		}
		return "/usr/bin/" + file, nil
	}
}

func fakeRuntime(version string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) {
		return version, nil
	}
}

type fixture struct {
	root    string
	out     *bytes.Buffer
	patcher *markerPatcher
	rc      *RunContext
	events  []Event
}

// newFixture lays out a project with the taffydb scenario installed
func newFixture(t *testing.T, manifestJSON string, withRepo bool) *fixture {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), manifestJSON)
	writeFile(t, filepath.Join(root, "node_modules", "taffydb", "taffy.js"), taffySource)
	writeFile(t, filepath.Join(root, "node_modules", "uglifyjs", "lib", "scope.js"), "function Scope() {}\n")
	if withRepo {
		if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	f := &fixture{
		root:    root,
		out:     &bytes.Buffer{},
		patcher: &markerPatcher{file: "node_modules/uglifyjs/lib/scope.js"},
	}
	rc := NewRunContext(config.Defaults(root))
	rc.Console = ui.NewConsole(f.out, f.out)
	rc.LookPath = fakeLookPath()
	rc.RuntimeVersion = fakeRuntime("v18.19.0")
	rc.Patcher = f.patcher
	rc.Observer = func(ev Event) { f.events = append(f.events, ev) }
	f.rc = rc
	return f
}

func (f *fixture) started() []StageName {
	var names []StageName
	for _, ev := range f.events {
		if ev.Kind == StageStarted {
			names = append(names, ev.Stage)
		}
	}
	return names
}

func TestRun_TaffyScenario(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need developer mode on windows")
	}
	f := newFixture(t, taffyManifest, true)

	if err := Run(context.Background(), f.rc); err != nil {
		t.Fatalf("Run: %v\n%s", err, f.out)
	}

	dest := filepath.Join(f.root, "js", "vendor", "taffy-2.7.3.js")
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("expected vendored file: %v", err)
	}
	if string(data) != taffySource {
		t.Errorf("vendored content = %q, want %q", data, taffySource)
	}
	if len(f.rc.Copy.Copied) != 1 || f.rc.Copy.Copied[0] != dest {
		t.Errorf("Copy.Copied = %v", f.rc.Copy.Copied)
	}

	if f.patcher.calls != 1 {
		t.Errorf("patcher called %d times, want 1", f.patcher.calls)
	}

	status := hook.Check(f.rc.hookTarget())
	if !status.Linked {
		t.Errorf("hook not linked: %+v", status)
	}
	if !f.rc.HookLinked {
		t.Error("HookLinked not set")
	}

	out := f.out.String()
	for _, want := range []string{
		">> sparxel Started.",
		">> Deploying vendor assets...",
		">> Applied patch patch/uglify-js-3.0.21.patch",
		"found.",
		">> sparxel Finished.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need developer mode on windows")
	}
	f := newFixture(t, taffyManifest, true)
	if err := Run(context.Background(), f.rc); err != nil {
		t.Fatalf("first run: %v", err)
	}
	scope := filepath.Join(f.root, "node_modules", "uglifyjs", "lib", "scope.js")
	before, err := os.ReadFile(scope)
	if err != nil {
		t.Fatal(err)
	}

	// A stale file in the vendor dir must not survive the reset
	stale := filepath.Join(f.root, "js", "vendor", "taffy-2.7.2.js")
	writeFile(t, stale, "old")

	f.out.Reset()
	if err := Run(context.Background(), f.rc); err != nil {
		t.Fatalf("second run: %v\n%s", err, f.out)
	}

	if f.patcher.calls != 1 {
		t.Errorf("patcher called %d times across two runs, want 1", f.patcher.calls)
	}
	after, err := os.ReadFile(scope)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("check file changed on second run")
	}
	if !strings.Contains(f.out.String(), "Patch patch/uglify-js-3.0.21.patch already applied.") {
		t.Errorf("expected already-applied line:\n%s", f.out)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale vendor file survived reset: %v", err)
	}
}

func TestRun_EmptyDependencyMap(t *testing.T) {
	m := strings.Replace(taffyManifest, `"taffydb": "2.7.3"`, "", 1)
	f := newFixture(t, m, false)

	if err := Run(context.Background(), f.rc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(f.root, "js", "vendor"))
	if err != nil {
		t.Fatalf("vendor dir should exist: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("vendor dir should be empty, has %d entries", len(entries))
	}
	if !strings.Contains(f.out.String(), "WARN: package taffydb not found.") {
		t.Errorf("expected missing-package warning:\n%s", f.out)
	}
	if len(f.rc.Copy.Skipped) != 1 {
		t.Errorf("Skipped = %v, want one entry", f.rc.Copy.Skipped)
	}
}

func TestRun_MissingToolFailsBeforeMutation(t *testing.T) {
	f := newFixture(t, taffyManifest, true)
	f.rc.LookPath = fakeLookPath("patch")

	err := Run(context.Background(), f.rc)
	if err == nil {
		t.Fatal("expected failure when patch is missing")
	}
	var serr *StageError
	if !errors.As(err, &serr) || serr.Stage != StageProbeEnv {
		t.Fatalf("error = %v, want StageError for %s", err, StageProbeEnv)
	}
	if !errors.Is(err, probe.ErrToolNotFound) {
		t.Errorf("error should wrap ErrToolNotFound: %v", err)
	}

	if _, err := os.Stat(filepath.Join(f.root, "js")); !os.IsNotExist(err) {
		t.Errorf("vendor dir was created before failure: %v", err)
	}
	if _, err := os.Lstat(f.rc.Config.HookPath()); !os.IsNotExist(err) {
		t.Errorf("hook was created before failure: %v", err)
	}
	if got := f.started(); len(got) != 1 {
		t.Errorf("stages started = %v, want only %s", got, StageProbeEnv)
	}
}

func TestRun_PatchToolNotConfigured(t *testing.T) {
	f := newFixture(t, taffyManifest, false)
	f.rc.Config.Tools = []string{"git"}
	f.rc.Patcher = nil

	err := Run(context.Background(), f.rc)
	var serr *StageError
	if !errors.As(err, &serr) || serr.Stage != StageApplyPatches {
		t.Fatalf("error = %v, want StageError for %s", err, StageApplyPatches)
	}
	if !errors.Is(err, probe.ErrToolNotFound) {
		t.Errorf("error should wrap ErrToolNotFound: %v", err)
	}
}

func TestRun_PatchToolNotNeededWithoutPatches(t *testing.T) {
	m := strings.Replace(taffyManifest, `"patch_map_list": [`, `"patch_map_list": [], "unused": [`, 1)
	f := newFixture(t, m, false)
	f.rc.Config.Tools = []string{"git"}
	f.rc.Patcher = nil

	if err := Run(context.Background(), f.rc); err != nil {
		t.Fatalf("Run: %v\n%s", err, f.out)
	}
	if len(f.rc.Patches) != 0 {
		t.Errorf("Patches = %v, want none", f.rc.Patches)
	}
}

func TestRun_UnusableVersionIsSkipped(t *testing.T) {
	m := strings.Replace(taffyManifest, `"taffydb": "2.7.3"`, `"taffydb": "github:typicaljoe/taffydb"`, 1)
	f := newFixture(t, m, false)

	if err := Run(context.Background(), f.rc); err != nil {
		t.Fatalf("Run: %v\n%s", err, f.out)
	}

	entries, err := os.ReadDir(filepath.Join(f.root, "js", "vendor"))
	if err != nil {
		t.Fatalf("vendor dir should exist: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("vendor dir should be empty, has %d entries", len(entries))
	}
	want := `WARN: package taffydb version "github:typicaljoe/taffydb" cannot be used in a file name, skipped.`
	if !strings.Contains(f.out.String(), want) {
		t.Errorf("output missing %q:\n%s", want, f.out)
	}
}

func TestRun_RuntimeTooOld(t *testing.T) {
	f := newFixture(t, taffyManifest, false)
	f.rc.RuntimeVersion = fakeRuntime("v6.11.0")

	err := Run(context.Background(), f.rc)
	if !errors.Is(err, probe.ErrRuntimeTooOld) {
		t.Fatalf("error = %v, want ErrRuntimeTooOld", err)
	}
}

func TestRun_NoRepoSkipsHook(t *testing.T) {
	f := newFixture(t, taffyManifest, false)

	if err := Run(context.Background(), f.rc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(f.rc.Config.GitDir()); !os.IsNotExist(err) {
		t.Errorf("git dir should not be created: %v", err)
	}
	if f.rc.HookLinked {
		t.Error("HookLinked set without a repository")
	}
	out := f.out.String()
	if !strings.Contains(out, "NOT found.") {
		t.Errorf("expected NOT found line:\n%s", out)
	}

	var skipped []StageName
	for _, ev := range f.events {
		if ev.Kind == StageSkipped {
			skipped = append(skipped, ev.Stage)
		}
	}
	want := []StageName{StageUnlinkHook, StageLinkHook}
	if fmt.Sprint(skipped) != fmt.Sprint(want) {
		t.Errorf("skipped = %v, want %v", skipped, want)
	}
}

func TestRun_StageOrder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need developer mode on windows")
	}
	f := newFixture(t, taffyManifest, true)

	if err := Run(context.Background(), f.rc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []StageName{
		StageProbeEnv, StageReadManifest, StageResetVendor, StageCopyVendor,
		StageApplyPatches, StageCheckGit, StageUnlinkHook, StageLinkHook, StageFinish,
	}
	if got := f.started(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("started = %v\nwant %v", got, want)
	}

	// Each stage finishes before the next starts
	var open StageName
	for _, ev := range f.events {
		switch ev.Kind {
		case StageStarted:
			if open != "" {
				t.Fatalf("%s started while %s still running", ev.Stage, open)
			}
			open = ev.Stage
		case StageFinished:
			open = ""
		}
	}
}

func TestRun_DryRunMutatesNothing(t *testing.T) {
	f := newFixture(t, taffyManifest, true)
	f.rc.DryRun = true

	if err := Run(context.Background(), f.rc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(f.root, "js")); !os.IsNotExist(err) {
		t.Errorf("dry run created vendor dir: %v", err)
	}
	if f.patcher.calls != 0 {
		t.Errorf("dry run called patcher %d times", f.patcher.calls)
	}
	if _, err := os.Lstat(f.rc.Config.HookPath()); !os.IsNotExist(err) {
		t.Errorf("dry run linked hook: %v", err)
	}

	out := f.out.String()
	for _, want := range []string{
		"Would reset js/vendor",
		"Would copy node_modules/taffydb/taffy.js -> js/vendor/taffy-2.7.3.js",
		"Would apply patch patch/uglify-js-3.0.21.patch",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_MissingManifest(t *testing.T) {
	f := newFixture(t, taffyManifest, false)
	if err := os.Remove(f.rc.Config.ManifestPath()); err != nil {
		t.Fatal(err)
	}

	err := Run(context.Background(), f.rc)
	var serr *StageError
	if !errors.As(err, &serr) || serr.Stage != StageReadManifest {
		t.Fatalf("error = %v, want StageError for %s", err, StageReadManifest)
	}
}

func noop(context.Context, *RunContext) (Transition, error) { return Next(), nil }

func TestNewSequencer_Validation(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
	}{
		{"empty", nil},
		{"missing name", []Stage{{Run: noop}}},
		{"missing handler", []Stage{{Name: "a"}}},
		{"duplicate", []Stage{{Name: "a", Run: noop}, {Name: "a", Run: noop}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSequencer(tt.stages); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSequencer_RejectsBadJumps(t *testing.T) {
	tests := []struct {
		name   string
		target StageName
	}{
		{"backward", "a"},
		{"self", "b"},
		{"unknown", "nowhere"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ranC bool
			seq, err := NewSequencer([]Stage{
				{Name: "a", Run: noop},
				{Name: "b", Run: func(context.Context, *RunContext) (Transition, error) {
					return SkipTo(tt.target), nil
				}},
				{Name: "c", Run: func(context.Context, *RunContext) (Transition, error) {
					ranC = true
					return Next(), nil
				}},
			})
			if err != nil {
				t.Fatal(err)
			}

			err = seq.Run(context.Background(), NewRunContext(config.Defaults(t.TempDir())))
			if !errors.Is(err, ErrUnknownStage) {
				t.Errorf("error = %v, want ErrUnknownStage", err)
			}
			if ranC {
				t.Error("stage after a bad jump should not run")
			}
		})
	}
}

func TestSequencer_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	var ranLater bool
	seq, err := NewSequencer([]Stage{
		{Name: "a", Run: func(context.Context, *RunContext) (Transition, error) { return Next(), boom }},
		{Name: "b", Run: func(context.Context, *RunContext) (Transition, error) {
			ranLater = true
			return Next(), nil
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = seq.Run(context.Background(), NewRunContext(config.Defaults(t.TempDir())))
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if err.Error() != "stage a: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if ranLater {
		t.Error("stage after failure ran")
	}
}

func TestSequencer_StageTimeout(t *testing.T) {
	seq, err := NewSequencer([]Stage{
		{Name: "slow", Run: func(ctx context.Context, _ *RunContext) (Transition, error) {
			<-ctx.Done()
			return Next(), ctx.Err()
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	seq.Timeout = 20 * time.Millisecond

	err = seq.Run(context.Background(), NewRunContext(config.Defaults(t.TempDir())))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if !strings.Contains(err.Error(), "timed out after 20ms") {
		t.Errorf("error = %q, want timeout message", err.Error())
	}
}

func TestSequencer_CancelledBeforeStart(t *testing.T) {
	var ran bool
	seq, err := NewSequencer([]Stage{
		{Name: "a", Run: func(context.Context, *RunContext) (Transition, error) {
			ran = true
			return Next(), nil
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := seq.Run(ctx, NewRunContext(config.Defaults(t.TempDir()))); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("handler ran on a cancelled context")
	}
}
