package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"sparxel/internal/config"
	"sparxel/internal/hook"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the commit hook link",
	Long: `Inspect or manage the symlink from .git/hooks/<hook_name> to the
tracked hook script (../../bin/git-hook_pre-commit by default).

Setup links the hook on every run; these commands act on it alone.`,
}

var hookStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the commit hook is linked",
	Args:  cobra.NoArgs,
	RunE:  runHookStatus,
}

var hookLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Replace the commit hook with a link to the tracked script",
	Args:  cobra.NoArgs,
	RunE:  runHookLink,
}

var hookUnlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Remove the commit hook",
	Args:  cobra.NoArgs,
	RunE:  runHookUnlink,
}

var errNoRepo = errors.New("no .git directory in project")

func init() {
	hookCmd.AddCommand(hookStatusCmd)
	hookCmd.AddCommand(hookLinkCmd)
	hookCmd.AddCommand(hookUnlinkCmd)
}

func hookTarget(cfg *config.Config) hook.Target {
	return hook.Target{
		GitDir:     cfg.GitDir(),
		HookPath:   cfg.HookPath(),
		LinkTarget: cfg.HookLinkTarget,
	}
}

func runHookStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	t := hookTarget(cfg)
	s := hook.Check(t)
	out := cmd.OutOrStdout()

	status := "○ not linked"
	switch {
	case !s.RepoPresent:
		status = "○ no git repository"
	case s.Error != nil:
		status = fmt.Sprintf("✗ error: %v", s.Error)
	case s.Linked:
		status = "✓ linked"
	case s.IsSymlink:
		status = fmt.Sprintf("○ links elsewhere (%s)", s.SymlinkDest)
	case s.Exists:
		status = "○ foreign hook file"
	}

	fmt.Fprintf(out, "  %-8s %s\n", "hook:", cfg.Rel(t.HookPath))
	fmt.Fprintf(out, "  %-8s %s\n", "target:", t.LinkTarget)
	fmt.Fprintf(out, "  %-8s %s\n", "status:", status)
	return nil
}

func runHookLink(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	t := hookTarget(cfg)
	if !hook.RepoPresent(t) {
		return errNoRepo
	}
	if err := hook.Unlink(t); err != nil {
		return fmt.Errorf("failed to remove old hook: %w", err)
	}
	if err := hook.Link(t); err != nil {
		return fmt.Errorf("failed to link %s: %w", t.HookPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Linked %s -> %s\n", cfg.Rel(t.HookPath), t.LinkTarget)
	return nil
}

func runHookUnlink(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	t := hookTarget(cfg)
	if !hook.RepoPresent(t) {
		return errNoRepo
	}
	if err := hook.Unlink(t); err != nil {
		return fmt.Errorf("failed to remove hook: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", cfg.Rel(t.HookPath))
	return nil
}
