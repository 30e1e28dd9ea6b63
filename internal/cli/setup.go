package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"sparxel/internal/pipeline"
	"sparxel/internal/tui"
)

var (
	useTUI bool
	dryRun bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the setup stages",
	Long: `Run every setup stage in order:

  probe-env          check the runtime version and required tools
  read-manifest      read the setup section and dependency versions
  reset-vendor-dirs  create or empty each asset group destination
  copy-vendor-files  copy assets as <name>-<version>[.<ext>]
  apply-patches      apply patches whose marker is not yet present
  check-git          skip the hook stages when there is no .git
  unlink-hook        remove any old commit hook
  link-hook          link the commit hook

The first failure aborts the run. Running setup again is safe.

Examples:
  sparxel setup
  sparxel setup --dry-run
  sparxel -C ~/src/app setup --tui`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func addSetupFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Show an interactive progress view")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Report planned changes without making them")
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rc := pipeline.NewRunContext(cfg)
	rc.Console = newConsole(cmd)
	rc.DryRun = dryRun

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
	defer stop()

	if useTUI {
		return tui.Run(ctx, rc)
	}
	return pipeline.Run(ctx, rc)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	addSetupFlags(setupCmd)
}
