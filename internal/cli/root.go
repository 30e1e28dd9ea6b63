package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"sparxel/internal/config"
	"sparxel/internal/ui"
)

var (
	projectDir   string
	manifestFile string
	stageTimeout time.Duration
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "sparxel",
	Short: "Bring a freshly installed project into a runnable state",
	Long: `sparxel prepares a project after its dependencies have been installed.

It copies version-stamped vendor assets out of the dependency tree,
applies idempotent source patches and links the pre-commit hook. Everything
it does is declared in the setup section of the project manifest
(package.json by default).

Running sparxel with no subcommand performs setup.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runSetup,
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI. Any failure is reported once as an abort line.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		ui.NewConsole(os.Stdout, os.Stderr).Abort(err)
	}
	return err
}

// loadConfig resolves the project config and applies command-line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.ForProject(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("manifest") {
		cfg.ManifestFile = manifestFile
	}
	if cmd.Flags().Changed("timeout") {
		cfg.StageTimeout = stageTimeout
	}
	return cfg, nil
}

func newConsole(cmd *cobra.Command) *ui.Console {
	c := ui.NewConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
	c.SetVerbose(verbose)
	return c
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&projectDir, "project", "C", ".", "Project root directory")
	pf.StringVar(&manifestFile, "manifest", config.DefaultManifestFile, "Manifest file, relative to the project root")
	pf.DurationVar(&stageTimeout, "timeout", config.DefaultStageTimeout, "Per-stage time limit (0 disables it)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Print debug output")

	addSetupFlags(rootCmd)

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(configCmd)
}
