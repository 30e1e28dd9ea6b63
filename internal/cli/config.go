package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage sparxel configuration",
	Long: `View and create the project configuration file (.sparxel.toml).

Every key is optional; missing keys use the built-in defaults.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var forceInit bool

func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	runtime := cfg.RuntimeCommand
	if runtime == "" {
		runtime = "(check disabled)"
	}
	timeout := cfg.StageTimeout.String()
	if cfg.StageTimeout == 0 {
		timeout = "(none)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  project_dir:       %s\n", cfg.ProjectDir)
	fmt.Fprintf(out, "  config_file:       %s\n", cfg.ConfigPath)
	fmt.Fprintf(out, "  manifest_file:     %s\n", cfg.ManifestFile)
	fmt.Fprintf(out, "  setup_key:         %s\n", cfg.SetupKey)
	fmt.Fprintf(out, "  dependency_root:   %s\n", cfg.DependencyRoot)
	fmt.Fprintf(out, "  runtime_command:   %s\n", runtime)
	fmt.Fprintf(out, "  min_runtime_major: %d\n", cfg.MinRuntimeMajor)
	fmt.Fprintf(out, "  tools:             %s\n", strings.Join(cfg.Tools, ", "))
	fmt.Fprintf(out, "  hook_name:         %s\n", cfg.HookName)
	fmt.Fprintf(out, "  hook_link_target:  %s\n", cfg.HookLinkTarget)
	fmt.Fprintf(out, "  stage_timeout:     %s\n", timeout)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cfg.ConfigPath)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.ConfigPath); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfg.ConfigPath)
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfg.ConfigPath)
	return nil
}
