package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/livepreview/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect livepreview configuration",
	Long: `Inspect the effective configuration.

Examples:
  livepreview config show                          # Print resolved settings as YAML
  livepreview config validate                      # Check .livepreview.yml
  livepreview config validate --config other.yml   # Check another file`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the configuration after applying the configuration file, environment
variables, command-line flags and defaults.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configValidateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", used)
	}
	_, err = cmd.OutOrStdout().Write(out)

	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	config.SetDefaults(viper.GetViper())

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("cannot decode configuration: %w", err)
	}

	result := config.Validate(&cfg)
	fmt.Fprint(cmd.OutOrStdout(), result.String())

	strict, _ := cmd.Flags().GetBool("strict")
	switch {
	case result.HasErrors():
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
	case strict && result.HasWarnings():
		return fmt.Errorf("configuration has %d warning(s)", len(result.Warnings))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	return nil
}
