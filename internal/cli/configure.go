package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halden/meeple/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run the interactive setup",
	Long:  `Configure walks through credentials and writes the config file.`,
	RunE:  runConfigure,
}

var configureShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active configuration with credentials masked",
	RunE:  runConfigureShow,
}

func init() {
	configureCmd.AddCommand(configureShowCmd)
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewWizard().Run()
	if err != nil {
		return err
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", loader.ConfigPath())
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
	return nil
}
