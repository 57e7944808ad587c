package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halden/meeple/internal/config"
	"github.com/halden/meeple/pkg/campaign"
	"github.com/halden/meeple/pkg/journal"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Manage campaigns",
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Scaffold a new campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignCreate,
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE:  runCampaignList,
}

func init() {
	campaignCmd.AddCommand(campaignCreateCmd)
	campaignCmd.AddCommand(campaignListCmd)
	rootCmd.AddCommand(campaignCmd)
}

func runCampaignCreate(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	paths, err := campaign.NewPaths(cfg.CampaignsDir, name)
	if err != nil {
		return err
	}
	if paths.Exists() {
		return fmt.Errorf("campaign %q already exists", name)
	}
	if err := paths.Ensure(); err != nil {
		return err
	}

	if err := os.WriteFile(paths.WorldInfoPath(), []byte("# World Info\n"), 0o644); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	jrnl := journal.New(journal.Config{
		SessionsDir:   paths.SessionsDir(),
		SecretsPath:   paths.SecretsLogPath(),
		WorldInfoPath: paths.WorldInfoPath(),
		Logger:        log.Logger,
	})
	if _, err := jrnl.StartSession(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Campaign %q created at %s\n", name, paths.Root)
	fmt.Fprintln(out, "Drop a system_prompt.md in that directory to customize the facilitator.")
	return nil
}

func runCampaignList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	names, err := campaign.List(cfg.CampaignsDir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No campaigns yet. Create one with: meeple campaign create <name>")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
