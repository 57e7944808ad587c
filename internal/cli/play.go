package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/halden/meeple/internal/config"
	"github.com/halden/meeple/pkg/access"
	"github.com/halden/meeple/pkg/archive"
	"github.com/halden/meeple/pkg/campaign"
	"github.com/halden/meeple/pkg/dice"
	"github.com/halden/meeple/pkg/engine"
)

var playCmd = &cobra.Command{
	Use:   "play <campaign>",
	Short: "Play a campaign from the terminal",
	Long: `Play opens a terminal session against a campaign: everything you type is
sent to the facilitator. Local commands: /roll <dice>, /debug, /quit.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := campaign.ValidateName(name); err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if p, _, _ := cfg.Provider.Resolve(); p == "" {
		return fmt.Errorf("no model credentials configured: run meeple configure first")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	channels, err := campaign.NewRegistry(cfg.ChannelRegistryPath, log.Logger)
	if err != nil {
		return err
	}
	if err := channels.Bind("cli", "local", name); err != nil {
		return err
	}

	ac, err := access.NewController(cfg.AccessPolicyPath, log.Logger)
	if err != nil {
		return err
	}
	defer ac.Stop()

	providerName, apiKey, baseURL := cfg.Provider.Resolve()

	var embeddings archive.EmbeddingProvider
	if cfg.Provider.OpenAIAPIKey != "" {
		embeddings = archive.NewOpenAIEmbeddings(cfg.Provider.OpenAIAPIKey, cfg.Provider.EmbeddingsModel)
	}

	// No Notifier in terminal play: send_dm reports that DMs are
	// unavailable on this platform.
	eng := engine.New(engine.Config{
		BaseDir:         cfg.CampaignsDir,
		Provider:        providerName,
		APIKey:          apiKey,
		BaseURL:         baseURL,
		Model:           cfg.Provider.ResolveModel(),
		Temperature:     cfg.Provider.Temperature,
		MaxTokens:       cfg.Provider.MaxTokens,
		SessionCapacity: cfg.SessionCapacity,
		Embeddings:      embeddings,
	}, channels, ac, nil, log.Logger)
	defer eng.Close()

	return repl(cmd, eng, name)
}

func repl(cmd *cobra.Command, eng *engine.Engine, name string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Playing %q. /roll <dice>, /debug, /quit.\n\n", name)

	roller := dice.New()
	debug := false
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil
		case line == "/debug":
			debug = !debug
			fmt.Fprintf(out, "debug %v\n", debug)
			continue
		case strings.HasPrefix(line, "/roll "):
			result, err := roller.Roll(strings.TrimPrefix(line, "/roll "))
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, result)
			continue
		}

		reply, err := eng.Process(context.Background(), engine.Message{
			Platform:  "cli",
			ChannelID: "local",
			UserID:    "local",
			UserName:  "player",
			Text:      line,
			Tagged:    true,
			Debug:     debug,
		})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\n%s\n\n", reply)
	}
}
