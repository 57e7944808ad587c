package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Wizard walks a new install through the minimum viable configuration.
type Wizard struct {
	in  *bufio.Reader
	out io.Writer
}

// NewWizard creates a wizard reading stdin and writing stdout.
func NewWizard() *Wizard {
	return &Wizard{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewWizardIO creates a wizard on explicit streams, for tests.
func NewWizardIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{in: bufio.NewReader(in), out: out}
}

// Run prompts for credentials and returns a config ready to save.
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== Meeple Setup ===")
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Model credentials (at least one is required):")

	cfg := DefaultConfig()

	providers := []struct {
		label    string
		provider string
		target   *string
	}{
		{"Anthropic API Key", "anthropic", &cfg.Provider.AnthropicAPIKey},
		{"OpenAI API Key", "openai", &cfg.Provider.OpenAIAPIKey},
		{"Gemini API Key", "gemini", &cfg.Provider.GeminiAPIKey},
	}

	for _, p := range providers {
		for {
			fmt.Fprintf(w.out, "%s (press Enter to skip): ", p.label)
			key, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			if err := ValidateAPIKey(key, p.provider); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			*p.target = key
			break
		}
	}

	if cfg.Provider.AnthropicAPIKey == "" && cfg.Provider.OpenAIAPIKey == "" && cfg.Provider.GeminiAPIKey == "" {
		fmt.Fprint(w.out, "Ollama base URL (e.g. http://localhost:11434/v1): ")
		baseURL, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if baseURL == "" {
			return nil, fmt.Errorf("at least one model credential is required")
		}
		cfg.Provider.OllamaBaseURL = baseURL
	}

	for {
		fmt.Fprint(w.out, "Telegram bot token (press Enter to skip, disables Telegram): ")
		token, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if token == "" {
			cfg.Telegram.Enabled = false
			break
		}
		if err := ValidateTelegramToken(token); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Telegram.BotToken = token
		break
	}

	fmt.Fprint(w.out, "Data directory (press Enter for ~/.meeple): ")
	dataDir, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Setup complete. Start the facilitator with: meeple start")
	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
