// Package daemon wires the configuration, engine, Telegram bot, metrics
// endpoint, and maintenance jobs into one long-running service.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/halden/meeple/internal/config"
	"github.com/halden/meeple/internal/logger"
	"github.com/halden/meeple/internal/metrics"
	"github.com/halden/meeple/internal/telegram"
	"github.com/halden/meeple/pkg/access"
	"github.com/halden/meeple/pkg/archive"
	"github.com/halden/meeple/pkg/campaign"
	"github.com/halden/meeple/pkg/engine"
)

// Daemon is the running facilitator service.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	engine   *engine.Engine
	channels *campaign.Registry
	access   *access.Controller
	metrics  *metrics.Metrics
	notifier *telegramNotifier

	bot           *telegram.Bot
	metricsServer *http.Server
	scheduler     *cron.Cron
}

// New builds the daemon from configuration. Nothing starts running until
// Run.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.CampaignsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create campaigns directory: %w", err)
	}

	channels, err := campaign.NewRegistry(cfg.ChannelRegistryPath, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel registry: %w", err)
	}

	ac, err := access.NewController(cfg.AccessPolicyPath, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open access policy: %w", err)
	}

	d := &Daemon{
		config:   cfg,
		logger:   log,
		channels: channels,
		access:   ac,
		notifier: &telegramNotifier{},
	}

	var m *metrics.Metrics
	var engineMetrics engine.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		engineMetrics = m
	}
	d.metrics = m

	providerName, apiKey, baseURL := cfg.Provider.Resolve()

	var embeddings archive.EmbeddingProvider
	if cfg.Provider.OpenAIAPIKey != "" {
		embeddings = archive.NewOpenAIEmbeddings(cfg.Provider.OpenAIAPIKey, cfg.Provider.EmbeddingsModel)
	} else {
		log.Info().Msg("No OpenAI key configured, recap search falls back to keywords")
	}

	d.engine = engine.New(engine.Config{
		BaseDir:         cfg.CampaignsDir,
		Provider:        providerName,
		APIKey:          apiKey,
		BaseURL:         baseURL,
		Model:           cfg.Provider.ResolveModel(),
		Temperature:     cfg.Provider.Temperature,
		MaxTokens:       cfg.Provider.MaxTokens,
		SessionCapacity: cfg.SessionCapacity,
		Embeddings:      embeddings,
		Notifier:        d.notifier,
	}, channels, ac, engineMetrics, log.Logger)

	if cfg.Telegram.Enabled {
		bot, err := telegram.New(cfg.Telegram.BotToken, telegram.Deps{
			Engine:   d.engine,
			Access:   ac,
			Channels: channels,
			Metrics:  m,
			Logger:   log.Logger,
		})
		if err != nil {
			d.engine.Close()
			return nil, fmt.Errorf("failed to initialize telegram: %w", err)
		}
		d.bot = bot
		d.notifier.set(bot)
	}

	d.scheduler = cron.New()
	if err := d.scheduleMaintenance(); err != nil {
		d.engine.Close()
		return nil, err
	}

	log.Info().
		Str("provider", providerName).
		Str("model", cfg.Provider.ResolveModel()).
		Bool("telegram", d.bot != nil).
		Msg("Daemon initialized")
	return d, nil
}

func (d *Daemon) scheduleMaintenance() error {
	schedule := d.config.Maintenance.BufferPurgeSchedule
	if schedule == "" {
		return nil
	}
	maxAge := time.Duration(d.config.Maintenance.BufferMaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	_, err := d.scheduler.AddFunc(schedule, func() {
		n := d.engine.PurgeStaleBuffers(maxAge)
		if n > 0 {
			d.logger.Info().Int("purged", n).Msg("Dropped stale context-buffer entries")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid buffer purge schedule %q: %w", schedule, err)
	}
	return nil
}

// Run starts everything and blocks until ctx is cancelled or a SIGINT or
// SIGTERM arrives.
func (d *Daemon) Run(ctx context.Context) error {
	if d.bot != nil {
		d.bot.Start()
	}
	d.scheduler.Start()

	if d.metrics != nil {
		d.startMetricsServer()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	d.logger.Info().Msg("Daemon running")
	select {
	case <-ctx.Done():
	case sig := <-signals:
		d.logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	return d.Stop()
}

func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	d.metricsServer = &http.Server{Addr: d.config.Metrics.Addr, Handler: mux}

	go func() {
		d.logger.Info().Str("addr", d.config.Metrics.Addr).Msg("Metrics endpoint listening")
		if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Stop shuts every component down in reverse start order.
func (d *Daemon) Stop() error {
	if d.bot != nil {
		d.bot.Stop()
	}

	cronCtx := d.scheduler.Stop()
	<-cronCtx.Done()

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	if err := d.access.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Access watcher shutdown failed")
	}
	d.engine.Close()

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// Engine exposes the engine for the CLI play mode.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// telegramNotifier bridges the send_dm tool to the bot. The engine is built
// before the bot, so the target is set late and may stay nil when Telegram
// is disabled.
type telegramNotifier struct {
	mu  sync.RWMutex
	bot *telegram.Bot
}

func (n *telegramNotifier) set(bot *telegram.Bot) {
	n.mu.Lock()
	n.bot = bot
	n.mu.Unlock()
}

func (n *telegramNotifier) SendDirect(ctx context.Context, userID, text string) error {
	n.mu.RLock()
	bot := n.bot
	n.mu.RUnlock()

	if bot == nil {
		return fmt.Errorf("private messages are not available on this platform")
	}
	return bot.SendDirect(ctx, userID, text)
}
