package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/classifier"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/config"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/cursor"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/db"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/dispatcher"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/handlers"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/metrics"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/poller"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/registry"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/responder"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/server"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/slack"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/store"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Slack Agent Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	setupLogging(cfg.Logging)

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.NewMetrics()

	client := slack.NewClient(&cfg.Slack)

	identity, err := client.AuthTest(context.Background())
	if err != nil {
		return fmt.Errorf("slack auth check failed: %w", err)
	}
	logrus.Infof("Authenticated to Slack as %s (%s) in team %s", identity.User, identity.UserID, identity.Team)

	st := store.New(dbConn)
	if err := st.EnsureDefaultRules(); err != nil {
		return fmt.Errorf("failed to seed default rules: %w", err)
	}
	rules, err := st.LoadRuleset()
	if err != nil {
		return fmt.Errorf("failed to load reply rules: %w", err)
	}
	compiled := classifier.Compile(rules)
	if len(compiled) == 0 {
		logrus.Warn("No enabled reply rules, agent will not match anything")
	}
	cl := classifier.New(compiled)
	m.ActiveRules.Set(float64(len(compiled)))

	reg := registry.New(client, cfg.Slack.ChannelList(),
		registry.NameContains(cfg.Slack.Discovery.NameContains), cfg.Slack.Discovery.MaxChannels)
	channels, err := reg.Resolve(context.Background())
	if err != nil {
		return fmt.Errorf("failed to resolve channels: %w", err)
	}
	logrus.Infof("Monitoring %d channels", len(channels))

	fmtr, err := responder.New(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("failed to create responder: %w", err)
	}

	d := dispatcher.New(&cfg.Dispatcher, client, m)

	pol := poller.New(poller.Options{
		Interval:   cfg.Poller.Interval,
		Source:     client,
		Sender:     d,
		Channels:   reg,
		Classifier: cl,
		Formatter:  fmtr,
		Cursor:     cursor.New(),
		Audit:      st,
		Metrics:    m,
		BotUserID:  identity.UserID,
	})

	h := handlers.NewHandlers(dbConn, st, pol, reg, cl, m)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Explicit channel lists are static; discovered sets can drift as
	// channels are created or renamed, so those get refreshed on a timer.
	refreshCron := cron.New(cron.WithSeconds())
	if reg.Discovery() {
		schedule := fmt.Sprintf("@every %s", cfg.Slack.Discovery.RefreshInterval)
		if _, err := refreshCron.AddFunc(schedule, func() {
			_ = reg.Refresh(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to schedule channel refresh: %w", err)
		}
		refreshCron.Start()
		logrus.Infof("Channel discovery refresh scheduled every %s", cfg.Slack.Discovery.RefreshInterval)
	}

	if err := pol.Start(); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pol.Stop(); err != nil {
		logrus.Errorf("Failed to stop poller: %v", err)
	}
	pol.Wait()

	refreshCron.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

func setupLogging(cfg config.LoggingConfig) {
	switch cfg.Format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
