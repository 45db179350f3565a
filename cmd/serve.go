package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/api"
	"github.com/spigell/rfp-matcher/internal/filtering"
	"github.com/spigell/rfp-matcher/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the matching, scraping and profile analysis HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address, overrides server.addr")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, config := setup("serve")
	defer log.Sync()

	signingKey, err := loadSigningKey(config.Server)
	if err != nil {
		log.Fatal("loading signing key", zap.Error(err))
	}

	cronSecret, err := loadCronSecret(config.Server)
	if err != nil {
		log.Fatal("loading cron secret", zap.Error(err))
	}

	tokens, err := api.NewTokens(signingKey)
	if err != nil {
		log.Fatal("creating token verifier", zap.Error(err))
	}

	st, err := openStore(ctx, config, log)
	if err != nil {
		log.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	m, err := newMatcher(ctx, config, st, log)
	if err != nil {
		log.Fatal("building matcher", zap.Error(err))
	}

	analyzer, err := newAnalyzer(ctx, config.AI, log)
	if err != nil {
		log.Fatal("building profile analyzer", zap.Error(err))
	}

	scraper := newIngest(config, st, false, log)
	for _, status := range filtering.Describe(scraper.Steps()) {
		log.Debug("ingestion step", zap.String("name", status.Name), zap.Bool("enabled", status.Enabled), zap.Any("details", status.Details))
	}

	matchLimit := 0
	if config.Matching != nil {
		matchLimit = config.Matching.Limit
	}

	addr := viper.GetString("server.addr")
	server := api.NewServer(addr, api.Deps{
		Matcher:    m,
		Scraper:    scraper,
		Analyzer:   analyzer,
		Profiles:   st,
		Tokens:     tokens,
		CronSecret: cronSecret,
		MatchLimit: matchLimit,
		Logger:     logger.ForComponent(log, "http"),
	})

	if err := server.Run(ctx); err != nil {
		log.Fatal("serving http", zap.Error(err))
	}

	log.Info("exiting", zap.String("reason", "shutdown requested"))
}
