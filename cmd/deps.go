package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/ai/gemini"
	"github.com/spigell/rfp-matcher/internal/filtering"
	"github.com/spigell/rfp-matcher/internal/grants"
	"github.com/spigell/rfp-matcher/internal/ingest"
	"github.com/spigell/rfp-matcher/internal/logger"
	"github.com/spigell/rfp-matcher/internal/matcher"
	"github.com/spigell/rfp-matcher/internal/secrets"
	"github.com/spigell/rfp-matcher/internal/store"
	"github.com/spigell/rfp-matcher/internal/store/mysql"
)

const providerGemini = "gemini"

// setup builds the logger and config shared by every command that touches the stores.
func setup(command string) (*zap.Logger, *Config) {
	lg, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		lg.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		lg.Fatal("config is required")
	}

	lg.Debug("starting the "+app, zap.String("command", command), zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	lg.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return lg, config
}

// redacted returns a copy of the config safe to log.
func redacted(config *Config) *Config {
	c := *config
	if config.AI != nil && config.AI.Gemini != nil {
		g := *config.AI.Gemini
		g.APIKey = mask(g.APIKey)
		c.AI = &AIConfig{Provider: config.AI.Provider, Gemini: &g}
	}
	if config.Server != nil {
		s := *config.Server
		s.SigningKey = mask(s.SigningKey)
		s.CronSecret = mask(s.CronSecret)
		c.Server = &s
	}
	if config.Store != nil && config.Store.MySQL != nil {
		m := *config.Store.MySQL
		m.DSN = mask(m.DSN)
		st := *config.Store
		st.MySQL = &m
		c.Store = &st
	}
	return &c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func openStore(ctx context.Context, config *Config, log *zap.Logger) (store.Store, error) {
	cfg := store.Config{Driver: store.DriverMemory}
	if config.Store != nil {
		cfg.Driver = config.Store.Driver
		cfg.File = config.Store.File
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Driver), store.DriverMySQL) {
		m := config.Store.MySQL
		if m == nil {
			m = &MySQLConfig{}
		}

		dsn, err := secrets.Load(secrets.Source{
			Name:  "mysql dsn",
			Value: m.DSN,
			File:  m.DSNFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set store.mysql.dsn or store.mysql.dsn-file)", err)
		}

		cfg.MySQL = mysql.Options{
			DSN:             dsn,
			MaxOpenConns:    m.MaxOpenConns,
			MaxIdleConns:    m.MaxIdleConns,
			ConnMaxLifetime: m.ConnMaxLifetime,
		}
	}

	return store.Open(ctx, cfg, logger.ForComponent(log, "store"))
}

func newGenerator(ctx context.Context, cfg *AIConfig, log *zap.Logger) (*gemini.Generator, *GeminiConfig, error) {
	if cfg == nil {
		cfg = &AIConfig{}
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != providerGemini {
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	gcfg := cfg.Gemini
	if gcfg == nil {
		gcfg = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: gcfg.APIKey,
		File:  gcfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	genLogger := logger.ForComponent(log, "gemini",
		append(logger.ProviderFields(providerGemini, gcfg.Model, gcfg.EmbeddingModel),
			zap.Int("ai_retry_attempts", gcfg.MaxRetries))...,
	)

	generator, err := gemini.NewGenerator(ctx, gemini.Options{
		APIKey:         apiKey,
		Model:          gcfg.Model,
		EmbeddingModel: gcfg.EmbeddingModel,
		MaxRetries:     gcfg.MaxRetries,
	}, genLogger)
	if err != nil {
		return nil, nil, err
	}

	return generator, gcfg, nil
}

func newAnalyzer(ctx context.Context, cfg *AIConfig, log *zap.Logger) (*gemini.Analyzer, error) {
	generator, gcfg, err := newGenerator(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	analyzerLogger := logger.ForComponent(log, "analyzer",
		logger.ProviderFields(providerGemini, generator.Model(), "")...,
	)

	return gemini.NewAnalyzer(generator, gcfg.MaxLogLength, analyzerLogger), nil
}

func newMatcher(ctx context.Context, config *Config, st store.Store, log *zap.Logger) (*matcher.Matcher, error) {
	generator, _, err := newGenerator(ctx, config.AI, log)
	if err != nil {
		return nil, err
	}

	opts := matcher.Options{}
	if config.Matching != nil {
		opts.Limit = config.Matching.Limit
		opts.Workers = config.Matching.Workers
		opts.ClampScores = config.Matching.ClampScores
	}

	return matcher.New(st, st, generator, opts,
		log.With(logger.ProviderFields(providerGemini, "", generator.EmbeddingModel())...),
	), nil
}

func newIngest(config *Config, st store.Store, includeKnown bool, log *zap.Logger) *ingest.Service {
	client := grants.New(logger.ForComponent(log, "grants"))

	filterCfg := &filtering.Config{}
	if sc := config.Scrape; sc != nil {
		if sc.FeedURL != "" {
			client.FeedURL = sc.FeedURL
		}
		if sc.UserAgent != "" {
			client.UserAgent = sc.UserAgent
		}
		filterCfg.MaxItems = sc.MaxItems
		filterCfg.ExcludedAgencies = sc.ExcludedAgencies
	}

	steps := filtering.DefaultSteps()
	if includeKnown {
		filtering.DisableByName(steps, "known_links", "include-known flag is set")
	}

	return ingest.New(client, st, filterCfg, steps, logger.ForComponent(log, "ingest"))
}

func loadSigningKey(cfg *ServerConfig) (string, error) {
	if cfg == nil {
		cfg = &ServerConfig{}
	}

	key, err := secrets.Load(secrets.Source{
		Name:  "token signing key",
		Value: cfg.SigningKey,
		File:  cfg.SigningKeyFile,
	})
	if err != nil {
		return "", fmt.Errorf("%w (set server.signing-key-file or server.signing-key)", err)
	}
	return key, nil
}

func loadCronSecret(cfg *ServerConfig) (string, error) {
	if cfg == nil {
		cfg = &ServerConfig{}
	}

	secret, err := secrets.Load(secrets.Source{
		Name:  "cron secret",
		Value: cfg.CronSecret,
		File:  cfg.CronSecretFile,
		Env:   "CRON_SECRET",
	})
	if err != nil {
		return "", fmt.Errorf("%w (set server.cron-secret-file or CRON_SECRET)", err)
	}
	return secret, nil
}
