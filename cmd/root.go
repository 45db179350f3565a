package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "rfp-matcher"
	envPrefix = "RFP"
)

type Config struct {
	Store    *StoreConfig    `mapstructure:"store"`
	AI       *AIConfig       `mapstructure:"ai"`
	Matching *MatchingConfig `mapstructure:"matching"`
	Scrape   *ScrapeConfig   `mapstructure:"scrape"`
	Server   *ServerConfig   `mapstructure:"server"`
}

type StoreConfig struct {
	Driver string       `mapstructure:"driver"`
	File   string       `mapstructure:"file"`
	MySQL  *MySQLConfig `mapstructure:"mysql"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	DSNFile         string        `mapstructure:"dsn-file"`
	MaxOpenConns    int           `mapstructure:"max-open-conns"`
	MaxIdleConns    int           `mapstructure:"max-idle-conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn-max-lifetime"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey         string `mapstructure:"api-key"`
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxRetries     int    `mapstructure:"max-retries"`
	MaxLogLength   int    `mapstructure:"max-log-length"`
}

type MatchingConfig struct {
	Limit       int  `mapstructure:"limit"`
	Workers     int  `mapstructure:"workers"`
	ClampScores bool `mapstructure:"clamp-scores"`
}

type ScrapeConfig struct {
	FeedURL          string   `mapstructure:"feed-url"`
	UserAgent        string   `mapstructure:"user-agent"`
	MaxItems         int      `mapstructure:"max-items"`
	ExcludedAgencies []string `mapstructure:"excluded-agencies"`
}

type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	SigningKey     string `mapstructure:"signing-key"`
	SigningKeyFile string `mapstructure:"signing-key-file"`
	CronSecret     string `mapstructure:"cron-secret"`
	CronSecretFile string `mapstructure:"cron-secret-file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "rfp-matcher ingests government RFP listings and ranks them against business profiles",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is rfp-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

// setDefaults registers every key so env overrides reach viper.Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.file", "")
	v.SetDefault("store.mysql.dsn", "")
	v.SetDefault("store.mysql.dsn-file", "")
	v.SetDefault("store.mysql.max-open-conns", 50)
	v.SetDefault("store.mysql.max-idle-conns", 10)
	v.SetDefault("store.mysql.conn-max-lifetime", time.Hour)

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.embedding-model", "text-embedding-004")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 2000)

	v.SetDefault("matching.limit", 20)
	v.SetDefault("matching.workers", 4)
	v.SetDefault("matching.clamp-scores", false)

	v.SetDefault("scrape.feed-url", "https://www.grants.gov/rss/GrantsDBExtract.xml")
	v.SetDefault("scrape.user-agent", "")
	v.SetDefault("scrape.max-items", 20)
	v.SetDefault("scrape.excluded-agencies", []string{})

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.signing-key", "")
	v.SetDefault("server.signing-key-file", "")
	v.SetDefault("server.cron-secret", "")
	v.SetDefault("server.cron-secret-file", "")
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Without an explicit --config a missing file means defaults and env only.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
