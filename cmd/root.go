package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	dbDriver  string
	dbDSN     string
	redisURL  string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "casewatch",
	Short: "Environmental enforcement case dashboard",
	Long: `Casewatch reconciles environmental enforcement records (operations, detainees,
vehicles, seizures, notifications) into one case per case number and serves
them as a terminal dashboard, an HTTP API and CSV/PNG exports.

Features:
- Case reconciliation from several source tables (SQL database or REST backend)
- Filtering, headline metrics and regional, provincial and weekly views
- Case create, update and delete with audit trail
- Scheduled refresh and CSV folder import
- Redis Streams change notifications`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.casewatch.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "Database driver (sqlite, sqlite3, pgx); empty picks the built-in SQLite driver")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "./data/casewatch.db", "Database path or DSN")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis connection URL for change notifications (empty disables)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")

	// Bind flags to viper
	viper.BindPFlag("database.driver", rootCmd.PersistentFlags().Lookup("db-driver"))
	viper.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".casewatch" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".casewatch")
	}

	// CASEWATCH_SOURCE_URL overrides source.url, and so on.
	viper.SetEnvPrefix("casewatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("database.dsn", "./data/casewatch.db")
	viper.SetDefault("source.kind", "sql")
	viper.SetDefault("source.cache_ttl", "0s")
	viper.SetDefault("source.primary_table", "notas_informativas")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("refresh.interval", "5m")
	viper.SetDefault("refresh.mode", "rebuild")
	viper.SetDefault("api.bind", "127.0.0.1:8080")
	viper.SetDefault("api.rps", 10.0)
	viper.SetDefault("api.burst", 20)
	viper.SetDefault("export.target", "./exports")
	viper.SetDefault("ingest.dir", "")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: viper.GetString("database.driver"),
			DSN:    viper.GetString("database.dsn"),
		},
		Source: SourceConfig{
			Kind:         viper.GetString("source.kind"),
			URL:          viper.GetString("source.url"),
			APIKey:       viper.GetString("source.api_key"),
			CacheTTL:     viper.GetDuration("source.cache_ttl"),
			Tables:       stringList("source.tables"),
			PrimaryTable: viper.GetString("source.primary_table"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		Refresh: RefreshConfig{
			Interval: viper.GetDuration("refresh.interval"),
			Mode:     viper.GetString("refresh.mode"),
		},
		Heuristics: HeuristicsConfig{
			File: viper.GetString("heuristics.file"),
		},
		API: APIConfig{
			Bind:          viper.GetString("api.bind"),
			RPS:           viper.GetFloat64("api.rps"),
			Burst:         viper.GetInt("api.burst"),
			AllowedEmails: stringList("api.allowed_emails"),
		},
		Export: ExportConfig{
			Target: viper.GetString("export.target"),
		},
		Ingest: IngestConfig{
			Dir: viper.GetString("ingest.dir"),
		},
	}
}

// stringList reads a list key that may come from YAML as a sequence or from
// the environment as a comma-separated string.
func stringList(key string) []string {
	var out []string
	for _, v := range viper.GetStringSlice(key) {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Source     SourceConfig     `mapstructure:"source"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Refresh    RefreshConfig    `mapstructure:"refresh"`
	Heuristics HeuristicsConfig `mapstructure:"heuristics"`
	API        APIConfig        `mapstructure:"api"`
	Export     ExportConfig     `mapstructure:"export"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SourceConfig struct {
	Kind         string        `mapstructure:"kind"`
	URL          string        `mapstructure:"url"`
	APIKey       string        `mapstructure:"api_key"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	Tables       []string      `mapstructure:"tables"`
	PrimaryTable string        `mapstructure:"primary_table"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Mode     string        `mapstructure:"mode"`
}

type HeuristicsConfig struct {
	File string `mapstructure:"file"`
}

type APIConfig struct {
	Bind          string   `mapstructure:"bind"`
	RPS           float64  `mapstructure:"rps"`
	Burst         int      `mapstructure:"burst"`
	AllowedEmails []string `mapstructure:"allowed_emails"`
}

type ExportConfig struct {
	Target string `mapstructure:"target"`
}

type IngestConfig struct {
	Dir string `mapstructure:"dir"`
}
