package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JonMunkholm/intake/internal/config"
	"github.com/JonMunkholm/intake/internal/logging"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// cli carries state shared by every command.
type cli struct {
	v      *viper.Viper
	format string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "intakectl",
		Short:         "Product intake operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, keys named like the environment variables)")
	pf.String("database-url", "", "postgres connection string (DATABASE_URL)")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVarP(&c.format, "format", "o", formatTable, "output format: table, json")

	_ = c.v.BindPFlag("database_url", pf.Lookup("database-url"))
	_ = c.v.BindPFlag("log_level", pf.Lookup("log-level"))

	root.AddCommand(
		c.variantCmd(),
		c.classifyCmd(),
		c.ingestCmd(),
		c.stagingCmd(),
		c.reconcileCmd(),
		c.migrateCmd(),
		c.seedTaxonomyCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	switch c.format {
	case formatTable, formatJSON:
	default:
		return fmt.Errorf("unknown format %q, use table or json", c.format)
	}

	c.v.AutomaticEnv()
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	for _, key := range config.Keys() {
		_ = c.v.BindEnv(strings.ToLower(key), key)
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	slog.SetDefault(logging.New(os.Stderr, c.v.GetString("log_level"), "text"))
	return nil
}

// lookup resolves configuration keys from flags, the config file and the
// environment, in that order.
func (c *cli) lookup(key string) (string, bool) {
	k := strings.ToLower(key)
	if !c.v.IsSet(k) {
		return "", false
	}
	return c.v.GetString(k), true
}

// loadConfig loads and validates the full configuration.
func (c *cli) loadConfig() (*config.Config, error) {
	return config.LoadWith(c.lookup)
}

// offlineConfig is for commands that never touch a database. Only the
// classifier paths are read.
func (c *cli) offlineConfig() *config.Config {
	cfg := config.Defaults()
	if v, ok := c.lookup("CLASSIFIER_RULES_PATH"); ok {
		cfg.Classifier.RulesPath = v
	}
	if v, ok := c.lookup("TAXONOMY_SEED_PATH"); ok {
		cfg.Classifier.TaxonomySeedPath = v
	}
	return cfg
}
