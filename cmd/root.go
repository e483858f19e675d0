// Package cmd wires the survey bot into a command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ibroh-tech/Omonat-bot/config"
	"github.com/ibroh-tech/Omonat-bot/database"
	"github.com/ibroh-tech/Omonat-bot/survey"
)

// rootOptions carries flag values shared by all subcommands. Flags win over
// environment variables.
type rootOptions struct {
	dbPath     string
	surveyPath string
	debug      bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "omonat-bot",
		Short: "Monthly regional survey bot for Telegram",
		Long: `omonat-bot runs a monthly survey over Telegram.

Users pick their region, then answer the survey questions one by one.
Progress is stored in SQLite and bucketed by calendar month.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (or set DB_PATH env)")
	root.PersistentFlags().StringVar(&opts.surveyPath, "survey", "", "Survey definition YAML (or set SURVEY_PATH env, default: built-in)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newServeCommand(opts),
		newResetCommand(opts),
		newProgressCommand(opts),
		newValidateCommand(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

func (o *rootOptions) config() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.dbPath != "" {
		cfg.DatabasePath = o.dbPath
	}
	if o.surveyPath != "" {
		cfg.SurveyPath = o.surveyPath
	}
	cfg.Debug = cfg.Debug || o.debug
	return cfg, nil
}

// open loads the configuration, the survey and the database.
func (o *rootOptions) open() (*config.Config, *survey.Definition, *database.DB, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, nil, err
	}
	def, db, err := load(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, def, db, nil
}

func load(cfg *config.Config) (*survey.Definition, *database.DB, error) {
	def, err := survey.Load(cfg.SurveyPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return def, db, nil
}

func openDatabase(cfg *config.Config) (*database.DB, error) {
	if cfg.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := database.New(cfg.DatabasePath, database.WithLocation(cfg.Location))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}
