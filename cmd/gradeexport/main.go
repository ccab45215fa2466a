package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	ge "github.com/mimiro-io/grade-export"
	"github.com/mimiro-io/grade-export/sqlsource"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "gradeexport",
	Short:         "Export course grades from a gradebook database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "~/.gradeexport",
		"folder of json config files, env variables override its values")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "",
		"load env variables such as DB_DSN from this file before reading the config")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadCore() (*ge.CoreService, error) {
	if envFile != "" {
		file, err := homedir.Expand(envFile)
		if err != nil {
			return nil, err
		}
		// variables already set in the environment win
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}
	path, err := homedir.Expand(configPath)
	if err != nil {
		return nil, err
	}
	return ge.NewCoreService(path)
}

func openSource(ctx context.Context, core *ge.CoreService) (*sqlsource.Source, *sql.DB, error) {
	if core.Config.DatabaseConfig == nil {
		return nil, nil, ge.Errorf(ge.LayerErrorBadParameter, "missing database_config")
	}
	db, err := sqlsource.Open(ctx, core.Config.DatabaseConfig, core.Logger)
	if err != nil {
		return nil, nil, err
	}
	source, err := sqlsource.New(db, sqlsource.NewConfig(core.Config.DatabaseConfig, core.Config.GradebookConfig), core.Logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return source, db, nil
}
