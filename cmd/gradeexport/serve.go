package main

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	ge "github.com/mimiro-io/grade-export"
	"github.com/mimiro-io/grade-export/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve exports over http until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := loadCore()
		if err != nil {
			return err
		}
		source, db, err := openSource(cmd.Context(), core)
		if err != nil {
			return err
		}

		service, err := web.NewService(core, source)
		if err != nil {
			_ = db.Close()
			return err
		}
		updater, err := ge.NewConfigUpdater(core.Config, core.Logger, service)
		if err != nil {
			_ = db.Close()
			return err
		}
		if err := service.Start(); err != nil {
			_ = db.Close()
			return err
		}

		ge.WaitForStop(core.Logger, service, updater, dbStopper{db})
		return nil
	},
}

type dbStopper struct {
	db *sql.DB
}

func (d dbStopper) Stop(_ context.Context) error {
	return d.db.Close()
}
