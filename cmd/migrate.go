package cmd

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/taskboard/task-events-service/migrations"
	"github.com/urfave/cli/v2"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
			&cli.BoolFlag{
				Name:  "down",
				Usage: "Roll back the most recent migration instead of migrating up",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			db, err := sql.Open("pgx", cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			goose.SetBaseFS(migrations.FS)
			if err := goose.SetDialect("postgres"); err != nil {
				return fmt.Errorf("set dialect: %w", err)
			}

			if c.Bool("down") {
				if err := goose.DownContext(c.Context, db, "."); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				slog.Info("rolled back one migration")
				return nil
			}

			if err := goose.UpContext(c.Context, db, "."); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}
