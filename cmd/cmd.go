package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/taskboard/task-events-service/config"
	"github.com/urfave/cli/v2"
)

const (
	ServiceName = "task-events-service"
)

var (
	version = "0.0.0"
	commit  = "hash"
	branch  = "branch"
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Audit trail and real-time notification pipeline for task events",
		Version: version,
		Commands: []*cli.Command{
			serverCmd(),
			migrateCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the audit consumer and notification gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			app := NewApp(cfg, c.String("config_file"))

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	flags := pflag.NewFlagSet(ServiceName, pflag.ContinueOnError)
	return config.LoadConfig(c.String("config_file"), flags)
}
