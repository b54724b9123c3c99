package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/urfave/cli/v2"

	"newsetl/internal/config"
	"newsetl/internal/etl"
	"newsetl/internal/logging"
	"newsetl/internal/schedule"
)

func main() {
	app := &cli.App{
		Name:  "news-etl",
		Usage: "Export one day of news articles to CSV or to a Pinecone index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load settings from this dotenv file when it exists",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			return config.LoadDotEnv(c.String("env-file"))
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the ETL once for one partition",
				Flags:  runFlags(),
				Action: runCommand,
			},
			{
				Name:  "schedule",
				Usage: "Run the ETL every day until interrupted",
				Flags: append(runFlags(), &cli.StringFlag{
					Name:  "cron",
					Usage: "Cron expression, UTC",
					Value: schedule.DefaultCron,
				}),
				Action: scheduleCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// runFlags map one to one onto event keys; unset flags fall back to the
// environment.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "etl", Usage: "Mode: csv or pinecone"},
		&cli.StringFlag{Name: "date", Usage: "Partition date YYYY-MM-DD (default: yesterday)"},
		&cli.StringFlag{Name: "from-bucket", Usage: "Source bucket"},
		&cli.StringFlag{Name: "to-bucket", Usage: "Destination bucket (csv mode)"},
		&cli.StringFlag{Name: "format", Usage: "Tabular format: csv, parquet or xlsx"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warning, error, critical"},
	}
}

var flagKeys = map[string]string{
	"etl":         config.KeyETL,
	"date":        config.KeyDate,
	"from-bucket": config.KeyFromBucket,
	"to-bucket":   config.KeyToBucket,
	"format":      config.KeyTabularFormat,
	"log-level":   config.KeyLogLevel,
}

func eventFromFlags(c *cli.Context) config.Event {
	ev := config.Event{}
	for flag, key := range flagKeys {
		if v := c.String(flag); v != "" {
			ev[key] = v
		}
	}
	return ev
}

func newHandler(ctx context.Context) (*etl.NewsETL, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return etl.NewNewsETL(awsCfg), nil
}

func runCommand(c *cli.Context) error {
	h, err := newHandler(c.Context)
	if err != nil {
		return err
	}

	out, err := h.Handle(c.Context, eventFromFlags(c))
	if err != nil {
		if etl.IsConfigError(err) {
			return cli.Exit(err.Error(), 2)
		}
		return err
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
	return nil
}

func scheduleCommand(c *cli.Context) error {
	h, err := newHandler(c.Context)
	if err != nil {
		return err
	}

	ev := eventFromFlags(c)
	// The partition must follow the clock, never a fixed date.
	delete(ev, config.KeyDate)

	logger := logging.New(c.String("log-level"))
	s := schedule.New(logger)
	err = s.Daily("news-etl", c.String("cron"), func(ctx context.Context) error {
		_, err := h.Handle(ctx, ev)
		return err
	})
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	if next, ok := s.NextRun("news-etl"); ok {
		logger.Info("scheduler started", "next_run", next)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	s.Run(ctx)
	return nil
}
