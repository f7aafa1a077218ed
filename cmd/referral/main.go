package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referral/internal/clock"
	"github.com/smallbiznis/referral/internal/config"
	"github.com/smallbiznis/referral/internal/migration"
	"github.com/smallbiznis/referral/internal/observability"
	"github.com/smallbiznis/referral/internal/scheduler"
	"github.com/smallbiznis/referral/internal/server"
	"github.com/smallbiznis/referral/pkg/db"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "referral",
		Usage: "referral funnel and reward ledger",
		Commands: []*cli.Command{
			commandServe(),
			commandMigrate(),
			commandJob(),
			commandTiers(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

func commandServe() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and the background scheduler",
		Action: func(c *cli.Context) error {
			fx.New(
				infrastructure(),
				migration.Module,
				server.Module,
				scheduler.Module,
			).Run()
			return nil
		},
	}
}

func commandMigrate() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply or roll back schema migrations",
		Subcommands: []*cli.Command{
			{
				Name: "up",
				Action: func(c *cli.Context) error {
					conn, err := db.Open(config.Load().Database(), nil)
					if err != nil {
						return err
					}
					return migration.Run(conn)
				},
			},
			{
				Name:  "down",
				Usage: "roll back the latest postgres migration",
				Action: func(c *cli.Context) error {
					conn, err := db.Open(config.Load().Database(), nil)
					if err != nil {
						return err
					}
					sqlDB, err := conn.DB()
					if err != nil {
						return err
					}
					defer sqlDB.Close()
					return migration.Down(sqlDB)
				},
			},
		},
	}
}

func commandJob() *cli.Command {
	return &cli.Command{
		Name:      "job",
		Usage:     "run one scheduler job and exit",
		ArgsUsage: fmt.Sprintf("<%s|%s|%s>", scheduler.JobExpireStale, scheduler.JobRetryNotifications, scheduler.JobPushMetrics),
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "timeout", Value: time.Minute},
		},
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				return cli.ShowSubcommandHelp(c)
			}

			var sched *scheduler.Scheduler
			app := fx.New(
				fx.NopLogger,
				infrastructure(),
				server.Services,
				fx.Provide(scheduler.New),
				fx.Populate(&sched),
			)

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() {
				_ = app.Stop(context.Background())
			}()

			return sched.Run(ctx, name)
		},
	}
}

func commandTiers() *cli.Command {
	return &cli.Command{
		Name:  "tiers",
		Usage: "print the tier table in effect",
		Action: func(c *cli.Context) error {
			holder, err := config.NewTierConfigHolder(config.Load(), zap.NewNop())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LEVEL\tNAME\tREFERRALS\tMINUTES\tCREDIT")
			for _, tier := range holder.Table().Definitions() {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.2f\n",
					tier.Level, tier.Name, tier.ReferralsRequired, tier.RewardMinutes,
					float64(tier.RewardCreditCents)/100)
			}
			return w.Flush()
		},
	}
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
