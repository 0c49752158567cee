package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/avdonin/pitstop/internal/approval"
	"github.com/avdonin/pitstop/internal/bot"
	"github.com/avdonin/pitstop/internal/chat"
	slackadapter "github.com/avdonin/pitstop/internal/chat/slack"
	"github.com/avdonin/pitstop/internal/config"
	"github.com/avdonin/pitstop/internal/dashboard"
	"github.com/avdonin/pitstop/internal/db"
	"github.com/avdonin/pitstop/internal/dialog"
	"github.com/avdonin/pitstop/internal/ledger"
	"github.com/avdonin/pitstop/internal/ledger/gsheets"
	"github.com/avdonin/pitstop/internal/schedule"
	"github.com/avdonin/pitstop/internal/schedule/gcal"
	"github.com/avdonin/pitstop/internal/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Pitstop daemon",
		Long:  "Connects to the configured chat platform, serves booking conversations and the approval workflow, and runs the background schedulers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "pitstop.yaml", "path to Pitstop config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := connectDB(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	adapter, err := createAdapter(cfg)
	if err != nil {
		return err
	}

	st, err := store.New(gormDB)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc := time.FixedZone(fmt.Sprintf("UTC+%d", cfg.Schedule.TimezoneOffsetHours),
		cfg.Schedule.TimezoneOffsetHours*3600)

	cal, err := gcal.New(ctx, gcal.ClientOpts{
		CredentialsFile: cfg.Google.CredentialsFile,
		CalendarID:      cfg.Google.CalendarID,
	})
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}

	finder, err := schedule.NewFinder(schedule.FinderOpts{
		Calendar:     cal,
		Location:     loc,
		OpenOffset:   time.Duration(cfg.Schedule.OpenHour) * time.Hour,
		CloseOffset:  time.Duration(cfg.Schedule.CloseHour) * time.Hour,
		GridStep:     time.Duration(cfg.Schedule.GridStepMin) * time.Minute,
		SlotStep:     time.Duration(cfg.Schedule.SlotStepMin) * time.Minute,
		MaxDaysAhead: cfg.Schedule.MaxDaysAhead,
	})
	if err != nil {
		return err
	}

	var mirror ledger.Ledger
	if cfg.Google.SheetID != "" {
		mirror, err = gsheets.New(ctx, gsheets.ClientOpts{
			CredentialsFile: cfg.Google.CredentialsFile,
			SpreadsheetID:   cfg.Google.SheetID,
			Out:             out,
		})
		if err != nil {
			return fmt.Errorf("sheet: %w", err)
		}
	} else {
		fmt.Fprintf(out, "pitstop: no sheet configured; lead mirroring disabled\n")
	}

	workflow, err := approval.NewWorkflow(approval.WorkflowOpts{
		Adapter:     adapter,
		Store:       st,
		Calendar:    cal,
		Finder:      finder,
		Approver:    cfg.Approver,
		Ledger:      mirror,
		MaxDates:    cfg.Schedule.MaxDates,
		HorizonDays: cfg.Schedule.HorizonDays,
	})
	if err != nil {
		return err
	}

	services := make([]dialog.Service, 0, len(cfg.Services))
	for _, s := range cfg.Services {
		services = append(services, dialog.Service{Name: s.Name, DurationHours: s.DurationHours})
	}

	engine, err := dialog.NewEngine(dialog.EngineOpts{
		Adapter:     adapter,
		Store:       st,
		Finder:      finder,
		Ledger:      mirror,
		Notifier:    workflow,
		Services:    services,
		Contacts:    cfg.Contacts,
		MaxDates:    cfg.Schedule.MaxDates,
		HorizonDays: cfg.Schedule.HorizonDays,
	})
	if err != nil {
		return err
	}

	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		Adapter:       adapter,
		Engine:        engine,
		Workflow:      workflow,
		Store:         st,
		Approver:      cfg.Approver,
		Location:      loc,
		SweepCron:     cfg.Sessions.SweepCron,
		SweepMaxAge:   time.Duration(cfg.Sessions.MaxAgeMin) * time.Minute,
		DigestEnabled: cfg.Digest.Enabled,
		DigestCron:    cfg.Digest.Cron,
		Out:           out,
	})
	if err != nil {
		return err
	}

	if cfg.Dashboard.Enabled {
		go func() {
			if err := dashboard.Start(ctx, dashboard.StartOpts{
				DB:     gormDB,
				Port:   cfg.Dashboard.Port,
				Out:    out,
				Finder: finder,
			}); err != nil {
				log.Printf("pitstop: dashboard: %v", err)
			}
		}()
	}

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return daemon.Run(ctx)
}

// connectDB opens the configured database.
func connectDB(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DB.Driver {
	case "sqlite":
		return db.ConnectSQLite(cfg.DB.Path)
	case "mysql":
		return db.ConnectMySQL(cfg.DB.User, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	default:
		return nil, fmt.Errorf("pitstop: unsupported db driver %q", cfg.DB.Driver)
	}
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config) (chat.Adapter, error) {
	switch cfg.Platform {
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken: cfg.Slack.AppToken,
			BotToken: cfg.Slack.BotToken,
		})
	case "telegram":
		return nil, fmt.Errorf("pitstop: telegram adapter not yet implemented")
	default:
		return nil, fmt.Errorf("pitstop: unsupported platform %q", cfg.Platform)
	}
}
