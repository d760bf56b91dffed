package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/wareflow/ems/internal/employee/controller"
	"github.com/wareflow/ems/internal/employee/db"
	"github.com/wareflow/ems/internal/employee/models"
	"github.com/wareflow/ems/internal/lock"
	"github.com/wareflow/ems/internal/pkg/utils"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const appVersion = "1.0.0"

// Config struct for YAML configuration
type Config struct {
	DBPath        string `yaml:"DB_PATH"`
	BusyTimeoutMS int    `yaml:"BUSY_TIMEOUT_MS"`
	AlertDays     int    `yaml:"ALERT_DAYS"`
	WaitForLock   bool   `yaml:"WAIT_FOR_LOCK"`
}

func main() {
	logger := initLogger()
	defer func(logger *zap.Logger) {
		err := logger.Sync()
		if err != nil {
			logger.Error("failed to sync logger", zap.Error(err))
		}
	}(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	repo, err := db.NewRepository(&db.Config{Path: cfg.DBPath, BusyTimeoutMS: cfg.BusyTimeoutMS})
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer repo.Close()

	service := controller.NewEmployeeService(repo, logger)
	locks := lock.NewManager(repo, logger)

	if err := run(os.Args[1:], cfg, service, locks, logger); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func run(args []string, cfg *Config, service *controller.EmployeeService, locks *lock.Manager, logger *zap.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: wareflow <employees|alerts|expired|delete-employee|lock-status>")
	}
	ctx := context.Background()

	switch args[0] {
	case "employees":
		fs := flag.NewFlagSet("employees", flag.ExitOnError)
		statusFlag := fs.String("status", "", "filter by status (active|inactive)")
		_ = fs.Parse(args[1:])

		var status *models.Status
		if *statusFlag != "" {
			status = utils.Ptr(models.Status(*statusFlag))
		}
		employees, err := service.ListEmployees(ctx, status)
		if err != nil {
			return err
		}
		for _, e := range employees {
			matricule := "-"
			if e.Matricule != nil {
				matricule = *e.Matricule
			}
			fmt.Printf("%-36s  %-10s  %-8s  %s\n", e.ID, matricule, e.Status, e.FullName())
		}
		return nil

	case "alerts":
		fs := flag.NewFlagSet("alerts", flag.ExitOnError)
		days := fs.Int("days", cfg.AlertDays, "alert window in days")
		_ = fs.Parse(args[1:])

		alerts, err := service.ExpiringSoon(ctx, *days)
		if err != nil {
			return err
		}
		printAlerts(alerts)
		return nil

	case "expired":
		alerts, err := service.Expired(ctx)
		if err != nil {
			return err
		}
		printAlerts(alerts)
		return nil

	case "delete-employee":
		fs := flag.NewFlagSet("delete-employee", flag.ExitOnError)
		idFlag := fs.String("id", "", "employee ID")
		wait := fs.Bool("wait", cfg.WaitForLock, "wait for the write lock instead of failing when held")
		_ = fs.Parse(args[1:])
		cfg.WaitForLock = *wait

		id, err := uuid.Parse(*idFlag)
		if err != nil {
			return fmt.Errorf("invalid employee ID: %w", err)
		}
		return withWriteLock(ctx, cfg, locks, logger, func(ctx context.Context) error {
			return service.DeleteEmployee(ctx, id)
		})

	case "lock-status":
		active, err := locks.ActiveLock(ctx)
		if err != nil {
			return err
		}
		if active == nil {
			fmt.Println("no active lock, write access is available")
			return nil
		}
		fmt.Printf("held by %s (pid %d) since %s, last heartbeat %s\n",
			active.Hostname, active.PID,
			active.LockedAt.Format("2006-01-02 15:04:05"),
			active.LastHeartbeat.Format("2006-01-02 15:04:05"))
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// withWriteLock brackets fn inside a write-lock session: acquire, keep the
// heartbeat running, release on the way out. A denied acquisition reports
// the holder instead of mutating anything.
func withWriteLock(ctx context.Context, cfg *Config, locks *lock.Manager, logger *zap.Logger, fn func(ctx context.Context) error) error {
	id := localIdentity()

	var result *lock.AcquireResult
	var err error
	if cfg.WaitForLock {
		result, err = locks.Wait(ctx, id)
	} else {
		result, err = locks.Acquire(ctx, id)
	}
	if err != nil {
		return err
	}
	if !result.Acquired {
		return fmt.Errorf("database is locked by %s (pid %d) since %s",
			result.Holder.Hostname, result.Holder.PID,
			result.Holder.LockedAt.Format("2006-01-02 15:04:05"))
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	keeper := locks.NewKeeper(id, cancel)
	keeper.Start()
	defer func() {
		keeper.Stop()
		if _, err := locks.Release(context.Background(), id); err != nil {
			logger.Warn("failed to release lock", zap.Error(err))
		}
	}()

	// Interrupt and SIGTERM release the lock instead of leaving a token
	// to go stale.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)
	go func() {
		select {
		case <-stop:
			cancel()
		case <-sessionCtx.Done():
		}
	}()

	return fn(sessionCtx)
}

func localIdentity() lock.Identity {
	hostname, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return lock.Identity{
		Hostname:   hostname,
		Username:   username,
		PID:        os.Getpid(),
		AppVersion: appVersion,
	}
}

func printAlerts(alerts []controller.Alert) {
	for _, a := range alerts {
		fmt.Printf("%-14s  %-20s  expires %s  (%d day(s), %s)\n",
			a.Kind, a.Label, a.ExpirationDate.Format("2006-01-02"), a.DaysLeft, a.Status)
	}
	if len(alerts) == 0 {
		fmt.Println("nothing to report")
	}
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, _ := zap.NewProduction()
	return logger
}

// loadConfig loads configuration from config.yaml, with a .env file able
// to override the config path and database location.
func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("WAREFLOW_CONFIG")
	if path == "" {
		path = "config.yaml"
	}

	cfg := &Config{
		DBPath:    "wareflow.db",
		AlertDays: 60,
	}
	file, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if dbPath := os.Getenv("WAREFLOW_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}
