package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	gpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/alone132405/panel-bot-sub001/internal/auth/rbac"
	jwt "github.com/alone132405/panel-bot-sub001/internal/auth/token"
	"github.com/alone132405/panel-bot-sub001/internal/autopilot"
	"github.com/alone132405/panel-bot-sub001/internal/broadcast"
	common "github.com/alone132405/panel-bot-sub001/internal/cli/common"
	"github.com/alone132405/panel-bot-sub001/internal/directory"
	httpserver "github.com/alone132405/panel-bot-sub001/internal/server/http"
	"github.com/alone132405/panel-bot-sub001/internal/settings"
)

func main() {
	var cfgFile string
	root := &cobra.Command{
		Use:   "panel-server",
		Short: "Bot settings panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			// default logger to stderr until config is loaded
			common.SetupLoggerWithFile("info", "console", "", 0, 0, 0, false)
			viper.SetEnvPrefix("PANEL")
			viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
			viper.AutomaticEnv()
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
				if err := viper.ReadInConfig(); err != nil {
					slog.Warn("read config", "error", err)
				} else {
					slog.Info("config loaded", "file", viper.ConfigFileUsed())
				}
			}
			v := viper.GetViper()
			if sub := v.Sub("panel"); sub != nil {
				v = sub
			}
			common.MergeLogSection(v)
			common.SetupLoggerWithFile(
				v.GetString("log.level"),
				v.GetString("log.format"),
				v.GetString("log.file"),
				v.GetInt("log.max_size"),
				v.GetInt("log.max_backups"),
				v.GetInt("log.max_age"),
				v.GetBool("log.compress"),
			)
			return run(v)
		},
	}
	root.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := directory.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	repo := directory.New(db)
	if err := seedAdmin(ctx, v, repo); err != nil {
		return err
	}

	dataDir := v.GetString("settings.dir")
	if dataDir == "" {
		dataDir = "data/settings"
	}
	store, err := settings.NewStore(dataDir, v.GetString("settings.schema"))
	if err != nil {
		return fmt.Errorf("settings store: %w", err)
	}

	var bridges []broadcast.Publisher
	if url := v.GetString("redis.url"); url != "" {
		bridge, err := broadcast.NewRedisBridge(url)
		if err != nil {
			return fmt.Errorf("redis bridge: %w", err)
		}
		defer bridge.Close()
		bridges = append(bridges, bridge)
		slog.Info("redis bridge enabled")
	}
	hub := broadcast.NewHub(bridges...)
	defer hub.Close()

	watcher := settings.NewWatcher(store, hub)
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("settings watcher stopped", "error", err)
		}
	}()

	layout := autopilot.DefaultScriptLayout()
	if sub := v.Sub("automation.layout"); sub != nil {
		if err := sub.Unmarshal(&layout); err != nil {
			return fmt.Errorf("automation layout: %w", err)
		}
	}
	queue := autopilot.NewQueue(
		autopilot.NewWindowDriver(layout),
		autopilot.NewSessionGate(),
		hub,
		autopilot.Options{
			GatePollInterval: v.GetDuration("automation.gate_poll"),
			RunTimeout:       v.GetDuration("automation.run_timeout"),
		},
	)
	go func() {
		if err := queue.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("automation queue stopped", "error", err)
		}
	}()

	policy, err := loadPolicy(v)
	if err != nil {
		return fmt.Errorf("rbac: %w", err)
	}
	secret := v.GetString("auth.secret")
	if secret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		secret = hex.EncodeToString(b)
		slog.Warn("auth.secret not set, generated an ephemeral one; sessions will not survive restarts")
	}

	addr := v.GetString("addr")
	if addr == "" {
		addr = ":8080"
	}
	reportsDir := v.GetString("reports.dir")
	if reportsDir == "" {
		reportsDir = "data/reports"
	}
	srv := httpserver.NewServer(httpserver.Config{
		Addr:       addr,
		ReportsDir: reportsDir,
		LoginTTL:   v.GetDuration("auth.ttl"),
	}, repo, store, queue, hub, jwt.NewManager(secret), policy)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	slog.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shCtx)
}

func openDB(v *viper.Viper) (*gorm.DB, error) {
	driver := v.GetString("db.driver")
	dsn := v.GetString("db.dsn")
	switch driver {
	case "postgres":
		return gorm.Open(gpostgres.Open(dsn), &gorm.Config{})
	case "", "sqlite":
		if dsn == "" {
			if err := os.MkdirAll("data", 0o755); err != nil {
				return nil, err
			}
			dsn = "data/panel.db"
		}
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// seedAdmin creates the first admin account on an empty directory.
func seedAdmin(ctx context.Context, v *viper.Viper, repo *directory.Repo) error {
	n, err := repo.CountUsers(ctx)
	if err != nil || n > 0 {
		return err
	}
	pass := v.GetString("admin_password")
	if pass == "" {
		b := make([]byte, 12)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		pass = hex.EncodeToString(b)
		slog.Warn("created initial admin user", "username", "admin", "password", pass)
	}
	u := &directory.UserRecord{Username: "admin", DisplayName: "Administrator", Role: directory.RoleAdmin, Active: true}
	if err := repo.CreateUser(ctx, u); err != nil {
		return err
	}
	return repo.SetPassword(ctx, u.ID, pass)
}

func loadPolicy(v *viper.Viper) (rbac.Policy, error) {
	model := v.GetString("rbac.model")
	policy := v.GetString("rbac.policy")
	if model != "" && policy != "" {
		return rbac.NewPolicyFromFiles(model, policy)
	}
	return rbac.NewDefaultPolicy()
}
