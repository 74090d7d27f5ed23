package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lessonloop/assistant/internal/profile"
	"github.com/lessonloop/assistant/server"
	"github.com/lessonloop/assistant/store"
	"github.com/lessonloop/assistant/store/db"
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "agentd is the LessonLoop assistant server",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	viper.SetEnvPrefix("lessonloop")
	viper.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of the server, can be "prod", "dev" or "demo"`)
	flags.String("addr", "", "address of the server")
	flags.Int("port", 8081, "port of the server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	flags.String("dsn", "", "database source name")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func run() error {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	setupLogger(p)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	driver, err := db.NewDBDriver(p)
	if err != nil {
		return fmt.Errorf("create db driver: %w", err)
	}
	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("migrate database: %w", err)
	}

	srv, err := server.NewServer(ctx, p, st)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create server: %w", err)
	}

	slog.Info("assistant starting",
		"version", version, "mode", p.Mode, "driver", p.Driver, "port", p.Port)

	err = srv.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	return err
}

func setupLogger(p *profile.Profile) {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
