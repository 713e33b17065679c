package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/imcoach/internal/chatdb"
	"github.com/matheus3301/imcoach/internal/config"
	"github.com/matheus3301/imcoach/internal/daemon"
	"github.com/matheus3301/imcoach/internal/lock"
	"github.com/matheus3301/imcoach/internal/profile"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.imcoach/config.toml)")
	debugFlag := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = profile.ConfigPath()
	}
	if err := config.LoadEnvFile(profile.EnvPath()); err != nil {
		fatal(err)
	}
	if err := config.LoadEnvFile(".env"); err != nil {
		fatal(err)
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fatal(fmt.Errorf("load %s: %w", configPath, err))
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	profileName := profile.Resolve(*profileFlag, cfg.DefaultProfile)
	if err := profile.ValidateName(profileName); err != nil {
		fatal(err)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Profile: profileName, Config: *cfg, Debug: *debugFlag}),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
	)
	if err := app.Err(); err != nil {
		fatal(err)
	}

	app.Run()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)

	var held *lock.HeldError
	switch {
	case errors.Is(err, chatdb.ErrStoreUnavailable):
		fmt.Fprintln(os.Stderr, "hint: grant Full Disk Access to your terminal (System Settings > Privacy & Security > Full Disk Access) so it can read ~/Library/Messages/chat.db")
	case errors.As(err, &held):
		fmt.Fprintf(os.Stderr, "hint: coachd is already running for this profile (PID %d)\n", held.PID)
	}
	os.Exit(1)
}
