package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matheus3301/imcoach/internal/api"
	"github.com/matheus3301/imcoach/internal/config"
	"github.com/matheus3301/imcoach/internal/profile"
	"github.com/spf13/cobra"
)

// cli holds the persistent flags shared by every subcommand.
type cli struct {
	profileFlag string
	configPath  string
	jsonOut     bool
	timeout     time.Duration

	out io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:           "coachctl",
		Short:         "Control and inspect the iMessage coaching daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.profileFlag, "profile", "", "profile name (overrides config default)")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ~/.imcoach/config.toml)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "output in JSON format")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		c.statusCmd(),
		c.sessionsCmd(),
		c.sendCmd(),
		c.deliveriesCmd(),
		c.watchCmd(),
		c.recentCmd(),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		path = profile.ConfigPath()
	}
	if err := config.LoadEnvFile(profile.EnvPath()); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *cli) profileName() (string, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return "", err
	}
	name := profile.Resolve(c.profileFlag, cfg.DefaultProfile)
	if err := profile.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// withClient dials the profile's daemon and runs fn with a bounded context.
func (c *cli) withClient(fn func(ctx context.Context, cl *api.Client) error) error {
	name, err := c.profileName()
	if err != nil {
		return err
	}
	cl, err := api.Dial(profile.SocketPath(name))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for profile %q: %w", name, err)
	}
	defer func() { _ = cl.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return fn(ctx, cl)
}

func (c *cli) outputJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
