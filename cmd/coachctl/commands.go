package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/matheus3301/imcoach/internal/api"
	"github.com/matheus3301/imcoach/internal/lock"
	"github.com/matheus3301/imcoach/internal/profile"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			err := c.withClient(func(ctx context.Context, cl *api.Client) error {
				st, err := cl.Status(ctx)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.outputJSON(st)
				}
				printStatus(c, st)
				return nil
			})
			if grpcstatus.Code(err) == codes.Unavailable {
				return c.explainUnavailable(err)
			}
			return err
		},
	}
}

func printStatus(c *cli, st *api.StatusInfo) {
	fmt.Fprintf(c.out, "Profile:   %s\n", st.Profile)
	fmt.Fprintf(c.out, "Status:    %s (since %s)\n", st.State, st.Since.Local().Format(time.DateTime))
	if st.Detail != "" {
		fmt.Fprintf(c.out, "Detail:    %s\n", st.Detail)
	}
	fmt.Fprintf(c.out, "Uptime:    %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
	fmt.Fprintf(c.out, "User:      %s\n", st.UserID)
	fmt.Fprintf(c.out, "Agent:     %s\n", st.AgentID)
	fmt.Fprintf(c.out, "Store:     %s (row %d)\n", st.ChatDB, st.Position)
	fmt.Fprintf(c.out, "Sessions:  %d\n", st.Sessions)
	fmt.Fprintf(c.out, "Delivered: %d sent, %d failed\n", st.Deliveries["sent"], st.Deliveries["failed"])
}

// explainUnavailable tells a stopped daemon apart from a wedged one.
func (c *cli) explainUnavailable(cause error) error {
	name, err := c.profileName()
	if err != nil {
		return cause
	}
	pid, held, err := lock.Probe(profile.Dir(name))
	switch {
	case err != nil:
		return cause
	case held:
		return fmt.Errorf("coachd (PID %d) holds profile %q but is not answering: %w", pid, name, cause)
	default:
		return fmt.Errorf("coachd is not running for profile %q", name)
	}
}

func (c *cli) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage coaching sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.withClient(func(ctx context.Context, cl *api.Client) error {
				sessions, err := cl.Sessions(ctx)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.outputJSON(sessions)
				}
				if len(sessions) == 0 {
					fmt.Fprintln(c.out, "No active sessions.")
					return nil
				}
				for _, s := range sessions {
					fmt.Fprintf(c.out, "%-24s %3d msgs  since %s  %s\n",
						s.Target, s.HistoryLen, s.ActivatedAt.Local().Format(time.DateTime), s.Goal)
				}
				return nil
			})
		},
	}

	activate := &cobra.Command{
		Use:   "activate <contact> <goal...>",
		Short: "Start coaching on a contact, as if the user sent the command",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, cl *api.Client) error {
				if err := cl.Activate(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Coaching activated for %s\n", args[0])
				return nil
			})
		},
	}

	end := &cobra.Command{
		Use:   "end <contact>",
		Short: "Stop coaching on a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, cl *api.Client) error {
				if err := cl.End(ctx, args[0]); err != nil {
					if api.IsNotFound(err) {
						return fmt.Errorf("no active session for %s", args[0])
					}
					return err
				}
				fmt.Fprintf(c.out, "Coaching ended for %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, activate, end)
	return cmd
}

func (c *cli) sendCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "send <text...>",
		Short: "Send a message through the daemon (defaults to the configured user)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, cl *api.Client) error {
				if err := cl.Send(ctx, to, strings.Join(args, " ")); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "Message sent.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient handle")
	return cmd
}

func (c *cli) deliveriesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Show the newest entries of the delivery log",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.withClient(func(ctx context.Context, cl *api.Client) error {
				rows, err := cl.Deliveries(ctx, limit)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.outputJSON(rows)
				}
				for _, r := range rows {
					line := fmt.Sprintf("[%s] %-8s %-6s -> %s: %s",
						r.CreatedAt.Local().Format(time.DateTime), r.Kind, r.Status, r.Recipient, firstLine(r.Body))
					if r.Error != "" {
						line += "  (" + r.Error + ")"
					}
					fmt.Fprintln(c.out, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			name, err := c.profileName()
			if err != nil {
				return err
			}
			cl, err := api.Dial(profile.SocketPath(name))
			if err != nil {
				return err
			}
			defer func() { _ = cl.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			err = cl.Watch(ctx, namespace, func(e api.EventEnvelope) error {
				if c.jsonOut {
					return c.outputJSON(e)
				}
				fmt.Fprintf(c.out, "[%s] %-26s %v\n", e.OccurredAt.Local().Format(time.TimeOnly), e.Kind, e.Payload)
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "coach.", "event kind prefix, e.g. coach. or watch.")
	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
