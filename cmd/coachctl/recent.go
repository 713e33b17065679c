package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/imcoach/internal/chatdb"
	"github.com/matheus3301/imcoach/internal/imsg"
	"github.com/spf13/cobra"
)

// recentCmd reads chat.db directly, so it works without a running daemon.
// It is the quickest way to confirm Full Disk Access and body decoding.
func (c *cli) recentCmd() *cobra.Command {
	var (
		limit  int
		raw    bool
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the newest messages straight from chat.db",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := dbPath
			if path == "" {
				cfg, err := c.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.ChatDB
			}
			if path == "" {
				path = chatdb.DefaultPath()
			}

			db, err := chatdb.Open(path)
			if err != nil {
				return fmt.Errorf("%w\nhint: grant Full Disk Access to your terminal and retry", err)
			}
			defer func() { _ = db.Close() }()

			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			rows, err := db.Recent(ctx, limit)
			if err != nil {
				return err
			}
			msgs := make([]imsg.Message, len(rows))
			for i, r := range rows {
				msgs[i] = imsg.Normalize(r)
			}
			if c.jsonOut {
				return c.outputJSON(msgs)
			}
			writeRecent(c.out, msgs, raw)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of messages")
	cmd.Flags().BoolVar(&raw, "raw", false, "also show row id, guid and body source")
	cmd.Flags().StringVar(&dbPath, "db", "", "chat.db path (default from config or ~/Library/Messages/chat.db)")
	return cmd
}

func writeRecent(w io.Writer, msgs []imsg.Message, raw bool) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages found.")
		return
	}
	for _, m := range msgs {
		from := m.Sender
		if m.IsFromMe {
			from = "me"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.Local().Format(time.DateTime), from, m.DisplayText())
		if raw {
			source := "text"
			switch {
			case m.FromBody:
				source = "attributedBody"
			case !m.HasText:
				source = "none"
			}
			fmt.Fprintf(w, "    row=%d guid=%s chat=%s service=%s source=%s\n", m.RowID, m.ID, m.ChatID, m.Service, source)
		}
	}
}
