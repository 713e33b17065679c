package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/imcoach/internal/chatdb/chatdbtest"
	"github.com/matheus3301/imcoach/internal/imsg"
	"github.com/matheus3301/imcoach/internal/profile"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(profile.HomeEnv, t.TempDir())
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd(&bytes.Buffer{})
	for _, path := range [][]string{
		{"status"},
		{"sessions", "list"},
		{"sessions", "activate"},
		{"sessions", "end"},
		{"send"},
		{"deliveries"},
		{"watch"},
		{"recent"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("Find(%v) = (%v, %v)", path, cmd, err)
		}
	}
}

func TestRecentFromFixture(t *testing.T) {
	f := chatdbtest.New(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.Insert(chatdbtest.Row{GUID: "g1", Text: chatdbtest.Text("hi there"), Handle: "+15551234567", Chat: "+15551234567", Date: imsg.FromTime(base)})
	f.Insert(chatdbtest.Row{GUID: "g2", Text: chatdbtest.Text("on my way"), Chat: "+15551234567", FromMe: true, Date: imsg.FromTime(base.Add(time.Minute))})
	f.Insert(chatdbtest.Row{GUID: "g3", Handle: "+15551234567", Chat: "+15551234567", Date: imsg.FromTime(base.Add(2 * time.Minute))})

	out, err := run(t, "recent", "--db", f.Path, "-n", "2")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.HasSuffix(lines[0], "+15551234567: "+imsg.NoText) {
		t.Errorf("newest line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "me: on my way") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestRecentMissingStore(t *testing.T) {
	_, err := run(t, "recent", "--db", "/nonexistent/chat.db")
	if err == nil || !strings.Contains(err.Error(), "Full Disk Access") {
		t.Errorf("recent error = %v, want Full Disk Access hint", err)
	}
}

func TestRecentJSON(t *testing.T) {
	f := chatdbtest.New(t)
	f.Insert(chatdbtest.Row{GUID: "g1", Text: chatdbtest.Text("hello"), Handle: "dana@icloud.com", Chat: "dana@icloud.com", Date: 1})

	out, err := run(t, "recent", "--db", f.Path, "--json")
	if err != nil {
		t.Fatalf("recent --json: %v", err)
	}
	var msgs []imsg.Message
	if err := json.Unmarshal([]byte(out), &msgs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(msgs) != 1 || msgs[0].ID != "g1" || msgs[0].Sender != "dana@icloud.com" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestWriteRecentRaw(t *testing.T) {
	msgs := []imsg.Message{
		{ID: "g7", RowID: 7, Sender: "alex", ChatID: "iMessage;-;alex", Service: "iMessage", Text: "decoded", HasText: true, FromBody: true},
		{ID: "g8", RowID: 8, IsFromMe: true, Service: "SMS"},
	}
	var buf bytes.Buffer
	writeRecent(&buf, msgs, true)
	out := buf.String()

	for _, want := range []string{
		"alex: decoded",
		"row=7 guid=g7 chat=iMessage;-;alex service=iMessage source=attributedBody",
		"me: " + imsg.NoText,
		"source=none",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteRecentEmpty(t *testing.T) {
	var buf bytes.Buffer
	writeRecent(&buf, nil, false)
	if buf.String() != "No messages found.\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	_, err := run(t, "status", "--timeout", "2s")
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Errorf("status error = %v, want not running", err)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("a\nb"); got != "a …" {
		t.Errorf("firstLine() = %q", got)
	}
	if got := firstLine("single"); got != "single" {
		t.Errorf("firstLine() = %q", got)
	}
}
