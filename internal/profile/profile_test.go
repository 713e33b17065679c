package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".imcoach", "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv(HomeEnv, base)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"socket", SocketPath("work"), filepath.Join(base, "profiles", "work", "coachd.sock")},
		{"db", AppDBPath("work"), filepath.Join(base, "profiles", "work", "coach.db")},
		{"log", LogPath("work"), filepath.Join(base, "profiles", "work", "logs", "coachd.log")},
		{"config", ConfigPath(), filepath.Join(base, "config.toml")},
		{"env", EnvPath(), filepath.Join(base, ".env")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(LogDir("test"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() || info.Mode().Perm() != 0700 {
		t.Errorf("log dir mode = %v, want drwx------", info.Mode())
	}
	if !strings.HasPrefix(LogDir("test"), Dir("test")) {
		t.Error("log dir is outside the profile dir")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		flag, configured, want string
	}{
		{"work", "home", "work"},
		{"", "home", "home"},
		{"", "", DefaultName},
	}
	for _, tt := range tests {
		if got := Resolve(tt.flag, tt.configured); got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.flag, tt.configured, got, tt.want)
		}
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-profile", false},
		{"valid with underscore", "my_profile", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my profile", true},
		{"dot", "my.profile", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "my/profile", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
