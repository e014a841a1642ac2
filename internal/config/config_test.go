package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/AgentIsComing/live-screen-share-releases/internal/quality"
)

// clearEnv blanks every variable Load reads so the host environment does
// not leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		ConfigFileEnv, "SIGNAL_URL", "ROOM_ID", "ICE_SERVERS", "STUN_SERVER", "TURN_SERVER",
		"TURN_USERNAME", "TURN_PASSWORD", "BITRATE", "LATENCY_PROFILE", "DIRECTORY_URL",
		"PORT", "HOST", "DIRECTORY_PORT", "DEFAULT_TTL_SECONDS",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livescreen.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SignalURL != DefaultSignalURL {
		t.Errorf("SignalURL = %q", cfg.SignalURL)
	}
	if cfg.HealthURL != "http://localhost:3000/health" {
		t.Errorf("HealthURL = %q", cfg.HealthURL)
	}
	if cfg.Quality.Profile.Name != quality.ProfileUltra || cfg.Quality.Bitrate != quality.DefaultBitrate {
		t.Errorf("Quality = %+v", cfg.Quality)
	}
	if len(cfg.ICEServers) != 1 || len(cfg.ICEServers[0].URLs) != 2 || cfg.ICEServers[0].URLs[0] != DefaultSTUN {
		t.Errorf("ICEServers = %+v", cfg.ICEServers)
	}
	if cfg.HasTURN() || cfg.ForceRelay {
		t.Errorf("unexpected relay config: %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
signal_url: wss://file.example.com
room: from-file
bitrate: 1000000
latency_profile: low
directory_url: https://dir.example.com/
`)

	cfg, err := Load(Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SignalURL != "wss://file.example.com/signal" || cfg.RoomID != "from-file" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Quality.Profile.Name != quality.ProfileLow || cfg.Quality.Bitrate != 1_000_000 {
		t.Errorf("file quality not applied: %+v", cfg.Quality)
	}
	if cfg.DirectoryURL != "https://dir.example.com" {
		t.Errorf("DirectoryURL = %q", cfg.DirectoryURL)
	}

	t.Setenv("ROOM_ID", "from-env")
	t.Setenv("BITRATE", "1500000")
	cfg, err = Load(Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RoomID != "from-env" || cfg.Quality.Bitrate != 1_500_000 {
		t.Errorf("env did not override file: %+v", cfg)
	}

	cfg, err = Load(Options{ConfigFile: path, RoomID: "from-flag", Bitrate: 900_000, Profile: "quality"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RoomID != "from-flag" || cfg.Quality.Bitrate != 900_000 || cfg.Quality.Profile.Name != quality.ProfileQuality {
		t.Errorf("flag did not override env: %+v", cfg)
	}
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(ConfigFileEnv, writeFile(t, "room: env-file\n"))

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RoomID != "env-file" {
		t.Errorf("RoomID = %q", cfg.RoomID)
	}
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	clearEnv(t)
	if _, err := Load(Options{ConfigFile: writeFile(t, "signalurl: ws://x\n")}); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadTURN(t *testing.T) {
	clearEnv(t)
	t.Setenv("TURN_SERVER", "turn.example.com")
	t.Setenv("TURN_USERNAME", "alice")
	t.Setenv("TURN_PASSWORD", "secret")

	cfg, err := Load(Options{ForceRelay: true})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.HasTURN() || !cfg.ForceRelay {
		t.Fatalf("relay not configured: %+v", cfg)
	}
	turn := cfg.ICEServers[1]
	if len(turn.URLs) != 3 || turn.URLs[0] != "turn:turn.example.com:3478?transport=udp" {
		t.Errorf("TURN URLs = %v", turn.URLs)
	}
	if turn.Username != "alice" || turn.Credential != "secret" {
		t.Errorf("TURN credentials = %q/%q", turn.Username, turn.Credential)
	}
}

func TestForceRelayWithoutTURN(t *testing.T) {
	clearEnv(t)
	if _, err := Load(Options{ForceRelay: true}); err == nil {
		t.Fatal("expected error forcing relay without TURN")
	}
}

func TestICEServersFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ICE_SERVERS", `[
		// primary
		{"urls": "stun:stun.example.com:3478"},
		{"urls": ["turn:relay.example.com:3478"], "username": "u", "credential": "p"},
		{"urls": []},
	]`)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ICEServers = %+v", cfg.ICEServers)
	}
	if cfg.ICEServers[0].URLs[0] != "stun:stun.example.com:3478" || !cfg.HasTURN() {
		t.Errorf("ICEServers = %+v", cfg.ICEServers)
	}
}

func TestICEServersFromFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
ice_servers:
  - urls: stun:one.example.com
  - urls:
      - turns:two.example.com:5349
    username: bob
    credential: pw
`)
	cfg, err := Load(Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.ICEServers) != 2 || cfg.ICEServers[1].Username != "bob" || !cfg.HasTURN() {
		t.Fatalf("ICEServers = %+v", cfg.ICEServers)
	}
}

func TestInvalidBitrateEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BITRATE", "fast")
	if _, err := Load(Options{}); err == nil {
		t.Fatal("expected error for non-numeric BITRATE")
	}
}

func TestLoadServer(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadServer(ServerOptions{})
	if err != nil || cfg.Port != DefaultServerPort || cfg.Addr() != ":3000" {
		t.Fatalf("default server = %+v, %v", cfg, err)
	}

	t.Setenv("PORT", "8080")
	cfg, _ = LoadServer(ServerOptions{})
	if cfg.Port != 8080 {
		t.Errorf("PORT env ignored: %d", cfg.Port)
	}
	cfg, _ = LoadServer(ServerOptions{Port: 9000, Host: "127.0.0.1"})
	if cfg.Addr() != "127.0.0.1:9000" {
		t.Errorf("flag override = %s", cfg.Addr())
	}

	t.Setenv("PORT", "70000")
	if _, err := LoadServer(ServerOptions{}); err == nil {
		t.Error("expected out of range port error")
	}
}

func TestLoadDirectory(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEFAULT_TTL_SECONDS", "5")

	cfg, err := LoadDirectory(ServerOptions{})
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if cfg.Port != DefaultDirectoryPort {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.DefaultTTL.Seconds() != 60 {
		t.Errorf("DefaultTTL = %v, want clamped to 60s", cfg.DefaultTTL)
	}
}

func TestBindFlagsListsProfiles(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var opts Options
	BindFlags(fs, &opts)

	usage := fs.Lookup("profile").Usage
	if !strings.Contains(usage, "ultra, low, quality") {
		t.Fatalf("profile usage = %q", usage)
	}
	if err := fs.Parse([]string{"-p", "low", "--room", "demo"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if opts.Profile != "low" || opts.RoomID != "demo" {
		t.Fatalf("opts = %+v", opts)
	}
}
