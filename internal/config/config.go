package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/AgentIsComing/live-screen-share-releases/internal/quality"
)

// Default configuration values.
const (
	DefaultSignalURL  = "ws://localhost:3000/signal"
	DefaultSTUN       = "stun:stun.l.google.com:19302"
	DefaultSTUNBackup = "stun:stun1.l.google.com:19302"
	DefaultDirectory  = "http://localhost:8787"
	ConfigFileEnv     = "LIVESCREEN_CONFIG"
	turnDefaultPort   = "3478"
	turnsDefaultPort  = "5349"
)

// Config holds the resolved client configuration.
type Config struct {
	// SignalURL is the normalized WebSocket endpoint, always ending in /signal.
	SignalURL string

	// HealthURL is derived from SignalURL.
	HealthURL string

	RoomID       string
	ICEServers   []ICEServer
	ForceRelay   bool
	Quality      quality.Quality
	DirectoryURL string
}

// Options carries CLI flag values. Zero values mean "not set".
type Options struct {
	ConfigFile   string
	SignalURL    string
	RoomID       string
	ICEServers   string
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
	ForceRelay   bool
	Bitrate      int
	Profile      string
	DirectoryURL string
}

// BindFlags registers the shared client flags on fs.
func BindFlags(fs *pflag.FlagSet, o *Options) {
	fs.StringVar(&o.ConfigFile, "config", "", "YAML config file (env "+ConfigFileEnv+")")
	fs.StringVarP(&o.SignalURL, "signal-url", "s", "", "signaling server URL (env SIGNAL_URL)")
	fs.StringVarP(&o.RoomID, "room", "r", "", "room ID (env ROOM_ID)")
	fs.StringVar(&o.ICEServers, "ice-servers", "", "ICE servers as a JSON array (env ICE_SERVERS)")
	fs.StringVar(&o.STUNServer, "stun", "", "STUN server URL (env STUN_SERVER)")
	fs.StringVar(&o.TURNServer, "turn", "", "TURN server host or URL (env TURN_SERVER)")
	fs.StringVar(&o.TURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	fs.StringVar(&o.TURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	fs.BoolVar(&o.ForceRelay, "relay", false, "only use TURN relay candidates")
	fs.IntVarP(&o.Bitrate, "bitrate", "b", 0, "video bitrate in bits per second (env BITRATE)")
	fs.StringVarP(&o.Profile, "profile", "p", "", "latency profile: "+profileNames()+" (env LATENCY_PROFILE)")
	fs.StringVar(&o.DirectoryURL, "directory-url", "", "room directory URL (env DIRECTORY_URL)")
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML config file
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	path := first(opts.ConfigFile, os.Getenv(ConfigFileEnv))
	var file FileConfig
	if path != "" {
		f, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		file = *f
	}

	signalURL := NormalizeSignalURL(first(opts.SignalURL, os.Getenv("SIGNAL_URL"), file.SignalURL, DefaultSignalURL))
	healthURL, err := HealthURL(signalURL)
	if err != nil {
		return nil, err
	}

	bitrate := opts.Bitrate
	if bitrate == 0 {
		if v := os.Getenv("BITRATE"); v != "" {
			bitrate, err = strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid BITRATE %q: %w", v, err)
			}
		}
	}
	if bitrate == 0 {
		bitrate = file.Bitrate
	}
	if bitrate < 0 {
		return nil, fmt.Errorf("bitrate must be positive, got %d", bitrate)
	}

	profile := first(opts.Profile, os.Getenv("LATENCY_PROFILE"), file.Profile, quality.DefaultProfile)
	if _, ok := quality.LookupProfile(profile); !ok {
		slog.Warn("unknown latency profile, using quality", "profile", profile, "known", profileNames())
	}

	ice, err := resolveICE(opts, &file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SignalURL:    signalURL,
		HealthURL:    healthURL,
		RoomID:       strings.TrimSpace(first(opts.RoomID, os.Getenv("ROOM_ID"), file.RoomID)),
		ICEServers:   ice,
		ForceRelay:   opts.ForceRelay || file.ForceRelay,
		Quality:      quality.New(profile, bitrate),
		DirectoryURL: strings.TrimRight(first(opts.DirectoryURL, os.Getenv("DIRECTORY_URL"), file.DirectoryURL, DefaultDirectory), "/"),
	}

	if cfg.ForceRelay && !cfg.HasTURN() {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

// resolveICE returns an explicit ICE server list if one is configured,
// otherwise builds one from the STUN and TURN settings.
func resolveICE(opts Options, file *FileConfig) ([]ICEServer, error) {
	if raw := first(opts.ICEServers, os.Getenv("ICE_SERVERS")); raw != "" {
		servers, err := ParseICEServers([]byte(raw))
		if err != nil {
			return nil, err
		}
		if len(servers) > 0 {
			return servers, nil
		}
	}
	if len(file.ICEServers) > 0 {
		return file.ICEServers, nil
	}

	var servers []ICEServer
	if stun := first(opts.STUNServer, os.Getenv("STUN_SERVER"), file.STUNServer); stun != "" {
		servers = append(servers, ICEServer{URLs: URLList{stun}})
	} else {
		servers = append(servers, ICEServer{URLs: URLList{DefaultSTUN, DefaultSTUNBackup}})
	}

	if turn := first(opts.TURNServer, os.Getenv("TURN_SERVER"), file.TURNServer); turn != "" {
		servers = append(servers, ICEServer{
			URLs:       TURNURLs(turn),
			Username:   first(opts.TURNUser, os.Getenv("TURN_USERNAME"), file.TURNUsername),
			Credential: first(opts.TURNPass, os.Getenv("TURN_PASSWORD"), file.TURNPassword),
		})
	}
	return servers, nil
}

// TURNURLs expands a bare TURN host into UDP, TCP and TLS variants. Values
// that already carry a turn: or turns: scheme are used as given.
func TURNURLs(server string) URLList {
	if isTURN(server) {
		return URLList{server}
	}
	return URLList{
		fmt.Sprintf("turn:%s:%s?transport=udp", server, turnDefaultPort),
		fmt.Sprintf("turn:%s:%s?transport=tcp", server, turnDefaultPort),
		fmt.Sprintf("turns:%s:%s?transport=tcp", server, turnsDefaultPort),
	}
}

// HasTURN reports whether any configured ICE server is a relay.
func (c *Config) HasTURN() bool {
	for _, s := range c.ICEServers {
		for _, u := range s.URLs {
			if isTURN(u) {
				return true
			}
		}
	}
	return false
}

func isTURN(url string) bool {
	return strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:")
}

func profileNames() string {
	var names []string
	for _, p := range quality.Profiles() {
		names = append(names, p.Name)
	}
	return strings.Join(names, ", ")
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
