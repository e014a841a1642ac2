package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/AgentIsComing/live-screen-share-releases/internal/directory"
)

// Server defaults.
const (
	DefaultServerPort    = 3000
	DefaultDirectoryPort = 8787
)

// ServerConfig configures the signaling and directory services.
type ServerConfig struct {
	Host string
	Port int
}

// ServerOptions carries flag overrides for a service.
type ServerOptions struct {
	Host string
	Port int
}

// Addr is the listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadServer resolves the signaling server config: flag > PORT env > 3000.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	return loadService(opts, "PORT", DefaultServerPort)
}

// DirectoryConfig configures the room directory service.
type DirectoryConfig struct {
	ServerConfig
	DefaultTTL time.Duration
}

// LoadDirectory resolves the directory service config. The port comes from
// flag > DIRECTORY_PORT > 8787 and the default TTL from DEFAULT_TTL_SECONDS.
func LoadDirectory(opts ServerOptions) (*DirectoryConfig, error) {
	srv, err := loadService(opts, "DIRECTORY_PORT", DefaultDirectoryPort)
	if err != nil {
		return nil, err
	}

	ttl := directory.DefaultTTL
	if v := os.Getenv("DEFAULT_TTL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULT_TTL_SECONDS %q: %w", v, err)
		}
		ttl = directory.ClampTTL(time.Duration(secs)*time.Second, directory.DefaultTTL)
	}
	return &DirectoryConfig{ServerConfig: *srv, DefaultTTL: ttl}, nil
}

func loadService(opts ServerOptions, portEnv string, fallback int) (*ServerConfig, error) {
	port := opts.Port
	if port == 0 {
		if v := os.Getenv(portEnv); v != "" {
			p, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", portEnv, v, err)
			}
			port = p
		}
	}
	if port == 0 {
		port = fallback
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("port %d out of range", port)
	}
	return &ServerConfig{Host: first(opts.Host, os.Getenv("HOST")), Port: port}, nil
}
