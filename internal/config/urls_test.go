package config

import "testing"

func TestNormalizeSignalURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://abc.trycloudflare.com", "wss://abc.trycloudflare.com/signal"},
		{"https://abc.trycloudflare.com/", "wss://abc.trycloudflare.com/signal"},
		{"http://localhost:3000", "ws://localhost:3000/signal"},
		{"ws://localhost:3000", "ws://localhost:3000/signal"},
		{"wss://host.example.com/signal", "wss://host.example.com/signal"},
		{"wss://host.example.com/signal/", "wss://host.example.com/signal"},
		{"  ws://host:3000/  ", "ws://host:3000/signal"},
		{"localhost:3000", "localhost:3000"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeSignalURL(tt.in); got != tt.want {
			t.Errorf("NormalizeSignalURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ws://localhost:3000/signal", "http://localhost:3000/health"},
		{"wss://abc.example.com/signal?x=1", "https://abc.example.com/health"},
	}
	for _, tt := range tests {
		got, err := HealthURL(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("HealthURL(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	if _, err := HealthURL("ftp://example.com"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
