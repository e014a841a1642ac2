package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML config file. Every field is optional.
type FileConfig struct {
	SignalURL    string      `yaml:"signal_url"`
	RoomID       string      `yaml:"room"`
	ICEServers   []ICEServer `yaml:"ice_servers"`
	STUNServer   string      `yaml:"stun_server"`
	TURNServer   string      `yaml:"turn_server"`
	TURNUsername string      `yaml:"turn_username"`
	TURNPassword string      `yaml:"turn_password"`
	ForceRelay   bool        `yaml:"force_relay"`
	Bitrate      int         `yaml:"bitrate"`
	Profile      string      `yaml:"latency_profile"`
	DirectoryURL string      `yaml:"directory_url"`
}

// ReadFile loads a YAML config file. Unknown keys are rejected so typos do
// not silently fall back to defaults.
func ReadFile(path string) (*FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg FileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ICEServer mirrors RTCIceServer. URLs accepts a single string or a list.
type ICEServer struct {
	URLs       URLList `json:"urls" yaml:"urls"`
	Username   string  `json:"username,omitempty" yaml:"username,omitempty"`
	Credential string  `json:"credential,omitempty" yaml:"credential,omitempty"`
}

// URLList is a list of ICE URLs that also decodes from a bare string.
type URLList []string

func (l *URLList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = URLList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("urls must be a string or an array of strings")
	}
	*l = many
	return nil
}

func (l *URLList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = URLList{node.Value}
		return nil
	}
	var many []string
	if err := node.Decode(&many); err != nil {
		return err
	}
	*l = many
	return nil
}

// ParseICEServers decodes a JSON array of ICE servers. Comments and
// trailing commas are allowed. Entries without URLs are skipped.
func ParseICEServers(data []byte) ([]ICEServer, error) {
	var raw []ICEServer
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("parse ICE servers: %w", err)
	}
	servers := raw[:0]
	for _, s := range raw {
		if len(s.URLs) > 0 {
			servers = append(servers, s)
		}
	}
	return servers, nil
}
