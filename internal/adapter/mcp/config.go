package mcp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Transport identifiers accepted in provider configuration.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "http"
	TransportWebSocket      = "websocket"
)

// ServerConfig configures one tool provider connection.
type ServerConfig struct {
	Name      string            `yaml:"-"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Disabled  bool              `yaml:"disabled,omitempty"`

	// CallsPerMinute throttles tool invocations against this provider.
	// Zero means unlimited.
	CallsPerMinute int `yaml:"calls_per_minute,omitempty"`
}

// configDoc is the provider configuration document: a mapping of provider
// name to server config under a "servers" key. YAML is a superset of JSON,
// so mcp.json-style documents parse too.
type configDoc struct {
	Servers yaml.Node `yaml:"servers"`
}

// LoadConfig reads the provider configuration document at path.
// Connection order must follow document order, so the servers mapping is
// decoded through yaml.Node rather than a Go map.
// A missing file is not an error; it yields an empty list.
func LoadConfig(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read provider config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) ([]ServerConfig, error) {
	var doc configDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse provider config: %w", err)
	}

	if doc.Servers.Kind == 0 || doc.Servers.Kind == yaml.AliasNode {
		return nil, nil
	}
	if doc.Servers.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("provider config: servers must be a mapping")
	}

	// Mapping node content alternates key, value.
	var servers []ServerConfig
	for i := 0; i+1 < len(doc.Servers.Content); i += 2 {
		keyNode := doc.Servers.Content[i]
		valNode := doc.Servers.Content[i+1]

		var sc ServerConfig
		if err := valNode.Decode(&sc); err != nil {
			return nil, fmt.Errorf("provider config %q: %w", keyNode.Value, err)
		}
		sc.Name = keyNode.Value
		if sc.Transport == "" {
			sc.Transport = TransportStdio
		}
		servers = append(servers, sc)
	}
	return servers, nil
}

// validate checks the transport-specific required fields.
func (c ServerConfig) validate() error {
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("server %q: command is required for stdio transport", c.Name)
		}
	case TransportSSE, TransportStreamableHTTP, TransportWebSocket, "ws", "streamable-http":
		if c.URL == "" {
			return fmt.Errorf("server %q: url is required for %s transport", c.Name, c.Transport)
		}
	default:
		return fmt.Errorf("server %q: unsupported transport %q (want: stdio, sse, http, websocket)", c.Name, c.Transport)
	}
	return nil
}
