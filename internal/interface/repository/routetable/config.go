package routetable

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/StartiOne/upstream-proxy/internal/dial"
	"github.com/StartiOne/upstream-proxy/internal/domain"
)

// fileConfig is the on-disk shape of the route configuration object: a
// sequence of route entries, each binding one or more hostnames to a
// single endpoint. Unknown fields are ignored by yaml.v3's default
// decoding behavior.
type fileConfig struct {
	Routes []routeEntryYAML `yaml:"routes"`
}

type routeEntryYAML struct {
	Hostnames []string     `yaml:"hostnames"`
	Endpoint  endpointYAML `yaml:"endpoint"`
}

type endpointYAML struct {
	TCP *tcpYAML `yaml:"tcp,omitempty"`
	IPC string   `yaml:"ipc,omitempty"`
}

type tcpYAML struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return createDefaultConfig(path)
		}
		return nil, err
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*fileConfig, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse route config: %w", err)
	}
	return &cfg, nil
}

func createDefaultConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{Routes: []routeEntryYAML{}}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create default route config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write default route config: %w", err)
	}
	return cfg, nil
}

// toEntries converts the on-disk shape into domain.RouteEntry values,
// normalizing any IPC path at build time so the dial path stays
// OS-agnostic.
func (c *fileConfig) toEntries() []domain.RouteEntry {
	entries := make([]domain.RouteEntry, 0, len(c.Routes))
	for _, r := range c.Routes {
		var ep domain.Endpoint
		switch {
		case r.Endpoint.IPC != "":
			ep = domain.Endpoint{Kind: domain.EndpointIPC, Path: dial.NormalizeIPCPath(r.Endpoint.IPC)}
		case r.Endpoint.TCP != nil:
			ep = domain.Endpoint{Kind: domain.EndpointTCP, Host: r.Endpoint.TCP.Host, Port: r.Endpoint.TCP.Port}
		default:
			continue
		}
		entries = append(entries, domain.RouteEntry{Hostnames: r.Hostnames, Endpoint: ep})
	}
	return entries
}
