package config

import "time"

// DefaultTimeout bounds capability operations when a server definition does
// not set its own.
const DefaultTimeout = 30 * time.Second

const (
	// DefaultGatewayHost is where the gateway binds when unconfigured.
	DefaultGatewayHost = "localhost"
	// DefaultGatewayPort is the gateway's default port.
	DefaultGatewayPort = 8090
)

// GetDefaultConfig returns the built-in configuration: no servers, no
// prompts, gateway on its default endpoint.
func GetDefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			Host: DefaultGatewayHost,
			Port: DefaultGatewayPort,
		},
	}
}
