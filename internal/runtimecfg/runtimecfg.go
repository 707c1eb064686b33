// Package runtimecfg resolves the host-supplied port contract at process
// start. The supervisor's bind address and the prober's target are always
// derived from one Resolution so they cannot drift apart.
package runtimecfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvPort is the hosting platform's dynamic port assignment variable.
const EnvPort = "PORT"

// Resolution is the resolved runtime port contract.
type Resolution struct {
	// Port is the authoritative listen port.
	Port int
	// BindAddr is the supervisor's listen address.
	BindAddr string
	// ProbeURL is the readiness prober's target, always on loopback.
	ProbeURL string
	// ExposedPort is the recipe's EXPOSE declaration. Informational: it
	// may differ from Port without affecting routing.
	ExposedPort int
}

// Resolve maps the environment to a Resolution. The getenv seam exists so
// tests do not mutate process state; pass os.Getenv in production.
// An absent or blank PORT falls back to the recipe default; a malformed
// value is an error, never a silent fallback.
func Resolve(getenv func(string) string, defaultPort int) (Resolution, error) {
	if defaultPort <= 0 || defaultPort > 65535 {
		return Resolution{}, fmt.Errorf("recipe default port %d out of range", defaultPort)
	}

	port := defaultPort
	if raw := strings.TrimSpace(getenv(EnvPort)); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return Resolution{}, fmt.Errorf("parse %s=%q: %w", EnvPort, raw, err)
		}
		if p <= 0 || p > 65535 {
			return Resolution{}, fmt.Errorf("%s=%d out of range", EnvPort, p)
		}
		port = p
	}

	return Resolution{
		Port:        port,
		BindAddr:    fmt.Sprintf("0.0.0.0:%d", port),
		ProbeURL:    fmt.Sprintf("http://127.0.0.1:%d/health", port),
		ExposedPort: defaultPort,
	}, nil
}

// FromEnv resolves against the real process environment.
func FromEnv(defaultPort int) (Resolution, error) {
	return Resolve(os.Getenv, defaultPort)
}
