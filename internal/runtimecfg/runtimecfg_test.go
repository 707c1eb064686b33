package runtimecfg

import (
	"fmt"
	"testing"
)

func fakeEnv(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestResolveWithPlatformPort(t *testing.T) {
	t.Parallel()

	res, err := Resolve(fakeEnv(map[string]string{"PORT": "8080"}), 5000)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.BindAddr != "0.0.0.0:8080" {
		t.Fatalf("BindAddr = %s, want 0.0.0.0:8080", res.BindAddr)
	}
	if res.ProbeURL != "http://127.0.0.1:8080/health" {
		t.Fatalf("ProbeURL = %s, want http://127.0.0.1:8080/health", res.ProbeURL)
	}
	// Exposed-port metadata stays on the recipe default; it is
	// informational and may legitimately differ from the bind port.
	if res.ExposedPort != 5000 {
		t.Fatalf("ExposedPort = %d, want 5000", res.ExposedPort)
	}
}

func TestResolveFallsBackToRecipeDefault(t *testing.T) {
	t.Parallel()

	for _, def := range []int{5000, 10000} {
		res, err := Resolve(fakeEnv(nil), def)
		if err != nil {
			t.Fatalf("Resolve(default=%d) error = %v", def, err)
		}
		if res.Port != def {
			t.Fatalf("Port = %d, want %d", res.Port, def)
		}
	}

	res, err := Resolve(fakeEnv(map[string]string{"PORT": "  "}), 5000)
	if err != nil {
		t.Fatalf("Resolve(blank) error = %v", err)
	}
	if res.BindAddr != "0.0.0.0:5000" {
		t.Fatalf("BindAddr = %s, want 0.0.0.0:5000", res.BindAddr)
	}
}

func TestResolveRejectsMalformedPort(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"abc", "-1", "0", "70000", "80 80"} {
		if _, err := Resolve(fakeEnv(map[string]string{"PORT": raw}), 5000); err == nil {
			t.Fatalf("Resolve(PORT=%q): expected error", raw)
		}
	}
}

func TestResolveRejectsBadDefault(t *testing.T) {
	t.Parallel()

	if _, err := Resolve(fakeEnv(nil), 0); err == nil {
		t.Fatal("expected error for default port 0")
	}
}

func TestBindAndProbeShareOnePort(t *testing.T) {
	t.Parallel()

	for _, env := range []map[string]string{nil, {"PORT": "9191"}} {
		res, err := Resolve(fakeEnv(env), 10000)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		var bindPort, probePort int
		if _, err := fmt.Sscanf(res.BindAddr, "0.0.0.0:%d", &bindPort); err != nil {
			t.Fatalf("parse bind addr %q: %v", res.BindAddr, err)
		}
		if _, err := fmt.Sscanf(res.ProbeURL, "http://127.0.0.1:%d/health", &probePort); err != nil {
			t.Fatalf("parse probe url %q: %v", res.ProbeURL, err)
		}
		if bindPort != probePort || bindPort != res.Port {
			t.Fatalf("bind %d, probe %d, port %d must all match", bindPort, probePort, res.Port)
		}
	}
}
