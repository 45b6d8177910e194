// Package config builds tiercache options from the environment. It is the
// bootstrap collaborator: library code never reads the environment itself.
//
// Environment Variables:
//   - SERVICE_SLUG: instance name used to namespace keys (required)
//   - CACHE_NUM_CONN: number of cache nodes; 0 or unset means local-only
//   - CACHE_HOST: host, or comma-separated hosts (default: localhost)
//   - CACHE_PORT: port, or comma-separated ports (default: 6379)
//
// Shorter host/port lists are padded with the defaults, so a three-node
// cluster with CACHE_HOST=a,b and no CACHE_PORT resolves to
// a:6379, b:6379, localhost:6379.
//
// A .env file in the working directory is honored when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/remote"
)

const (
	// DefaultHost pads missing hosts.
	DefaultHost = "localhost"
	// DefaultPort pads missing ports.
	DefaultPort = 6379
)

// ErrMissingSlug is returned when SERVICE_SLUG is unset or empty.
var ErrMissingSlug = errors.New("config: SERVICE_SLUG is required")

// Load reads the environment (and an optional .env file) into tiercache
// Options. CACHE_NUM_CONN of 0 yields a local-only instance; 1 yields a
// single-node connection; more yields a cluster.
func Load() (tiercache.Options, error) {
	_ = godotenv.Load()

	slug := strings.TrimSpace(os.Getenv("SERVICE_SLUG"))
	if slug == "" {
		return tiercache.Options{}, ErrMissingSlug
	}
	opts := tiercache.Options{Name: slug}

	numConn := 0
	if raw := os.Getenv("CACHE_NUM_CONN"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return tiercache.Options{}, fmt.Errorf("config: invalid CACHE_NUM_CONN %q", raw)
		}
		numConn = n
	}
	if numConn == 0 {
		return opts, nil
	}

	eps, err := endpoints(numConn, os.Getenv("CACHE_HOST"), os.Getenv("CACHE_PORT"))
	if err != nil {
		return tiercache.Options{}, err
	}
	if numConn == 1 {
		opts.Single = &eps[0]
	} else {
		opts.Cluster = eps
	}
	return opts, nil
}

// endpoints zips the host and port lists into n endpoints, padding the
// shorter list with defaults.
func endpoints(n int, hostsRaw, portsRaw string) ([]remote.Endpoint, error) {
	hosts := split(hostsRaw)
	ports := split(portsRaw)

	out := make([]remote.Endpoint, n)
	for i := 0; i < n; i++ {
		host := DefaultHost
		if i < len(hosts) {
			host = hosts[i]
		}
		port := DefaultPort
		if i < len(ports) {
			p, err := strconv.Atoi(ports[i])
			if err != nil || p <= 0 {
				return nil, fmt.Errorf("config: invalid CACHE_PORT entry %q", ports[i])
			}
			port = p
		}
		out[i] = remote.Endpoint{Host: host, Port: port}
	}
	return out, nil
}

func split(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
