// Package validate holds host/port/TLS validation and the Sparkplug
// timestamp normalisation rules.
package validate

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Host checks that s is a non-empty hostname or IP literal.
func Host(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("host must not be empty")
	}
	return nil
}

// Port checks that s parses as a TCP port in the valid range.
func Port(s string) error {
	p, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port %q is not a number: %w", s, err)
	}
	if p < 1 || p > 65535 {
		return fmt.Errorf("port %d out of range [1,65535]", p)
	}
	return nil
}

// BrokerURL checks that a broker URL has a recognised MQTT scheme and a
// resolvable host:port authority.
func BrokerURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("broker url must not be empty")
	}
	schemeIdx := strings.Index(raw, "://")
	if schemeIdx < 0 {
		return fmt.Errorf("broker url %q missing scheme", raw)
	}
	scheme := raw[:schemeIdx]
	switch scheme {
	case "tcp", "ssl", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("broker url %q has unsupported scheme %q", raw, scheme)
	}
	authority := raw[schemeIdx+3:]
	host, port, err := net.SplitHostPort(authority)
	if err != nil {
		return fmt.Errorf("broker url %q: %w", raw, err)
	}
	if err := Host(host); err != nil {
		return err
	}
	return Port(port)
}

// PEMFile checks that path exists and contains what looks like a PEM block.
// Used to validate --db-ssl-ca / CA certificate paths before a connection
// attempt that would otherwise fail deep inside the TLS handshake.
func PEMFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading PEM file %q: %w", path, err)
	}
	if !strings.Contains(string(data), "-----BEGIN") {
		return fmt.Errorf("%q does not look like a PEM file", path)
	}
	return nil
}
