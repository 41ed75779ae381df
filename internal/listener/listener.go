// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package listener creates the socket the engine accepts controllers on.
package listener

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/tombee/bugjar/internal/config"
)

// New creates a listener from configuration. A unix socket path takes
// priority over TCP.
func New(cfg config.ListenConfig) (net.Listener, error) {
	if cfg.SocketPath != "" {
		return newUnixListener(cfg.SocketPath)
	}
	return newTCPListener(cfg)
}

// newUnixListener creates a unix socket listener readable only by its owner.
func newUnixListener(socketPath string) (net.Listener, error) {
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// A stale socket from a previous session blocks the bind.
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return ln, nil
}

// newTCPListener creates a TCP listener, refusing non-loopback binds unless
// AllowRemote is set.
func newTCPListener(cfg config.ListenConfig) (net.Listener, error) {
	addr := cfg.Addr()
	if !cfg.AllowRemote && isRemoteAddr(addr) {
		return nil, fmt.Errorf(
			"binding to %s exposes the debugged program to the network.\n"+
				"Anyone who can connect can inspect its variables and control execution.\n\n"+
				"If you understand the risks, use: --allow-remote",
			addr,
		)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on TCP: %w", err)
	}
	return ln, nil
}

// isRemoteAddr returns true if the address binds to non-localhost interfaces.
func isRemoteAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		if strings.HasPrefix(addr, ":") {
			host = ""
		}
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		return true
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return false
	}
	return true
}

// ParseAddress parses a BUGJAR_ADDRESS style value into listener config.
// Supported forms are unix:///path/to/socket and tcp://host:port.
func ParseAddress(address string) (*config.ListenConfig, error) {
	if address == "" {
		return nil, nil
	}

	cfg := &config.ListenConfig{}
	switch {
	case strings.HasPrefix(address, "unix://"):
		cfg.SocketPath = strings.TrimPrefix(address, "unix://")
	case strings.HasPrefix(address, "tcp://"):
		host, port, err := net.SplitHostPort(strings.TrimPrefix(address, "tcp://"))
		if err != nil {
			return nil, fmt.Errorf("invalid address %s: %w", address, err)
		}
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
			return nil, fmt.Errorf("invalid port in %s: %w", address, err)
		}
		cfg.Host, cfg.Port = host, p
	default:
		return nil, fmt.Errorf("invalid address format: %s (must start with unix:// or tcp://)", address)
	}
	return cfg, nil
}
