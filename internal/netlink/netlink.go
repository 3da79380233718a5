// Package netlink brings up the wireless link used for telemetry.
package netlink

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Link is the wireless transport boundary.
type Link interface {
	// Connect starts associating with the configured network. It does not wait
	// for the association to complete; poll Connected for that.
	Connect(ctx context.Context) error

	// Connected reports whether the link is up.
	Connected(ctx context.Context) bool
}

// DefaultCommandTimeout bounds a single nmcli invocation.
const DefaultCommandTimeout = 2 * time.Second

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NMCLILink drives NetworkManager through nmcli.
type NMCLILink struct {
	SSID      string
	Password  string
	Interface string // empty = let NetworkManager choose
	Timeout   time.Duration
	run       Runner
	log       zerolog.Logger
}

// NewNMCLILink creates a link for ssid. With an empty ssid Connect is a no-op
// and only the connectivity state is polled (wired or pre-provisioned networks).
// Every nmcli call is killed after timeout; zero means DefaultCommandTimeout.
func NewNMCLILink(ssid, password, iface string, timeout time.Duration, run Runner, log zerolog.Logger) *NMCLILink {
	if run == nil {
		run = ExecRunner
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &NMCLILink{
		SSID:      ssid,
		Password:  password,
		Interface: iface,
		Timeout:   timeout,
		run:       run,
		log:       log,
	}
}

// Connect asks NetworkManager to join the network without waiting.
func (l *NMCLILink) Connect(ctx context.Context) error {
	if l.SSID == "" {
		return nil
	}

	args := []string{"--wait", "0", "device", "wifi", "connect", l.SSID}
	if l.Password != "" {
		args = append(args, "password", l.Password)
	}
	if l.Interface != "" {
		args = append(args, "ifname", l.Interface)
	}

	out, err := l.nmcli(ctx, args...)
	if err != nil {
		return fmt.Errorf("nmcli connect %q: %w: %s", l.SSID, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Connected reports whether NetworkManager has full connectivity.
func (l *NMCLILink) Connected(ctx context.Context) bool {
	out, err := l.nmcli(ctx, "-t", "-f", "STATE", "general")
	if err != nil {
		l.log.Debug().Err(err).Msg("nmcli state query failed")
		return false
	}
	return strings.TrimSpace(string(out)) == "connected"
}

// nmcli runs one bounded nmcli command. A hung NetworkManager must never
// stall the publish sequence.
func (l *NMCLILink) nmcli(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	return l.run(ctx, "nmcli", args...)
}
