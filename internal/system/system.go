// Package system is the boundary to the host: service control and the
// external lookup-table compilers. The reconciler only talks to the
// Controller interface so tests can run against a fake.
package system

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Controller abstracts the external side effects of a reconciliation pass.
type Controller interface {
	// IsRunning reports whether the named service is active.
	IsRunning(service string) bool
	// Reload asks the named service to re-read its configuration.
	Reload(service string) error
	// Start starts (and enables) the named service.
	Start(service string) error
	// Stop stops (and disables) the named service.
	Stop(service string) error
	// Postmap compiles a lookup table source, e.g. "hash:/etc/postfix/transport".
	Postmap(source string) error
	// Newaliases rebuilds the alias database.
	Newaliases() error
}

// Exec is the systemd/postfix-backed Controller used in production.
type Exec struct{}

var _ Controller = Exec{}

func (Exec) IsRunning(service string) bool {
	return exec.Command("systemctl", "is-active", "--quiet", service).Run() == nil
}

func (Exec) Reload(service string) error {
	return run("systemctl", "reload", service)
}

func (Exec) Start(service string) error {
	if err := run("systemctl", "enable", service); err != nil {
		return err
	}
	return run("systemctl", "start", service)
}

func (Exec) Stop(service string) error {
	if err := run("systemctl", "disable", service); err != nil {
		return err
	}
	return run("systemctl", "stop", service)
}

func (Exec) Postmap(source string) error {
	return run("postmap", source)
}

func (Exec) Newaliases() error {
	return run("newaliases")
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s",
			name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	log.Debug().Str("cmd", name).Strs("args", args).Msg("command succeeded")
	return nil
}
