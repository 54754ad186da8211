// Package dovecot derives the Dovecot configuration that backs SMTP
// authentication for the relay. Dovecot only serves as the SASL provider
// here; no mail protocols are enabled.
package dovecot

import (
	"strings"

	"github.com/postfixrelay/relayconf/internal/fileio"
	"github.com/postfixrelay/relayconf/internal/render"
)

// ConfigContent renders dovecot.conf. usersPath is the passwd-file the
// SASL passdb reads; enableAuth controls whether listeners beyond the
// postfix auth socket are mentioned.
func ConfigContent(usersPath string, enableAuth bool) (string, error) {
	return render.Template("dovecot.conf.tmpl", map[string]any{
		"JUJU_HEADER":      fileio.ManagedHeader,
		"users_path":       usersPath,
		"enable_smtp_auth": enableAuth,
	})
}

// UsersContent serializes the passwd-file from the configured user entries
// (each already in "user:{SCHEME}hash" form), preserving their order.
func UsersContent(users []string) string {
	return fileio.ManagedHeader + strings.Join(users, "\n") + "\n"
}
