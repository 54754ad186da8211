package postfix

import (
	"net/netip"
	"strings"

	"github.com/postfixrelay/relayconf/internal/fileio"
	"github.com/postfixrelay/relayconf/internal/render"
)

// PolicydSPFContent renders the policyd-spf configuration from the
// networks excluded from SPF checking, comma-joined.
func PolicydSPFContent(skipAddresses []netip.Prefix) (string, error) {
	networks := make([]string, 0, len(skipAddresses))
	for _, addr := range skipAddresses {
		networks = append(networks, addr.String())
	}
	return render.Template("policyd_spf.conf.tmpl", map[string]any{
		"JUJU_HEADER":    fileio.ManagedHeader,
		"skip_addresses": strings.Join(networks, ","),
	})
}
