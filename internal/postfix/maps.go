// Package postfix derives Postfix configuration artifacts from the
// validated state: lookup tables, restriction clause lists and the template
// context for main.cf and master.cf. Everything here is pure; writing is
// the reconciler's job.
package postfix

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/postfixrelay/relayconf/internal/fileio"
	"github.com/postfixrelay/relayconf/internal/state"
)

// appendEnvelopeToRule records the original envelope recipient in a header
// before aliasing rewrites it. Constant, independent of state.
const appendEnvelopeToRule = "/^(.*)$/ PREPEND X-Envelope-To: $1"

// Map is a derived lookup table artifact: backend type, source file path
// and the content to write there.
type Map struct {
	Type    state.LookupTableType
	Path    string
	Content string
}

// Source returns the lookup table source string as referenced from main.cf,
// e.g. "hash:/etc/postfix/transport".
func (m Map) Source() string {
	return string(m.Type) + ":" + m.Path
}

// MapNames is the canonical apply order of the generated maps.
var MapNames = []string{
	"relay_access_sources",
	"relay_recipient_maps",
	"restrict_recipients",
	"restrict_senders",
	"sender_access",
	"sender_login_maps",
	"transport_maps",
	"virtual_alias_maps",
	"header_checks",
	"smtp_header_checks",
	"tls_policy_maps",
	"append_envelope_to_header",
}

// BuildMaps derives every recognized lookup table from the state. Each
// category is always emitted, empty-bodied when its field is empty: the
// idempotent writer decides whether disk is touched, not category
// selection.
func BuildMaps(confDir string, st *state.State) map[string]Map {
	newMap := func(t state.LookupTableType, name, body string) Map {
		return Map{
			Type:    t,
			Path:    filepath.Join(confDir, name),
			Content: fmt.Sprintf("%s\n%s\n", fileio.ManagedHeader, body),
		}
	}

	return map[string]Map{
		"relay_access_sources": newMap(
			state.CIDR, "relay_access", joinAccessEntries(st.RelayAccessSources)),
		"relay_recipient_maps": newMap(
			state.Hash, "relay_recipient", joinEntries(st.RelayRecipientMaps)),
		"restrict_recipients": newMap(
			state.Hash, "restricted_recipients", joinAccessEntries(st.RestrictRecipients)),
		"restrict_senders": newMap(
			state.Hash, "restricted_senders", joinAccessEntries(st.RestrictSenders)),
		"sender_access": newMap(
			state.Hash, "access", joinSenderAccess(st.RestrictSenderAccess)),
		"sender_login_maps": newMap(
			state.Hash, "sender_login", joinEntries(st.SenderLoginMaps)),
		"transport_maps": newMap(
			state.Hash, "transport", joinEntries(st.TransportMaps)),
		"virtual_alias_maps": newMap(
			st.VirtualAliasMapsType, "virtual_alias", joinEntries(st.VirtualAliasMaps)),
		"header_checks": newMap(
			state.Regexp, "header_checks", strings.Join(st.HeaderChecks, ";")),
		"smtp_header_checks": newMap(
			state.Regexp, "smtp_header_checks", strings.Join(st.SMTPHeaderChecks, ";")),
		"tls_policy_maps": newMap(
			state.Hash, "tls_policy", joinEntries(st.TLSPolicyMaps)),
		"append_envelope_to_header": newMap(
			state.Regexp, "append_envelope_to_header", appendEnvelopeToRule),
	}
}

func joinEntries(entries []state.Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Key+" "+e.Value)
	}
	return strings.Join(lines, "\n")
}

func joinAccessEntries(entries []state.AccessEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Key+" "+string(e.Value))
	}
	return strings.Join(lines, "\n")
}

// joinSenderAccess serializes the sender access list, each entry
// left-justified to width 35 with an OK marker.
func joinSenderAccess(items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%-35s OK", item))
	}
	return strings.Join(lines, "\n")
}
