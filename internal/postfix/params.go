package postfix

import (
	"strings"

	"github.com/postfixrelay/relayconf/internal/fileio"
	"github.com/postfixrelay/relayconf/internal/state"
)

// TLSPaths carries the TLS material locations rendered into main.cf. The
// certificate sourcing itself is an external concern.
type TLSPaths struct {
	DHParams string
	Cert     string
	Key      string
	CertKey  string
}

// ContextParams carries the host-derived inputs to the template context
// that are not part of the validated state.
type ContextParams struct {
	ConfDir          string
	TLS              TLSPaths
	FQDN             string
	Hostname         string
	Milters          string
	PermitMynetworks bool
}

// ConfigContext builds the rendering context for main.cf and master.cf.
// Key names and join formats are part of the template contract: network
// lists are comma-joined, domain lists space-joined, restriction lists
// comma-space-joined.
func ConfigContext(st *state.State, p ContextParams) map[string]any {
	var tlsCiphers, tlsSecurityLevel string
	if st.TLSCiphers != "" {
		tlsCiphers = string(st.TLSCiphers)
	}
	if st.TLSSecurityLevel != "" {
		tlsSecurityLevel = string(st.TLSSecurityLevel)
	}

	return map[string]any{
		"JUJU_HEADER":          fileio.ManagedHeader,
		"fqdn":                 p.FQDN,
		"hostname":             p.Hostname,
		"connection_limit":     st.ConnectionLimit,
		"enable_rate_limits":   st.EnableRateLimits,
		"enable_smtp_auth":     st.EnableSMTPAuth,
		"enable_spf":           st.EnableSPF,
		"header_checks":        len(st.HeaderChecks) > 0,
		"milter":               p.Milters,
		"mynetworks":           strings.Join(st.AllowedRelayNetworks, ","),
		"relayhost":            st.RelayHost,
		"relay_domains":        strings.Join(st.RelayDomains, " "),
		"relay_recipient_maps": len(st.RelayRecipientMaps) > 0,
		"restrict_recipients":  len(st.RestrictRecipients) > 0,
		"smtp_header_checks":   len(st.SMTPHeaderChecks) > 0,
		"smtpd_recipient_restrictions": strings.Join(
			RecipientRestrictions(p.ConfDir, st), ", "),
		"smtpd_relay_restrictions": strings.Join(
			RelayRestrictions(p.ConfDir, st, p.PermitMynetworks), ", "),
		"smtpd_sender_restrictions": strings.Join(
			SenderRestrictions(p.ConfDir, st), ", "),
		"tls_cert_key":            p.TLS.CertKey,
		"tls_cert":                p.TLS.Cert,
		"tls_key":                 p.TLS.Key,
		"tls_ciphers":             tlsCiphers,
		"tls_dh_params":           p.TLS.DHParams,
		"tls_exclude_ciphers":     strings.Join(st.TLSExcludeCiphers, ", "),
		"tls_protocols":           strings.Join(st.TLSProtocols, " "),
		"tls_security_level":      tlsSecurityLevel,
		"transport_maps":          len(st.TransportMaps) > 0,
		"virtual_alias_domains":   strings.Join(st.VirtualAliasDomains, " "),
		"virtual_alias_maps":      len(st.VirtualAliasMaps) > 0,
		"virtual_alias_maps_type": string(st.VirtualAliasMapsType),
	}
}
