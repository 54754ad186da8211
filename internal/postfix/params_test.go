package postfix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postfixrelay/relayconf/internal/fileio"
	"github.com/postfixrelay/relayconf/internal/state"
)

func TestConfigContext(t *testing.T) {
	st := &state.State{
		AllowedRelayNetworks: []string{"10.0.0.0/8", "192.168.0.0/16"},
		ConnectionLimit:      150,
		EnableSMTPAuth:       true,
		HeaderChecks:         []string{"/^Subject:/ WARN"},
		RelayDomains:         []string{"example.com", "example.org"},
		RelayHost:            "[smtp.example.com]:587",
		TransportMaps:        []state.Entry{{Key: "example.com", Value: "smtp:[mx]"}},
		TLSCiphers:           state.CipherHigh,
		TLSExcludeCiphers:    []string{"aNULL", "eNULL"},
		TLSProtocols:         []string{"!SSLv2", "!SSLv3"},
		TLSSecurityLevel:     state.TLSLevelMay,
		VirtualAliasDomains:  []string{"virtual.example.com"},
		VirtualAliasMapsType: state.Hash,
	}
	p := ContextParams{
		ConfDir: "/etc/postfix",
		TLS: TLSPaths{
			DHParams: "/etc/ssl/private/dhparams.pem",
			Cert:     "/etc/ssl/certs/cert.pem",
			Key:      "/etc/ssl/private/key.pem",
		},
		FQDN:             "mail.example.com",
		Hostname:         "mail",
		Milters:          "inet:localhost:8892",
		PermitMynetworks: true,
	}

	ctx := ConfigContext(st, p)

	assert.Equal(t, fileio.ManagedHeader, ctx["JUJU_HEADER"])
	assert.Equal(t, "mail.example.com", ctx["fqdn"])
	assert.Equal(t, "mail", ctx["hostname"])
	assert.Equal(t, 150, ctx["connection_limit"])
	assert.Equal(t, "10.0.0.0/8,192.168.0.0/16", ctx["mynetworks"])
	assert.Equal(t, "example.com example.org", ctx["relay_domains"])
	assert.Equal(t, "[smtp.example.com]:587", ctx["relayhost"])
	assert.Equal(t, "inet:localhost:8892", ctx["milter"])
	assert.Equal(t, "aNULL, eNULL", ctx["tls_exclude_ciphers"])
	assert.Equal(t, "!SSLv2 !SSLv3", ctx["tls_protocols"])
	assert.Equal(t, "HIGH", ctx["tls_ciphers"])
	assert.Equal(t, "may", ctx["tls_security_level"])
	assert.Equal(t, "virtual.example.com", ctx["virtual_alias_domains"])
	assert.Equal(t, "hash", ctx["virtual_alias_maps_type"])

	assert.Equal(t, true, ctx["enable_smtp_auth"])
	assert.Equal(t, false, ctx["enable_spf"])
	assert.Equal(t, true, ctx["header_checks"])
	assert.Equal(t, false, ctx["smtp_header_checks"])
	assert.Equal(t, true, ctx["transport_maps"])
	assert.Equal(t, false, ctx["virtual_alias_maps"])
	assert.Equal(t, false, ctx["relay_recipient_maps"])
	assert.Equal(t, false, ctx["restrict_recipients"])

	assert.Equal(t,
		"permit_mynetworks, permit_sasl_authenticated, defer_unauth_destination",
		ctx["smtpd_relay_restrictions"])
	assert.Equal(t,
		"check_sender_access hash:/etc/postfix/access",
		ctx["smtpd_sender_restrictions"])
	assert.Equal(t, "", ctx["smtpd_recipient_restrictions"])
}

func TestConfigContextKeySet(t *testing.T) {
	ctx := ConfigContext(&state.State{VirtualAliasMapsType: state.Hash}, ContextParams{})

	want := []string{
		"JUJU_HEADER", "fqdn", "hostname", "connection_limit",
		"enable_rate_limits", "enable_smtp_auth", "enable_spf",
		"header_checks", "milter", "mynetworks", "relayhost",
		"relay_domains", "relay_recipient_maps", "restrict_recipients",
		"smtp_header_checks", "smtpd_recipient_restrictions",
		"smtpd_relay_restrictions", "smtpd_sender_restrictions",
		"tls_cert_key", "tls_cert", "tls_key", "tls_ciphers",
		"tls_dh_params", "tls_exclude_ciphers", "tls_protocols",
		"tls_security_level", "transport_maps", "virtual_alias_domains",
		"virtual_alias_maps", "virtual_alias_maps_type",
	}
	require.Len(t, ctx, len(want))
	for _, key := range want {
		assert.Contains(t, ctx, key)
	}
}

func TestConfigContextEmptyTLSSettings(t *testing.T) {
	ctx := ConfigContext(&state.State{VirtualAliasMapsType: state.Hash}, ContextParams{})

	assert.Equal(t, "", ctx["tls_ciphers"])
	assert.Equal(t, "", ctx["tls_security_level"])
}
