// Package state builds the validated configuration snapshot that every
// derivation step consumes. A State is constructed once per reconciliation
// and never mutated afterwards.
package state

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigurationError is raised when the desired-state document fails
// validation. It is the only recoverable error kind: the reconciler maps it
// to a blocked status instead of failing the pass.
type ConfigurationError struct {
	Fields []string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid configuration"
	}
	return "invalid configuration: " + strings.Join(e.Fields, " ")
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// LookupTableType selects the Postfix lookup table backend format.
type LookupTableType string

const (
	Hash   LookupTableType = "hash"
	Regexp LookupTableType = "regexp"
	CIDR   LookupTableType = "cidr"
)

// ParseLookupTableType validates a lookup table type string.
func ParseLookupTableType(raw string) (LookupTableType, error) {
	switch t := LookupTableType(raw); t {
	case Hash, Regexp, CIDR:
		return t, nil
	}
	return "", fmt.Errorf("unknown lookup table type %q", raw)
}

// AccessMapValue is the constrained value domain of Postfix access maps.
// Values are case-sensitive as written into the map files.
type AccessMapValue string

const (
	AccessOK         AccessMapValue = "OK"
	AccessReject     AccessMapValue = "REJECT"
	AccessRestricted AccessMapValue = "restricted"
)

// ParseAccessMapValue validates an access map value string.
func ParseAccessMapValue(raw string) (AccessMapValue, error) {
	switch v := AccessMapValue(raw); v {
	case AccessOK, AccessReject, AccessRestricted:
		return v, nil
	}
	return "", fmt.Errorf("unknown access map value %q", raw)
}

// TLSSecurityLevel is the Postfix smtp_tls_security_level setting.
type TLSSecurityLevel string

const (
	TLSLevelNone    TLSSecurityLevel = "none"
	TLSLevelMay     TLSSecurityLevel = "may"
	TLSLevelEncrypt TLSSecurityLevel = "encrypt"
	TLSLevelSecure  TLSSecurityLevel = "secure"
)

func parseTLSSecurityLevel(raw string) (TLSSecurityLevel, error) {
	switch l := TLSSecurityLevel(raw); l {
	case TLSLevelNone, TLSLevelMay, TLSLevelEncrypt, TLSLevelSecure:
		return l, nil
	}
	return "", fmt.Errorf("unknown TLS security level %q", raw)
}

// TLSCipherGrade is the OpenSSL cipher grade used for mandatory TLS.
type TLSCipherGrade string

const (
	CipherHigh   TLSCipherGrade = "HIGH"
	CipherMedium TLSCipherGrade = "MEDIUM"
	CipherLow    TLSCipherGrade = "LOW"
	CipherNull   TLSCipherGrade = "NULL"
)

func parseTLSCipherGrade(raw string) (TLSCipherGrade, error) {
	switch g := TLSCipherGrade(raw); g {
	case CipherHigh, CipherMedium, CipherLow, CipherNull:
		return g, nil
	}
	return "", fmt.Errorf("unknown TLS cipher grade %q", raw)
}

// Entry is a single key/value pair of a lookup table. Slices of Entry stand
// in for mappings so that input order survives into the generated artifacts.
type Entry struct {
	Key   string
	Value string
}

// AccessEntry is a lookup table pair whose value is constrained to the
// access map value domain.
type AccessEntry struct {
	Key   string
	Value AccessMapValue
}

// State is the immutable validated snapshot derived from the desired-state
// document. All downstream derivations are pure functions of it.
type State struct {
	AppendXEnvelopeTo               bool
	EnableRateLimits                bool
	EnableRejectUnknownSenderDomain bool
	EnableSMTPAuth                  bool
	EnableSPF                       bool

	AdminEmail      string
	ConnectionLimit int
	Domain          string
	RelayHost       string

	AdditionalSmtpdRecipientRestrictions []string
	AllowedRelayNetworks                 []string
	HeaderChecks                         []string
	RelayDomains                         []string
	RestrictSenderAccess                 []string
	SMTPAuthUsers                        []string
	SMTPHeaderChecks                     []string
	TLSExcludeCiphers                    []string
	TLSProtocols                         []string
	VirtualAliasDomains                  []string

	SPFSkipAddresses []netip.Prefix

	RelayAccessSources []AccessEntry
	RestrictRecipients []AccessEntry
	RestrictSenders    []AccessEntry

	RelayRecipientMaps []Entry
	SenderLoginMaps    []Entry
	TLSPolicyMaps      []Entry
	TransportMaps      []Entry
	VirtualAliasMaps   []Entry

	TLSCiphers           TLSCipherGrade   // empty when unset
	TLSSecurityLevel     TLSSecurityLevel // empty when unset
	VirtualAliasMapsType LookupTableType
}

// fieldErrors accumulates per-field validation failures so that a single
// pass over the document reports every offending field at once.
type fieldErrors struct {
	fields map[string]struct{}
	first  error
}

func (fe *fieldErrors) add(field string, err error) {
	if fe.fields == nil {
		fe.fields = map[string]struct{}{}
	}
	fe.fields[field] = struct{}{}
	if fe.first == nil {
		fe.first = fmt.Errorf("%s: %w", field, err)
	}
}

func (fe *fieldErrors) toError() error {
	if len(fe.fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(fe.fields))
	for f := range fe.fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return &ConfigurationError{Fields: names, Err: fe.first}
}

// FromConfig builds a State from the flat desired-state document. It is
// all-or-nothing: any invalid field aborts construction with a
// *ConfigurationError naming the offending fields.
func FromConfig(config map[string]any) (*State, error) {
	var errs fieldErrors
	st := &State{}

	st.AppendXEnvelopeTo = getBool(config, "append_x_envelope_to", &errs)
	st.EnableRateLimits = getBool(config, "enable_rate_limits", &errs)
	st.EnableRejectUnknownSenderDomain = getBool(config, "enable_reject_unknown_sender_domain", &errs)
	st.EnableSMTPAuth = getBool(config, "enable_smtp_auth", &errs)
	st.EnableSPF = getBool(config, "enable_spf", &errs)

	st.AdminEmail = getNonEmptyString(config, "admin_email", &errs)
	st.ConnectionLimit = getInt(config, "connection_limit", &errs)
	st.Domain = getNonEmptyString(config, "domain", &errs)
	st.RelayHost = getNonEmptyString(config, "relay_host", &errs)

	st.AdditionalSmtpdRecipientRestrictions = getList(config, "additional_smtpd_recipient_restrictions", &errs)
	st.AllowedRelayNetworks = getList(config, "allowed_relay_networks", &errs)
	st.HeaderChecks = getList(config, "header_checks", &errs)
	st.RelayDomains = getList(config, "relay_domains", &errs)
	st.RestrictSenderAccess = getList(config, "restrict_sender_access", &errs)
	st.SMTPAuthUsers = getList(config, "smtp_auth_users", &errs)
	st.SMTPHeaderChecks = getList(config, "smtp_header_checks", &errs)
	st.TLSExcludeCiphers = getList(config, "tls_exclude_ciphers", &errs)
	st.TLSProtocols = getList(config, "tls_protocols", &errs)
	st.VirtualAliasDomains = getList(config, "virtual_alias_domains", &errs)

	st.SPFSkipAddresses = getNetworkList(config, "spf_skip_addresses", &errs)

	st.RelayAccessSources = getAccessMap(config, "relay_access_sources", &errs)
	st.RestrictRecipients = getAccessMap(config, "restrict_recipients", &errs)
	st.RestrictSenders = getAccessMap(config, "restrict_senders", &errs)

	st.RelayRecipientMaps = getMap(config, "relay_recipient_maps", &errs)
	st.SenderLoginMaps = getMap(config, "sender_login_maps", &errs)
	st.TLSPolicyMaps = getMap(config, "tls_policy_maps", &errs)
	st.TransportMaps = getMap(config, "transport_maps", &errs)
	st.VirtualAliasMaps = getMap(config, "virtual_alias_maps", &errs)

	st.VirtualAliasMapsType = Hash
	if raw := getString(config, "virtual_alias_maps_type", &errs); raw != "" {
		t, err := ParseLookupTableType(raw)
		if err != nil {
			errs.add("virtual_alias_maps_type", err)
		} else {
			st.VirtualAliasMapsType = t
		}
	}
	if raw := getString(config, "tls_ciphers", &errs); raw != "" {
		g, err := parseTLSCipherGrade(raw)
		if err != nil {
			errs.add("tls_ciphers", err)
		} else {
			st.TLSCiphers = g
		}
	}
	if raw := getString(config, "tls_security_level", &errs); raw != "" {
		l, err := parseTLSSecurityLevel(raw)
		if err != nil {
			errs.add("tls_security_level", err)
		} else {
			st.TLSSecurityLevel = l
		}
	}

	if err := errs.toError(); err != nil {
		return nil, err
	}
	return st, nil
}

func getString(config map[string]any, key string, errs *fieldErrors) string {
	raw, ok := config[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	default:
		errs.add(key, fmt.Errorf("expected a string, got %T", raw))
		return ""
	}
}

// getNonEmptyString treats a present-but-empty value as a configuration
// error rather than as "unset".
func getNonEmptyString(config map[string]any, key string, errs *fieldErrors) string {
	raw, ok := config[key]
	if !ok || raw == nil {
		return ""
	}
	s := getString(config, key, errs)
	if s == "" {
		errs.add(key, fmt.Errorf("must not be empty"))
	}
	return s
}

func getBool(config map[string]any, key string, errs *fieldErrors) bool {
	raw, ok := config[key]
	if !ok || raw == nil {
		return false
	}
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs.add(key, err)
			return false
		}
		return b
	default:
		errs.add(key, fmt.Errorf("expected a boolean, got %T", raw))
		return false
	}
}

func getInt(config map[string]any, key string, errs *fieldErrors) int {
	raw, ok := config[key]
	if !ok || raw == nil {
		return 0
	}
	switch v := raw.(type) {
	case int:
		return v
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			errs.add(key, err)
			return 0
		}
		return n
	default:
		errs.add(key, fmt.Errorf("expected an integer, got %T", raw))
		return 0
	}
}

func getList(config map[string]any, key string, errs *fieldErrors) []string {
	items, err := parseList(getString(config, key, errs))
	if err != nil {
		errs.add(key, err)
		return nil
	}
	return items
}

func getNetworkList(config map[string]any, key string, errs *fieldErrors) []netip.Prefix {
	items := getList(config, key, errs)
	prefixes := make([]netip.Prefix, 0, len(items))
	for _, item := range items {
		p, err := parseNetwork(item)
		if err != nil {
			errs.add(key, err)
			continue
		}
		prefixes = append(prefixes, p)
	}
	return prefixes
}

func getMap(config map[string]any, key string, errs *fieldErrors) []Entry {
	entries, err := parseMap(getString(config, key, errs))
	if err != nil {
		errs.add(key, err)
		return nil
	}
	return entries
}

func getAccessMap(config map[string]any, key string, errs *fieldErrors) []AccessEntry {
	entries, err := parseMap(getString(config, key, errs))
	if err != nil {
		errs.add(key, err)
		return nil
	}
	access := make([]AccessEntry, 0, len(entries))
	for _, e := range entries {
		v, err := ParseAccessMapValue(e.Value)
		if err != nil {
			errs.add(key, err)
			continue
		}
		access = append(access, AccessEntry{Key: e.Key, Value: v})
	}
	return access
}

// parseList decodes a YAML-encoded sequence of strings. Absent or empty
// input decodes to the empty list, never an error.
func parseList(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var items []string
	if err := yaml.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// parseMap decodes a YAML-encoded mapping into ordered entries. The yaml.v3
// node API is walked directly because decoding into a Go map would lose the
// input order the generated artifacts must reproduce. Duplicate keys
// overwrite in place, last occurrence wins.
func parseMap(raw string) ([]Entry, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping")
	}
	var entries []Entry
	index := map[string]int{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		var value string
		if err := root.Content[i+1].Decode(&value); err != nil {
			return nil, err
		}
		if at, ok := index[key]; ok {
			entries[at].Value = value
			continue
		}
		index[key] = len(entries)
		entries = append(entries, Entry{Key: key, Value: value})
	}
	return entries, nil
}

// parseNetwork parses an IP network literal. A bare address is accepted and
// treated as a single-address network, matching how Postfix reads CIDR
// tables.
func parseNetwork(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		return netip.ParsePrefix(raw)
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
