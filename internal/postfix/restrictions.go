package postfix

import (
	"path/filepath"

	"github.com/postfixrelay/relayconf/internal/state"
)

// The three restriction builders return smtpd restriction clauses in
// evaluation order. Order is semantically significant to Postfix; empty
// state yields the minimal list, never an error.

// RelayRestrictions derives smtpd_relay_restrictions. permitMynetworks
// injects permit_mynetworks first; the two deployment flavors diverge on
// this, so it is an explicit choice rather than a constant.
func RelayRestrictions(confDir string, st *state.State, permitMynetworks bool) []string {
	var restrictions []string
	if permitMynetworks {
		restrictions = append(restrictions, "permit_mynetworks")
	}
	if len(st.RelayAccessSources) > 0 {
		restrictions = append(restrictions,
			"check_client_access cidr:"+filepath.Join(confDir, "relay_access"))
	}
	if st.EnableSMTPAuth {
		if len(st.SenderLoginMaps) > 0 {
			restrictions = append(restrictions, "reject_known_sender_login_mismatch")
		}
		if len(st.RestrictSenders) > 0 {
			restrictions = append(restrictions, "reject_sender_login_mismatch")
		}
		restrictions = append(restrictions, "permit_sasl_authenticated")
	}
	return append(restrictions, "defer_unauth_destination")
}

// SenderRestrictions derives smtpd_sender_restrictions.
func SenderRestrictions(confDir string, st *state.State) []string {
	var restrictions []string
	if st.EnableRejectUnknownSenderDomain {
		restrictions = append(restrictions, "reject_unknown_sender_domain")
	}
	restrictions = append(restrictions,
		"check_sender_access hash:"+filepath.Join(confDir, "access"))
	if len(st.RestrictSenderAccess) > 0 {
		restrictions = append(restrictions, "reject")
	}
	return restrictions
}

// RecipientRestrictions derives smtpd_recipient_restrictions. Additional
// operator-supplied clauses are appended verbatim, in given order.
func RecipientRestrictions(confDir string, st *state.State) []string {
	var restrictions []string
	if st.AppendXEnvelopeTo {
		restrictions = append(restrictions,
			"check_recipient_access regexp:"+filepath.Join(confDir, "append_envelope_to_header"))
	}
	if len(st.RestrictSenders) > 0 {
		restrictions = append(restrictions,
			"check_sender_access hash:"+filepath.Join(confDir, "restricted_senders"))
	}
	restrictions = append(restrictions, st.AdditionalSmtpdRecipientRestrictions...)
	if st.EnableSPF {
		restrictions = append(restrictions, "check_policy_service unix:private/policyd-spf")
	}
	return restrictions
}
