package state

import (
	"fmt"
	"os"
	"strings"
)

// The read-back strategy reconstructs map-valued state from the lookup
// table source files previously written by this tool. It is used by the
// day-2 posture that manages a live relay: the files themselves are the
// source of truth for table content, the desired-state document only
// carries the scalar knobs.
//
// Files are assumed well-formed since this tool wrote them. Banner comment
// lines and blank lines are skipped; anything else that does not split into
// key and value is ignored rather than failing the pass.

const (
	relayAccessFile          = "relay_access"
	relayRecipientFile       = "relay_recipient"
	restrictedRecipientsFile = "restricted_recipients"
	restrictedSendersFile    = "restricted_senders"
	senderAccessFile         = "access"
	senderLoginFile          = "sender_login"
	transportFile            = "transport"
	virtualAliasFile         = "virtual_alias"
)

// FromConfigAndMapFiles builds a State from the desired-state document,
// then replaces the lookup-table fields with the content of the
// materialized map source files under confDir.
func FromConfigAndMapFiles(config map[string]any, confDir string) (*State, error) {
	st, err := FromConfig(config)
	if err != nil {
		return nil, err
	}

	if st.RelayAccessSources, err = fetchAccessMap(confDir + "/" + relayAccessFile); err != nil {
		return nil, err
	}
	if st.RelayRecipientMaps, err = fetchMap(confDir + "/" + relayRecipientFile); err != nil {
		return nil, err
	}
	if st.RestrictRecipients, err = fetchAccessMap(confDir + "/" + restrictedRecipientsFile); err != nil {
		return nil, err
	}
	if st.RestrictSenders, err = fetchAccessMap(confDir + "/" + restrictedSendersFile); err != nil {
		return nil, err
	}
	if st.RestrictSenderAccess, err = fetchSenderAccess(confDir + "/" + senderAccessFile); err != nil {
		return nil, err
	}
	if st.SenderLoginMaps, err = fetchMap(confDir + "/" + senderLoginFile); err != nil {
		return nil, err
	}
	if st.TransportMaps, err = fetchMap(confDir + "/" + transportFile); err != nil {
		return nil, err
	}
	if st.VirtualAliasMaps, err = fetchMap(confDir + "/" + virtualAliasFile); err != nil {
		return nil, err
	}
	return st, nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func fetchMap(path string) ([]Entry, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, line := range lines {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		entries = append(entries, Entry{Key: key, Value: strings.TrimSpace(value)})
	}
	return entries, nil
}

func fetchAccessMap(path string) ([]AccessEntry, error) {
	entries, err := fetchMap(path)
	if err != nil {
		return nil, err
	}
	access := make([]AccessEntry, 0, len(entries))
	for _, e := range entries {
		v, err := ParseAccessMapValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		access = append(access, AccessEntry{Key: e.Key, Value: v})
	}
	return access, nil
}

// fetchSenderAccess reads the sender access list, stripping the " OK"
// marker and padding the map builder appends to each entry.
func fetchSenderAccess(path string) ([]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	var items []string
	for _, line := range lines {
		item := strings.TrimSpace(strings.Replace(line, " OK", "", 1))
		if item != "" {
			items = append(items, item)
		}
	}
	return items, nil
}
