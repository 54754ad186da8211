package reconciler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postfixrelay/relayconf/internal/config"
	"github.com/postfixrelay/relayconf/internal/fileio"
	"github.com/postfixrelay/relayconf/internal/postfix"
)

// fakeController records every service and map operation.
type fakeController struct {
	running    map[string]bool
	reloaded   []string
	started    []string
	stopped    []string
	postmapped []string
	newaliases int
}

func newFakeController(running ...string) *fakeController {
	f := &fakeController{running: map[string]bool{}}
	for _, svc := range running {
		f.running[svc] = true
	}
	return f
}

func (f *fakeController) IsRunning(service string) bool { return f.running[service] }

func (f *fakeController) Reload(service string) error {
	f.reloaded = append(f.reloaded, service)
	return nil
}

func (f *fakeController) Start(service string) error {
	f.started = append(f.started, service)
	f.running[service] = true
	return nil
}

func (f *fakeController) Stop(service string) error {
	f.stopped = append(f.stopped, service)
	f.running[service] = false
	return nil
}

func (f *fakeController) Postmap(source string) error {
	f.postmapped = append(f.postmapped, source)
	return nil
}

func (f *fakeController) Newaliases() error {
	f.newaliases++
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	postfixDir := filepath.Join(dir, "postfix")
	require.NoError(t, os.MkdirAll(postfixDir, 0o755))
	return &config.Config{
		StateSource:       config.SourceConfig,
		PostfixConfigDir:  postfixDir,
		AliasesPath:       filepath.Join(dir, "aliases"),
		PolicydSPFPath:    filepath.Join(dir, "policyd-spf.conf"),
		DovecotConfigPath: filepath.Join(dir, "dovecot.conf"),
		DovecotUsersPath:  filepath.Join(dir, "users"),
		PermitMynetworks:  true,
	}
}

func TestRunBlockedOnInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	ctl := newFakeController()

	result, err := New(cfg, ctl, nil).Run(map[string]any{
		"restrict_senders": "sender: invalid_value",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusBlocked, result.Status)
	assert.Equal(t, "Invalid config", result.Message)
	assert.Zero(t, result.ChangedFiles)

	// Nothing was written or signalled.
	assert.Empty(t, ctl.postmapped)
	assert.Zero(t, ctl.newaliases)
	_, err = os.Stat(filepath.Join(cfg.PostfixConfigDir, "main.cf"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunActiveWritesEverything(t *testing.T) {
	cfg := testConfig(t)
	ctl := newFakeController()

	result, err := New(cfg, ctl, nil).Run(map[string]any{
		"admin_email": "admin@example.com",
		"transport_maps": `
            example.com: 'smtp:[mx.example.com]'
        `,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, result.Status)
	assert.Empty(t, result.Message)

	for _, name := range []string{"main.cf", "master.cf", "transport", "access"} {
		data, err := os.ReadFile(filepath.Join(cfg.PostfixConfigDir, name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}

	data, err := os.ReadFile(filepath.Join(cfg.PostfixConfigDir, "transport"))
	require.NoError(t, err)
	assert.Equal(t,
		fileio.ManagedHeader+"\nexample.com smtp:[mx.example.com]\n",
		string(data))

	aliases, err := os.ReadFile(cfg.AliasesPath)
	require.NoError(t, err)
	assert.Contains(t, string(aliases), "root:          admin@example.com")
	assert.Equal(t, 1, ctl.newaliases)

	// main.cf + master.cf + 12 maps + dovecot.conf + aliases.
	assert.Equal(t, 2+len(postfix.MapNames)+2, result.ChangedFiles)
}

func TestRunPostmapsEveryTable(t *testing.T) {
	cfg := testConfig(t)
	ctl := newFakeController()

	_, err := New(cfg, ctl, nil).Run(map[string]any{})
	require.NoError(t, err)

	require.Len(t, ctl.postmapped, len(postfix.MapNames))
	assert.Contains(t, ctl.postmapped, "hash:"+filepath.Join(cfg.PostfixConfigDir, "transport"))
	assert.Contains(t, ctl.postmapped, "cidr:"+filepath.Join(cfg.PostfixConfigDir, "relay_access"))
	assert.Contains(t, ctl.postmapped, "regexp:"+filepath.Join(cfg.PostfixConfigDir, "header_checks"))
}

func TestRunStartsStoppedPostfix(t *testing.T) {
	cfg := testConfig(t)
	ctl := newFakeController()

	_, err := New(cfg, ctl, nil).Run(map[string]any{})
	require.NoError(t, err)

	assert.Contains(t, ctl.started, "postfix")
	assert.NotContains(t, ctl.reloaded, "postfix")
}

func TestRunReloadsRunningPostfix(t *testing.T) {
	cfg := testConfig(t)
	ctl := newFakeController("postfix")

	_, err := New(cfg, ctl, nil).Run(map[string]any{})
	require.NoError(t, err)

	assert.Contains(t, ctl.reloaded, "postfix")
	assert.NotContains(t, ctl.started, "postfix")
}

func TestRunStopsDovecotWithoutAuth(t *testing.T) {
	cfg := testConfig(t)
	ctl := newFakeController("dovecot")

	_, err := New(cfg, ctl, nil).Run(map[string]any{})
	require.NoError(t, err)

	assert.Contains(t, ctl.stopped, "dovecot")
}

func TestRunStartsDovecotWithAuth(t *testing.T) {
	cfg := testConfig(t)
	ctl := newFakeController()

	_, err := New(cfg, ctl, nil).Run(map[string]any{"enable_smtp_auth": true})
	require.NoError(t, err)

	assert.Contains(t, ctl.started, "dovecot")
	assert.Empty(t, ctl.stopped)
}

func TestRunWritesPolicydSPFOnlyWhenEnabled(t *testing.T) {
	cfg := testConfig(t)

	_, err := New(cfg, newFakeController(), nil).Run(map[string]any{})
	require.NoError(t, err)
	_, err = os.Stat(cfg.PolicydSPFPath)
	assert.True(t, os.IsNotExist(err))

	_, err = New(cfg, newFakeController(), nil).Run(map[string]any{
		"enable_spf":         true,
		"spf_skip_addresses": "- 10.0.114.0/24",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.PolicydSPFPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "10.0.114.0/24")
}

func TestRunIdempotent(t *testing.T) {
	cfg := testConfig(t)
	rawConfig := map[string]any{"relay_host": "[smtp.example.com]:587"}

	first, err := New(cfg, newFakeController(), nil).Run(rawConfig)
	require.NoError(t, err)
	require.Equal(t, StatusActive, first.Status)
	require.NotZero(t, first.ChangedFiles)

	second, err := New(cfg, newFakeController(), nil).Run(rawConfig)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, second.Status)
	assert.Zero(t, second.ChangedFiles)
}
