// Package reconciler sequences one reconciliation pass: validate the
// desired state, derive artifacts, write them idempotently and signal the
// external collaborators. Validation failure is the only recoverable
// outcome; everything else fails the pass.
package reconciler

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/postfixrelay/relayconf/internal/aliases"
	"github.com/postfixrelay/relayconf/internal/audit"
	"github.com/postfixrelay/relayconf/internal/config"
	"github.com/postfixrelay/relayconf/internal/dovecot"
	"github.com/postfixrelay/relayconf/internal/fileio"
	"github.com/postfixrelay/relayconf/internal/postfix"
	"github.com/postfixrelay/relayconf/internal/render"
	"github.com/postfixrelay/relayconf/internal/state"
	"github.com/postfixrelay/relayconf/internal/system"
)

const (
	// StatusActive is the terminal state of a successful pass.
	StatusActive = "active"
	// StatusBlocked is the terminal state after a validation failure.
	StatusBlocked = "blocked"

	postfixService = "postfix"
	dovecotService = "dovecot"
	dovecotGroup   = "dovecot"
)

// Result is the terminal outcome of one pass.
type Result struct {
	Status       string
	Message      string
	ChangedFiles int
}

// Reconciler drives reconciliation passes.
type Reconciler struct {
	cfg   *config.Config
	ctl   system.Controller
	store *audit.Store // optional
}

// New returns a Reconciler. store may be nil to skip audit recording.
func New(cfg *config.Config, ctl system.Controller, store *audit.Store) *Reconciler {
	return &Reconciler{cfg: cfg, ctl: ctl, store: store}
}

// Run executes a single pass over the raw desired-state document and
// records the terminal state. Non-validation errors propagate.
func (r *Reconciler) Run(rawConfig map[string]any) (*Result, error) {
	started := time.Now()
	result, err := r.reconcile(rawConfig)
	if err != nil {
		return nil, err
	}
	if r.store != nil {
		if err := r.store.RecordRun(audit.Run{
			StartedAt:    started,
			FinishedAt:   time.Now(),
			Status:       result.Status,
			Message:      result.Message,
			ChangedFiles: result.ChangedFiles,
		}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *Reconciler) reconcile(rawConfig map[string]any) (*Result, error) {
	log.Info().Msg("Reconciling SMTP relay")

	st, err := r.buildState(rawConfig)
	if err != nil {
		var cfgErr *state.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Error().Err(err).Msg("Error validating the configuration")
			return &Result{Status: StatusBlocked, Message: "Invalid config"}, nil
		}
		return nil, err
	}

	changed := 0
	track := func(wrote bool, err error) error {
		if wrote {
			changed++
		}
		return err
	}

	if err := r.configureAuth(st, track); err != nil {
		return nil, err
	}
	if err := r.configureRelay(st, track); err != nil {
		return nil, err
	}
	if err := r.configurePolicydSPF(st, track); err != nil {
		return nil, err
	}

	log.Info().Int("changed_files", changed).Msg("Reconciliation complete")
	return &Result{Status: StatusActive, ChangedFiles: changed}, nil
}

func (r *Reconciler) buildState(rawConfig map[string]any) (*state.State, error) {
	if r.cfg.StateSource == config.SourceFiles {
		return state.FromConfigAndMapFiles(rawConfig, r.cfg.PostfixConfigDir)
	}
	return state.FromConfig(rawConfig)
}

// configureAuth keeps Dovecot, the SASL provider, in line with the state.
func (r *Reconciler) configureAuth(st *state.State, track func(bool, error) error) error {
	log.Info().Msg("Setting up SMTP authentication (dovecot)")

	contents, err := dovecot.ConfigContent(r.cfg.DovecotUsersPath, st.EnableSMTPAuth)
	if err != nil {
		return err
	}
	if err := track(fileio.Write(contents, r.cfg.DovecotConfigPath)); err != nil {
		return err
	}
	if len(st.SMTPAuthUsers) > 0 {
		if err := track(fileio.Write(
			dovecot.UsersContent(st.SMTPAuthUsers), r.cfg.DovecotUsersPath,
			fileio.WithPerms(0o640), fileio.WithGroup(dovecotGroup),
		)); err != nil {
			return err
		}
	}

	if !st.EnableSMTPAuth {
		log.Info().Msg("SMTP authentication not enabled, stopping dovecot")
		return r.ctl.Stop(dovecotService)
	}
	if !r.ctl.IsRunning(dovecotService) {
		return r.ctl.Start(dovecotService)
	}
	return r.ctl.Reload(dovecotService)
}

// configureRelay renders and applies the Postfix configuration: main.cf,
// master.cf, every lookup table, and the alias file.
func (r *Reconciler) configureRelay(st *state.State, track func(bool, error) error) error {
	log.Info().Msg("Setting up Postfix relay")

	hostname, err := os.Hostname()
	if err != nil {
		return err
	}
	fqdn := hostname
	if st.Domain != "" {
		fqdn = hostname + "." + st.Domain
	}

	context := postfix.ConfigContext(st, postfix.ContextParams{
		ConfDir: r.cfg.PostfixConfigDir,
		TLS: postfix.TLSPaths{
			DHParams: r.cfg.TLSDHParamsPath,
			Cert:     r.cfg.TLSCertPath,
			Key:      r.cfg.TLSKeyPath,
			CertKey:  r.cfg.TLSCertKeyPath,
		},
		FQDN:             fqdn,
		Hostname:         hostname,
		Milters:          r.cfg.Milters,
		PermitMynetworks: r.cfg.PermitMynetworks,
	})

	for _, file := range []struct{ template, name string }{
		{"main.cf.tmpl", "main.cf"},
		{"master.cf.tmpl", "master.cf"},
	} {
		contents, err := render.Template(file.template, context)
		if err != nil {
			return err
		}
		dest := filepath.Join(r.cfg.PostfixConfigDir, file.name)
		if err := track(fileio.Write(contents, dest)); err != nil {
			return err
		}
	}

	log.Info().Msg("Applying postfix maps")
	maps := postfix.BuildMaps(r.cfg.PostfixConfigDir, st)
	for _, name := range postfix.MapNames {
		m := maps[name]
		if err := track(fileio.Write(m.Content, m.Path)); err != nil {
			return err
		}
	}
	for _, name := range postfix.MapNames {
		if err := r.ctl.Postmap(maps[name].Source()); err != nil {
			return err
		}
	}

	log.Info().Msg("Updating aliases")
	if err := track(aliases.Update(r.cfg.AliasesPath, st.AdminEmail)); err != nil {
		return err
	}
	if err := r.ctl.Newaliases(); err != nil {
		return err
	}

	// Reload is attempted regardless of whether anything changed.
	if !r.ctl.IsRunning(postfixService) {
		return r.ctl.Start(postfixService)
	}
	return r.ctl.Reload(postfixService)
}

func (r *Reconciler) configurePolicydSPF(st *state.State, track func(bool, error) error) error {
	if !st.EnableSPF {
		log.Info().Msg("SPF policy server (policyd-spf) disabled")
		return nil
	}
	log.Info().Msg("Setting up SPF policy server (policyd-spf)")

	contents, err := postfix.PolicydSPFContent(st.SPFSkipAddresses)
	if err != nil {
		return err
	}
	return track(fileio.Write(contents, r.cfg.PolicydSPFPath))
}
