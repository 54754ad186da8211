// Package config holds the process configuration, read from environment
// variables.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// StateSource selects how lookup-table state is constructed.
const (
	SourceConfig = "config" // everything from the desired-state document
	SourceFiles  = "files"  // tables read back from materialized map files
)

// Config holds application configuration.
type Config struct {
	// Desired state
	StatePath   string `env:"STATE_PATH" env-default:"/etc/relayconf/desired.yaml"`
	StateSource string `env:"STATE_SOURCE" env-default:"config"`

	// Postfix paths
	PostfixConfigDir string `env:"POSTFIX_CONFIG_DIR" env-default:"/etc/postfix"`
	AliasesPath      string `env:"ALIASES_PATH" env-default:"/etc/aliases"`
	PolicydSPFPath   string `env:"POLICYD_SPF_PATH" env-default:"/etc/postfix-policyd-spf-python/policyd-spf.conf"`

	// Dovecot paths
	DovecotConfigPath string `env:"DOVECOT_CONFIG_PATH" env-default:"/etc/dovecot/dovecot.conf"`
	DovecotUsersPath  string `env:"DOVECOT_USERS_PATH" env-default:"/etc/dovecot/users"`

	// TLS material (sourcing is external, only the paths are rendered)
	TLSDHParamsPath string `env:"TLS_DH_PARAMS_PATH" env-default:"/etc/ssl/private/dhparams.pem"`
	TLSCertPath     string `env:"TLS_CERT_PATH" env-default:"/etc/ssl/certs/ssl-cert-snakeoil.pem"`
	TLSKeyPath      string `env:"TLS_KEY_PATH" env-default:"/etc/ssl/private/ssl-cert-snakeoil.key"`
	TLSCertKeyPath  string `env:"TLS_CERT_KEY_PATH"`

	// Relay policy
	PermitMynetworks bool   `env:"PERMIT_MYNETWORKS" env-default:"true"`
	Milters          string `env:"MILTERS"`

	// Audit database and status API
	DBPath     string `env:"DB_PATH" env-default:"./data/relayconf.db"`
	ListenAddr string `env:"LISTEN_ADDR" env-default:":8080"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if cfg.StateSource != SourceConfig && cfg.StateSource != SourceFiles {
		return nil, fmt.Errorf("STATE_SOURCE must be %q or %q, got %q",
			SourceConfig, SourceFiles, cfg.StateSource)
	}
	return cfg, nil
}
