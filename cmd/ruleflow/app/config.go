package app

import (
	"flag"
	"fmt"
	"time"
)

// ConfigWarning is a non-fatal configuration problem surfaced at startup,
// in the teacher's CheckConfig idiom.
type ConfigWarning struct {
	Message string
	Explain string
}

// Config is the root config for the ruleflow service.
type Config struct {
	HTTPListenAddr string        `yaml:"http_listen_addr"`
	LogLevel       string        `yaml:"log_level"`
	ShutdownDelay  time.Duration `yaml:"shutdown_delay,omitempty"`

	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds the sample store / rule store connection settings.
type PostgresConfig struct {
	DSN            string        `yaml:"dsn"`
	MaxConnections int           `yaml:"max_connections,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
}

func NewDefaultConfig() *Config {
	c := &Config{}
	fs := flag.NewFlagSet("", flag.PanicOnError)
	c.RegisterFlagsAndApplyDefaults("", fs)
	return c
}

// RegisterFlagsAndApplyDefaults registers flags under prefix, applying
// defaults first so an unset flag still leaves the struct usable.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	c.HTTPListenAddr = ":3200"
	c.LogLevel = "info"
	c.Postgres.MaxConnections = 10
	c.Postgres.ConnectTimeout = 5 * time.Second

	f.StringVar(&c.HTTPListenAddr, prefix+"http-listen-address", c.HTTPListenAddr, "HTTP server listen address.")
	f.StringVar(&c.LogLevel, prefix+"log.level", c.LogLevel, "Log level (debug, info, warn, error).")
	f.DurationVar(&c.ShutdownDelay, prefix+"shutdown-delay", c.ShutdownDelay, "How long to wait between SIGTERM and shutdown.")

	f.StringVar(&c.Postgres.DSN, prefix+"postgres.dsn", "", "Postgres connection string for the sample and rule stores.")
	f.IntVar(&c.Postgres.MaxConnections, prefix+"postgres.max-connections", c.Postgres.MaxConnections, "Maximum pooled Postgres connections.")
	f.DurationVar(&c.Postgres.ConnectTimeout, prefix+"postgres.connect-timeout", c.Postgres.ConnectTimeout, "Timeout for establishing the Postgres pool.")
}

// CheckConfig returns non-fatal configuration warnings, in the teacher's
// style of surfacing these after the logger is initialized rather than
// failing startup outright.
func (c *Config) CheckConfig() []ConfigWarning {
	var warnings []ConfigWarning

	if c.Postgres.DSN == "" {
		warnings = append(warnings, ConfigWarning{
			Message: "postgres.dsn is empty",
			Explain: "the service will fail on first request; set -postgres.dsn or postgres.dsn in the config file",
		})
	}
	if c.Postgres.MaxConnections < 1 {
		warnings = append(warnings, ConfigWarning{
			Message: "postgres.max-connections is less than 1",
			Explain: fmt.Sprintf("got %d, the pool will refuse to open any connection", c.Postgres.MaxConnections),
		})
	}

	return warnings
}
