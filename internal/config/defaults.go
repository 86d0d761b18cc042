package config

import "time"

// Default configuration values.
const (
	DefaultConfigPath        = "/etc/athena-dhclient/config.toml"
	DefaultInterface         = "eth0"
	DefaultLogLevel          = "info"
	DefaultLeaseDB           = "/var/lib/athena-dhclient/leases.db"
	DefaultPIDFile           = "/run/athena-dhclient.pid"
	DefaultMaxMessageSize    = 1500
	DefaultInitDelayMin      = 1 * time.Second
	DefaultInitDelayMax      = 10 * time.Second
	DefaultOfferWindow       = 3 * time.Second
	DefaultOfferSelection    = "longest_lease"
	DefaultRetransmitBase    = 4 * time.Second
	DefaultRetransmitMax     = 64 * time.Second
	DefaultRetransmitJitter  = 1 * time.Second
	DefaultMaxAttempts       = 5
	DefaultEscalateAfter     = 3
	DefaultProbeTimeout      = 1 * time.Second
	DefaultDeclineHold       = 5 * time.Minute
	DefaultMetricsListen     = "127.0.0.1:9068"
	DefaultHistoryMaxRecords = 1000
	DefaultEventBufferSize   = 256
	DefaultScriptConcurrency = 4
	DefaultScriptTimeout     = 30 * time.Second
)

// Default returns a configuration with every field at its default. Load
// decodes the file on top of it, so booleans that default to true stay
// true unless the file sets them.
func Default() *Config {
	cfg := &Config{
		Client: ClientConfig{
			BroadcastFlag: true,
		},
		ConflictDetection: ConflictDetectionConfig{
			Enabled:           true,
			SendGratuitousARP: true,
		},
		Netconf: NetconfConfig{
			Enabled:         true,
			SetDefaultRoute: true,
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
	applyDefaults(cfg)
	return cfg
}
