// Package config handles TOML configuration parsing and validation for athena-dhclient.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/miekg/dns"
)

// Config is the top-level configuration for athena-dhclient.
type Config struct {
	Client            ClientConfig            `toml:"client"`
	Timing            TimingConfig            `toml:"timing"`
	ConflictDetection ConflictDetectionConfig `toml:"conflict_detection"`
	Netconf           NetconfConfig           `toml:"netconf"`
	Metrics           MetricsConfig           `toml:"metrics"`
	History           HistoryConfig           `toml:"history"`
	Hooks             HooksConfig             `toml:"hooks"`
}

// ClientConfig holds the client identity and process settings.
type ClientConfig struct {
	Interface      string `toml:"interface"`
	LogLevel       string `toml:"log_level"`
	LeaseDB        string `toml:"lease_db"`
	PIDFile        string `toml:"pid_file"`
	Hostname       string `toml:"hostname"`
	ClientID       string `toml:"client_id"`
	FQDN           string `toml:"fqdn"`
	VendorClass    string `toml:"vendor_class"`
	RequestOptions []int  `toml:"request_options"`
	MaxMessageSize int    `toml:"max_message_size"`
	BroadcastFlag  bool   `toml:"broadcast_flag"`
	ReleaseOnExit  bool   `toml:"release_on_exit"`
}

// TimingConfig holds the state machine timers. Durations are Go duration strings.
type TimingConfig struct {
	InitDelayMin     string `toml:"init_delay_min"`
	InitDelayMax     string `toml:"init_delay_max"`
	OfferWindow      string `toml:"offer_window"`
	OfferSelection   string `toml:"offer_selection"` // "longest_lease" or "first"
	RetransmitBase   string `toml:"retransmit_base"`
	RetransmitMax    string `toml:"retransmit_max"`
	RetransmitJitter string `toml:"retransmit_jitter"`
	MaxAttempts      int    `toml:"max_attempts"`
	EscalateAfter    int    `toml:"escalate_after"`
}

// ConflictDetectionConfig holds ARP probe settings.
type ConflictDetectionConfig struct {
	Enabled           bool   `toml:"enabled"`
	ProbeTimeout      string `toml:"probe_timeout"`
	SendGratuitousARP bool   `toml:"send_gratuitous_arp"`
	DeclineHold       string `toml:"decline_hold"`
}

// NetconfConfig controls whether the lease is installed on the interface.
type NetconfConfig struct {
	Enabled         bool `toml:"enabled"`
	SetDefaultRoute bool `toml:"set_default_route"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// HistoryConfig controls the persistent lease history kept in the lease database.
type HistoryConfig struct {
	Enabled    bool `toml:"enabled"`
	MaxRecords int  `toml:"max_records"`
}

// HooksConfig holds event hook settings.
type HooksConfig struct {
	EventBufferSize   int          `toml:"event_buffer_size"`
	ScriptConcurrency int          `toml:"script_concurrency"`
	ScriptTimeout     string       `toml:"script_timeout"`
	Scripts           []ScriptHook `toml:"script"`
}

// ScriptHook defines a script hook.
type ScriptHook struct {
	Name    string   `toml:"name"`
	Events  []string `toml:"events"`
	Command string   `toml:"command"`
	Timeout string   `toml:"timeout"`
}

// Load reads and parses a TOML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, returning defaults when path is the default
// location and no file exists there. A missing explicit path is an error.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := Load(path)
	if err != nil && path == DefaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// applyDefaults fills in default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Client.Interface == "" {
		cfg.Client.Interface = DefaultInterface
	}
	if cfg.Client.LogLevel == "" {
		cfg.Client.LogLevel = DefaultLogLevel
	}
	if cfg.Client.LeaseDB == "" {
		cfg.Client.LeaseDB = DefaultLeaseDB
	}
	if cfg.Client.PIDFile == "" {
		cfg.Client.PIDFile = DefaultPIDFile
	}
	if cfg.Client.MaxMessageSize == 0 {
		cfg.Client.MaxMessageSize = DefaultMaxMessageSize
	}

	// Timing defaults
	if cfg.Timing.InitDelayMin == "" {
		cfg.Timing.InitDelayMin = DefaultInitDelayMin.String()
	}
	if cfg.Timing.InitDelayMax == "" {
		cfg.Timing.InitDelayMax = DefaultInitDelayMax.String()
	}
	if cfg.Timing.OfferWindow == "" {
		cfg.Timing.OfferWindow = DefaultOfferWindow.String()
	}
	if cfg.Timing.OfferSelection == "" {
		cfg.Timing.OfferSelection = DefaultOfferSelection
	}
	if cfg.Timing.RetransmitBase == "" {
		cfg.Timing.RetransmitBase = DefaultRetransmitBase.String()
	}
	if cfg.Timing.RetransmitMax == "" {
		cfg.Timing.RetransmitMax = DefaultRetransmitMax.String()
	}
	if cfg.Timing.RetransmitJitter == "" {
		cfg.Timing.RetransmitJitter = DefaultRetransmitJitter.String()
	}
	if cfg.Timing.MaxAttempts == 0 {
		cfg.Timing.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Timing.EscalateAfter == 0 {
		cfg.Timing.EscalateAfter = DefaultEscalateAfter
	}

	if cfg.ConflictDetection.ProbeTimeout == "" {
		cfg.ConflictDetection.ProbeTimeout = DefaultProbeTimeout.String()
	}
	if cfg.ConflictDetection.DeclineHold == "" {
		cfg.ConflictDetection.DeclineHold = DefaultDeclineHold.String()
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}

	if cfg.History.MaxRecords == 0 {
		cfg.History.MaxRecords = DefaultHistoryMaxRecords
	}

	// Hooks defaults
	if cfg.Hooks.EventBufferSize == 0 {
		cfg.Hooks.EventBufferSize = DefaultEventBufferSize
	}
	if cfg.Hooks.ScriptConcurrency == 0 {
		cfg.Hooks.ScriptConcurrency = DefaultScriptConcurrency
	}
	if cfg.Hooks.ScriptTimeout == "" {
		cfg.Hooks.ScriptTimeout = DefaultScriptTimeout.String()
	}
}

// validate checks the configuration for errors.
func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Client.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("client.log_level %q is not one of debug, info, warn, error", cfg.Client.LogLevel)
	}

	if cfg.Client.Hostname != "" {
		if err := checkDomainName(cfg.Client.Hostname, false); err != nil {
			return fmt.Errorf("client.hostname: %w", err)
		}
	}
	if cfg.Client.FQDN != "" {
		if err := checkDomainName(cfg.Client.FQDN, true); err != nil {
			return fmt.Errorf("client.fqdn: %w", err)
		}
	}
	if _, err := cfg.ClientIDBytes(); err != nil {
		return fmt.Errorf("client.client_id: %w", err)
	}
	if len(cfg.Client.VendorClass) > 255 {
		return fmt.Errorf("client.vendor_class is longer than 255 bytes")
	}
	for _, code := range cfg.Client.RequestOptions {
		if code < 1 || code > 254 {
			return fmt.Errorf("client.request_options: code %d is not in 1-254", code)
		}
	}
	if n := cfg.Client.MaxMessageSize; n < 576 || n > 65535 {
		return fmt.Errorf("client.max_message_size %d is not in 576-65535", n)
	}

	// Timing
	durations := []struct {
		name string
		val  string
		min  time.Duration
	}{
		{"timing.init_delay_min", cfg.Timing.InitDelayMin, 0},
		{"timing.init_delay_max", cfg.Timing.InitDelayMax, 0},
		{"timing.offer_window", cfg.Timing.OfferWindow, time.Millisecond},
		{"timing.retransmit_base", cfg.Timing.RetransmitBase, time.Second},
		{"timing.retransmit_max", cfg.Timing.RetransmitMax, time.Second},
		{"timing.retransmit_jitter", cfg.Timing.RetransmitJitter, 0},
		{"conflict_detection.probe_timeout", cfg.ConflictDetection.ProbeTimeout, time.Millisecond},
		{"conflict_detection.decline_hold", cfg.ConflictDetection.DeclineHold, 0},
		{"hooks.script_timeout", cfg.Hooks.ScriptTimeout, time.Millisecond},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.val)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		if v < d.min {
			return fmt.Errorf("%s %s is below the minimum %s", d.name, v, d.min)
		}
	}
	if cfg.GetInitDelayMin() > cfg.GetInitDelayMax() {
		return fmt.Errorf("timing.init_delay_min %s exceeds init_delay_max %s", cfg.Timing.InitDelayMin, cfg.Timing.InitDelayMax)
	}
	if cfg.GetRetransmitBase() > cfg.GetRetransmitMax() {
		return fmt.Errorf("timing.retransmit_base %s exceeds retransmit_max %s", cfg.Timing.RetransmitBase, cfg.Timing.RetransmitMax)
	}
	switch cfg.Timing.OfferSelection {
	case "longest_lease", "first":
	default:
		return fmt.Errorf("timing.offer_selection %q is not one of longest_lease, first", cfg.Timing.OfferSelection)
	}
	if cfg.Timing.MaxAttempts < 1 {
		return fmt.Errorf("timing.max_attempts must be at least 1, got %d", cfg.Timing.MaxAttempts)
	}
	if cfg.Timing.EscalateAfter < 1 {
		return fmt.Errorf("timing.escalate_after must be at least 1, got %d", cfg.Timing.EscalateAfter)
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen %q: %w", cfg.Metrics.Listen, err)
		}
	}

	if cfg.History.MaxRecords < 1 {
		return fmt.Errorf("history.max_records must be at least 1, got %d", cfg.History.MaxRecords)
	}

	// Hooks
	if cfg.Hooks.ScriptConcurrency < 1 {
		return fmt.Errorf("hooks.script_concurrency must be at least 1, got %d", cfg.Hooks.ScriptConcurrency)
	}
	for i, h := range cfg.Hooks.Scripts {
		if h.Command == "" {
			return fmt.Errorf("hooks.script[%d] (%s): command is required", i, h.Name)
		}
		if h.Timeout != "" {
			if _, err := time.ParseDuration(h.Timeout); err != nil {
				return fmt.Errorf("hooks.script[%d].timeout: %w", i, err)
			}
		}
	}

	return nil
}

// checkDomainName validates name as a DNS name. Hostnames must be a single label.
func checkDomainName(name string, multiLabel bool) error {
	labels, ok := dns.IsDomainName(name)
	if !ok {
		return fmt.Errorf("%q is not a valid domain name", name)
	}
	if !multiLabel && labels != 1 {
		return fmt.Errorf("%q must be a single label", name)
	}
	return nil
}

// ClientIDBytes decodes client.client_id. Both "01aabbcc" and
// "01:aa:bb:cc" forms are accepted. Empty means derive from the MAC.
func (cfg *Config) ClientIDBytes() ([]byte, error) {
	s := strings.ReplaceAll(cfg.Client.ClientID, ":", "")
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", cfg.Client.ClientID, err)
	}
	if len(b) < 2 || len(b) > 255 {
		return nil, fmt.Errorf("%q must be 2-255 bytes", cfg.Client.ClientID)
	}
	return b, nil
}

// RequestList returns client.request_options as option codes, or nil when unset.
func (cfg *Config) RequestList() []uint8 {
	if len(cfg.Client.RequestOptions) == 0 {
		return nil
	}
	codes := make([]uint8, len(cfg.Client.RequestOptions))
	for i, c := range cfg.Client.RequestOptions {
		codes[i] = uint8(c)
	}
	return codes
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// GetInitDelayMin returns the lower bound of the random INIT delay.
func (cfg *Config) GetInitDelayMin() time.Duration {
	return durationOr(cfg.Timing.InitDelayMin, DefaultInitDelayMin)
}

// GetInitDelayMax returns the upper bound of the random INIT delay.
func (cfg *Config) GetInitDelayMax() time.Duration {
	return durationOr(cfg.Timing.InitDelayMax, DefaultInitDelayMax)
}

// GetOfferWindow returns how long SELECTING collects offers after the first.
func (cfg *Config) GetOfferWindow() time.Duration {
	return durationOr(cfg.Timing.OfferWindow, DefaultOfferWindow)
}

// GetRetransmitBase returns the first retransmission timeout.
func (cfg *Config) GetRetransmitBase() time.Duration {
	return durationOr(cfg.Timing.RetransmitBase, DefaultRetransmitBase)
}

// GetRetransmitMax returns the retransmission timeout cap.
func (cfg *Config) GetRetransmitMax() time.Duration {
	return durationOr(cfg.Timing.RetransmitMax, DefaultRetransmitMax)
}

// GetRetransmitJitter returns the randomisation applied to each timeout.
func (cfg *Config) GetRetransmitJitter() time.Duration {
	return durationOr(cfg.Timing.RetransmitJitter, DefaultRetransmitJitter)
}

// GetProbeTimeout returns the ARP probe bound.
func (cfg *Config) GetProbeTimeout() time.Duration {
	return durationOr(cfg.ConflictDetection.ProbeTimeout, DefaultProbeTimeout)
}

// GetDeclineHold returns how long a declined address is skipped in offers.
func (cfg *Config) GetDeclineHold() time.Duration {
	return durationOr(cfg.ConflictDetection.DeclineHold, DefaultDeclineHold)
}

// GetScriptTimeout returns the default script hook timeout.
func (cfg *Config) GetScriptTimeout() time.Duration {
	return durationOr(cfg.Hooks.ScriptTimeout, DefaultScriptTimeout)
}

// GetTimeout returns the hook's own timeout, or zero to use the runner default.
func (h ScriptHook) GetTimeout() time.Duration {
	return durationOr(h.Timeout, 0)
}
