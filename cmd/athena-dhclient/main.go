// athena-dhclient is an RFC 2131 DHCPv4 client for a single interface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	nethttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/athena-dhcpd/athena-dhclient/internal/audit"
	"github.com/athena-dhcpd/athena-dhclient/internal/client"
	"github.com/athena-dhcpd/athena-dhclient/internal/config"
	"github.com/athena-dhcpd/athena-dhclient/internal/conflict"
	"github.com/athena-dhcpd/athena-dhclient/internal/dhcp"
	"github.com/athena-dhcpd/athena-dhclient/internal/events"
	"github.com/athena-dhcpd/athena-dhclient/internal/hostname"
	"github.com/athena-dhcpd/athena-dhclient/internal/lease"
	"github.com/athena-dhcpd/athena-dhclient/internal/logging"
	"github.com/athena-dhcpd/athena-dhclient/internal/metrics"
	"github.com/athena-dhcpd/athena-dhclient/internal/netconf"
	"github.com/athena-dhcpd/athena-dhclient/internal/transport"
	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to configuration file")
	dumpConfig := flag.Bool("dump-config", false, "print the effective configuration as TOML and exit")
	history := flag.Bool("history", false, "print the lease history as CSV and exit")
	historyIP := flag.String("history-ip", "", "limit -history to one address")
	historyAt := flag.String("history-at", "", "limit -history to leases held at this RFC 3339 time")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-config path] [-dump-config] [-history [-history-ip ip] [-history-at time]] [interface]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}
	if flag.NArg() == 1 {
		cfg.Client.Interface = flag.Arg(0)
	}

	if *dumpConfig {
		if err := cfg.WriteTOML(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *history {
		if err := dumpHistory(cfg, *historyIP, *historyAt); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := logging.Setup(cfg.Client.LogLevel, os.Stdout)
	logger.Info("athena-dhclient starting",
		"version", version,
		"config", *configPath,
		"interface", cfg.Client.Interface)

	if err := run(cfg, logger); err != nil {
		logger.Error("athena-dhclient failed", "error", err)
		os.Exit(1)
	}
	logger.Info("athena-dhclient stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ifi, err := net.InterfaceByName(cfg.Client.Interface)
	if err != nil {
		return fmt.Errorf("looking up interface %s: %w", cfg.Client.Interface, err)
	}
	if len(ifi.HardwareAddr) == 0 {
		return fmt.Errorf("interface %s has no hardware address", ifi.Name)
	}

	if cfg.Client.PIDFile != "" {
		if err := writePIDFile(cfg.Client.PIDFile); err != nil {
			logger.Warn("failed to write PID file", "path", cfg.Client.PIDFile, "error", err)
		} else {
			defer removePIDFile(cfg.Client.PIDFile)
		}
	}

	store, err := lease.NewStore(cfg.Client.LeaseDB)
	if err != nil {
		return fmt.Errorf("opening lease database: %w", err)
	}
	defer store.Close()
	logger.Info("lease database opened", "path", cfg.Client.LeaseDB)

	bus := events.NewBus(cfg.Hooks.EventBufferSize, logger)
	dispatcher := events.NewDispatcher(bus, logger, cfg.Hooks.ScriptConcurrency, cfg.GetScriptTimeout())
	for _, h := range cfg.Hooks.Scripts {
		dispatcher.AddScript(events.ScriptConfig{
			Name:    h.Name,
			Events:  h.Events,
			Command: h.Command,
			Timeout: h.GetTimeout(),
		})
	}
	var hist *audit.Log
	if cfg.History.Enabled {
		hist, err = audit.NewLog(store.DB(), bus, cfg.History.MaxRecords, logger)
		if err != nil {
			return fmt.Errorf("opening lease history: %w", err)
		}
		go hist.Start()
	}
	go bus.Start()
	go dispatcher.Start()
	defer func() {
		bus.Stop()
		dispatcher.Stop()
		if hist != nil {
			hist.Stop()
		}
	}()

	if cfg.Metrics.Enabled {
		srv := startMetricsServer(cfg.Metrics.Listen, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}
	metrics.ClientStartTime.SetToCurrentTime()
	metrics.ClientInfo.WithLabelValues(version, ifi.Name).Set(1)

	conn, err := transport.Listen(ctx, transport.Config{Interface: ifi.Name}, logger)
	if err != nil {
		return err
	}

	c, err := client.New(clientConfig(cfg, ifi), conn, logger)
	if err != nil {
		conn.Close()
		return err
	}
	c.SetStore(store)
	c.SetPublisher(bus)
	c.SetSelector(client.SelectorByName(cfg.Timing.OfferSelection))

	if cfg.ConflictDetection.Enabled {
		prober, err := conflict.NewARPProber(ifi.Name, logger)
		switch {
		case err != nil:
			logger.Warn("ARP prober initialization failed, conflict detection disabled", "error", err)
			c.SetProber(conflict.NoopProber{})
		case !prober.Available():
			// NewARPProber already logged why the raw socket is missing.
			prober.Close()
			c.SetProber(conflict.NoopProber{})
		default:
			defer prober.Close()
			c.SetProber(prober)
		}
	} else {
		c.SetProber(conflict.NoopProber{})
	}

	if cfg.Netconf.Enabled {
		c.SetConfigurator(netconf.NewNetlink(ifi.Name, cfg.Netconf.SetDefaultRoute, logger))
	} else {
		c.SetConfigurator(netconf.Noop{})
	}

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// dumpHistory writes the recorded lease history to stdout as CSV.
func dumpHistory(cfg *config.Config, ip, at string) error {
	params := audit.QueryParams{IP: ip}
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("parsing -history-at: %w", err)
		}
		params.At = t
	}

	store, err := lease.NewStore(cfg.Client.LeaseDB)
	if err != nil {
		return err
	}
	defer store.Close()

	hist, err := audit.NewLog(store.DB(), nil, cfg.History.MaxRecords, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	records, err := hist.Query(params)
	if err != nil {
		return fmt.Errorf("querying lease history: %w", err)
	}
	return audit.WriteCSV(os.Stdout, records)
}

// clientConfig maps the file configuration onto the state machine's policy.
func clientConfig(cfg *config.Config, ifi *net.Interface) client.Config {
	name := cfg.Client.Hostname
	if name == "" {
		name = hostname.Local()
	}
	clientID, _ := cfg.ClientIDBytes() // validated on load

	var reqList []dhcpv4.OptionCode
	for _, code := range cfg.RequestList() {
		reqList = append(reqList, dhcpv4.OptionCode(code))
	}

	return client.Config{
		Interface: ifi.Name,
		Identity: dhcp.ClientIdentity{
			HardwareAddr:   ifi.HardwareAddr,
			ClientID:       clientID,
			Hostname:       name,
			FQDN:           cfg.Client.FQDN,
			VendorClass:    cfg.Client.VendorClass,
			RequestList:    reqList,
			MaxMessageSize: uint16(cfg.Client.MaxMessageSize),
			Broadcast:      cfg.Client.BroadcastFlag,
		},
		InitDelayMin: cfg.GetInitDelayMin(),
		InitDelayMax: cfg.GetInitDelayMax(),
		OfferWindow:  cfg.GetOfferWindow(),
		Backoff: client.Backoff{
			Base:        cfg.GetRetransmitBase(),
			Max:         cfg.GetRetransmitMax(),
			Jitter:      cfg.GetRetransmitJitter(),
			MaxAttempts: cfg.Timing.MaxAttempts,
		},
		EscalateAfter: cfg.Timing.EscalateAfter,
		ProbeTimeout:  cfg.GetProbeTimeout(),
		DeclineHold:   cfg.GetDeclineHold(),
		Announce:      cfg.ConflictDetection.Enabled && cfg.ConflictDetection.SendGratuitousARP,
		ReleaseOnExit: cfg.Client.ReleaseOnExit,
	}
}

func startMetricsServer(listen string, logger *slog.Logger) *nethttp.Server {
	mux := nethttp.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &nethttp.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "listen", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

// writePIDFile writes the current process ID to the given path.
func writePIDFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating PID directory %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

// removePIDFile removes the PID file.
func removePIDFile(path string) {
	os.Remove(path)
}
