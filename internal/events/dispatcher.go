package events

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Dispatcher routes events from the bus to script hooks. Hook failures
// never propagate to the state machine.
type Dispatcher struct {
	bus        *Bus
	scripts    *ScriptRunner
	logger     *slog.Logger
	scriptCfgs []ScriptConfig
	ch         chan Event
	done       chan struct{}
	stopped    chan struct{}
	started    atomic.Bool
}

// NewDispatcher creates a new event dispatcher and subscribes it to bus.
func NewDispatcher(bus *Bus, logger *slog.Logger, scriptConcurrency int, scriptTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		bus:     bus,
		scripts: NewScriptRunner(scriptConcurrency, scriptTimeout, logger),
		logger:  logger,
		ch:      bus.Subscribe(64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// AddScript registers a script hook.
func (d *Dispatcher) AddScript(cfg ScriptConfig) {
	d.scriptCfgs = append(d.scriptCfgs, cfg)
}

// Start begins dispatching. Call in a goroutine, after all hooks are added.
func (d *Dispatcher) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	defer close(d.stopped)
	d.logger.Info("event dispatcher started", "script_hooks", len(d.scriptCfgs))

	for {
		select {
		case evt, ok := <-d.ch:
			if !ok {
				return
			}
			d.dispatch(evt)
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case evt, ok := <-d.ch:
			if !ok {
				return
			}
			d.dispatch(evt)
		default:
			return
		}
	}
}

// Stop dispatches anything already queued, then waits for running hooks.
// Stop the bus first so its buffer is flushed into the dispatcher.
func (d *Dispatcher) Stop() {
	close(d.done)
	if d.started.CompareAndSwap(false, true) {
		d.drain()
	} else {
		<-d.stopped
	}
	d.bus.Unsubscribe(d.ch)
	d.scripts.Wait()
	d.logger.Info("event dispatcher stopped")
}

func (d *Dispatcher) dispatch(evt Event) {
	evtType := string(evt.Type)
	for _, cfg := range d.scriptCfgs {
		if matchesEvent(cfg.Events, evtType) {
			d.scripts.Run(cfg, evt)
		}
	}
}

// matchesEvent checks if the event type matches any of the configured patterns.
// Supports exact match and wildcard patterns (e.g., "lease.*", "*").
func matchesEvent(patterns []string, eventType string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p == "*" || p == eventType {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, ".*"); ok {
			if strings.HasPrefix(eventType, prefix+".") {
				return true
			}
		}
	}
	return false
}
