package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/metrics"
)

// DefaultScriptTimeout bounds a hook when neither the hook nor the runner sets one.
const DefaultScriptTimeout = 30 * time.Second

// ScriptRunner executes script hooks in a bounded goroutine pool.
// This is the only use of os/exec in the project.
type ScriptRunner struct {
	logger         *slog.Logger
	defaultTimeout time.Duration
	sem            chan struct{}
	wg             sync.WaitGroup
}

// ScriptConfig describes a single script hook binding.
type ScriptConfig struct {
	Name    string
	Events  []string
	Command string
	Timeout time.Duration
}

// NewScriptRunner creates a script runner with the given concurrency limit
// and per-hook default timeout.
func NewScriptRunner(concurrency int, defaultTimeout time.Duration, logger *slog.Logger) *ScriptRunner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultScriptTimeout
	}
	return &ScriptRunner{
		logger:         logger,
		defaultTimeout: defaultTimeout,
		sem:            make(chan struct{}, concurrency),
	}
}

// Run executes a script hook for the given event in a goroutine.
// The script receives event data as ATHENA_* environment variables and as
// JSON on stdin.
func (r *ScriptRunner) Run(cfg ScriptConfig, evt Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		select {
		case r.sem <- struct{}{}:
			defer func() { <-r.sem }()
		default:
			metrics.HookExecutions.WithLabelValues("script", "dropped").Inc()
			r.logger.Warn("script hook pool full, dropping execution",
				"hook_name", cfg.Name,
				"event", string(evt.Type))
			return
		}

		if err := r.execute(cfg, evt); err != nil {
			r.logger.Error("script hook failed",
				"hook_name", cfg.Name,
				"command", cfg.Command,
				"event", string(evt.Type),
				"error", err)
		}
	}()
}

// execute runs a single script with timeout, env vars, and JSON stdin.
func (r *ScriptRunner) execute(cfg ScriptConfig, evt Event) error {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	jsonData, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event for stdin: %w", err)
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cfg.Command)
	cmd.Env = scriptEnv(cfg, evt)
	cmd.Stdin = bytes.NewReader(jsonData)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)
	metrics.HookDuration.WithLabelValues("script").Observe(duration.Seconds())

	if err != nil {
		metrics.HookExecutions.WithLabelValues("script", "error").Inc()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s, killed", timeout)
		}
		return fmt.Errorf("%w (stderr %q)", err, stderr.String())
	}

	metrics.HookExecutions.WithLabelValues("script", "success").Inc()
	r.logger.Debug("script hook completed",
		"hook_name", cfg.Name,
		"duration", duration.String(),
		"event", string(evt.Type),
		"exit_code", cmd.ProcessState.ExitCode())
	return nil
}

func scriptEnv(cfg ScriptConfig, evt Event) []string {
	vars := evt.ToEnvVars()
	vars["ATHENA_HOOK_NAME"] = cfg.Name
	env := os.Environ()
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	return env
}

// Wait blocks until all running scripts complete.
func (r *ScriptRunner) Wait() {
	r.wg.Wait()
}
