// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command
// definitions in the commands package. Handlers are framework-agnostic and
// can be tested independently of the CLI framework.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	hcloudsdk "github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"

	"github.com/krisavpn/fleetctl/internal/config"
	"github.com/krisavpn/fleetctl/internal/configure"
	"github.com/krisavpn/fleetctl/internal/orchestrator"
	"github.com/krisavpn/fleetctl/internal/platform/cloudflare"
	"github.com/krisavpn/fleetctl/internal/platform/hcloud"
	"github.com/krisavpn/fleetctl/internal/platform/ssh"
	"github.com/krisavpn/fleetctl/internal/probe"
	"github.com/krisavpn/fleetctl/internal/provision"
	"github.com/krisavpn/fleetctl/internal/state"
)

// ErrCanceled reports that the operator declined a confirmation gate. The
// process exits nonzero so schedulers notice, but it is a decision, not a
// failure.
var ErrCanceled = errors.New("run canceled by operator")

// Runner matches orchestrator.Orchestrator for testing.
type Runner interface {
	Run(ctx context.Context, mode orchestrator.Mode) (orchestrator.Result, error)
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads the fleet declaration.
	loadConfigFile = config.LoadFile

	// ensureSecretsFile generates any missing managed secrets.
	ensureSecretsFile = config.EnsureSecretsFile

	// newStateStore selects the state backend from the declaration.
	newStateStore = func(ctx context.Context, cfg *config.Config) (state.Store, error) {
		switch cfg.State.Backend {
		case "s3":
			return state.NewS3Store(ctx, state.S3Options{
				Bucket:    cfg.State.S3.Bucket,
				Key:       cfg.State.S3.Key,
				Endpoint:  cfg.State.S3.Endpoint,
				Region:    cfg.State.S3.Region,
				AccessKey: cfg.State.S3.AccessKey,
				SecretKey: cfg.State.S3.SecretKey,
			})
		default:
			return state.NewFileStore(cfg.State.Path), nil
		}
	}

	// newProvisionDriver builds the compute+DNS provisioning backend from
	// environment credentials.
	newProvisionDriver = func(cfg *config.Config) (provision.Driver, error) {
		token := os.Getenv("HCLOUD_TOKEN")
		if token == "" {
			return nil, errors.New("HCLOUD_TOKEN is not set")
		}
		dnsToken := os.Getenv("CLOUDFLARE_API_TOKEN")
		if dnsToken == "" {
			return nil, errors.New("CLOUDFLARE_API_TOKEN is not set")
		}

		client := hcloudsdk.NewClient(
			hcloudsdk.WithToken(token),
			hcloudsdk.WithApplication("fleetctl", ""),
		)
		return hcloud.NewDriver(client, cloudflare.NewClient(dnsToken), hcloud.Options{
			FleetName: cfg.Fleet.Name,
			Image:     cfg.Provision.Image,
			SSHKeys:   cfg.Provision.SSHKeys,
			DNSZone:   cfg.Provision.DNSZone,
		}), nil
	}

	// newConfigureDriver builds the playbook runner.
	newConfigureDriver = func(cfg *config.Config) configure.Driver {
		return configure.NewAnsibleRunner(cfg.Configure.Dir, cfg.Configure.Inventory)
	}

	// newProber builds the management-channel connectivity prober.
	newProber = func(cfg *config.Config) (orchestrator.Prober, error) {
		key, err := os.ReadFile(cfg.Probe.KeyPath) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("failed to read probe key %s: %w", cfg.Probe.KeyPath, err)
		}
		client, err := ssh.NewClient(ssh.Config{
			User:       cfg.Probe.User,
			PrivateKey: key,
			Port:       cfg.Probe.Port,
		})
		if err != nil {
			return nil, err
		}
		return probe.New(probe.NewSSHDialer(client), probe.Options{
			Interval:       cfg.Probe.Interval,
			MaxAttempts:    cfg.Probe.MaxAttempts,
			AttemptTimeout: cfg.Probe.AttemptTimeout,
			KnownHostsPath: cfg.Probe.KnownHostsPath,
		}), nil
	}

	// newOrchestrator wires the reconciliation core.
	newOrchestrator = func(opts orchestrator.Options) Runner {
		return orchestrator.New(opts)
	}

	// stdout receives operator-facing reports.
	stdout io.Writer = os.Stdout
)

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
}

func run(ctx context.Context, configPath string, yes bool, metricsPath string, mode orchestrator.Mode) error {
	log := newLogger()

	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return err
	}

	if mode == orchestrator.ModeDeploy && cfg.Secrets.Path != "" {
		generated, err := ensureSecretsFile(cfg.Secrets.Path)
		if err != nil {
			return err
		}
		if len(generated) > 0 {
			log.Info().Strs("secrets", generated).Str("path", cfg.Secrets.Path).Msg("generated missing secrets")
		}
	}

	store, err := newStateStore(ctx, cfg)
	if err != nil {
		return err
	}

	opts := orchestrator.Options{
		Config: cfg,
		Store:  store,
		Logger: log,
	}

	if yes {
		opts.Confirm = orchestrator.AutoApprove{}
	} else {
		opts.Confirm = orchestrator.Interactive{}
	}

	if mode != orchestrator.ModeReboot {
		if opts.Provision, err = newProvisionDriver(cfg); err != nil {
			return err
		}
	}
	if mode == orchestrator.ModeDeploy || mode == orchestrator.ModeReboot {
		opts.Configure = newConfigureDriver(cfg)
	}
	if mode == orchestrator.ModeDeploy || mode == orchestrator.ModeApply {
		if opts.Prober, err = newProber(cfg); err != nil {
			return err
		}
	}

	var reg *prometheus.Registry
	if metricsPath != "" {
		reg = prometheus.NewRegistry()
		opts.Metrics = orchestrator.NewMetrics(reg)
	}

	res, runErr := newOrchestrator(opts).Run(ctx, mode)

	if reg != nil {
		if err := writeMetricsFile(reg, metricsPath); err != nil {
			log.Warn().Err(err).Str("path", metricsPath).Msg("failed to write metrics file")
		}
	}

	if runErr != nil {
		return runErr
	}
	if res.Status == orchestrator.StatusCanceled {
		return ErrCanceled
	}

	report(res)
	return nil
}

// report prints the operator-facing summary of a successful run.
func report(res orchestrator.Result) {
	switch res.Status {
	case orchestrator.StatusNoChanges:
		fmt.Fprintln(stdout, "No changes. Fleet matches the declared state.")
		return
	case orchestrator.StatusApplied:
		fmt.Fprintln(stdout, "Reconciliation complete.")
	}

	if len(res.Created) == 0 {
		return
	}

	names := make([]string, 0, len(res.Created))
	for name := range res.Created {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(stdout, "\nNew nodes:")
	for _, name := range names {
		fmt.Fprintf(stdout, "  %s\t%s\n", name, res.Created[name].PublicAddress)
	}
}

// writeMetricsFile dumps the run's metrics in the Prometheus text exposition
// format, suitable for the node-exporter textfile collector.
func writeMetricsFile(reg *prometheus.Registry, path string) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	f, err := os.Create(path) // #nosec G304
	if err != nil {
		return err
	}
	defer f.Close()

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
