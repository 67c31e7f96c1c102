package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/krisavpn/fleetctl/internal/config"
	"github.com/krisavpn/fleetctl/internal/configure"
	"github.com/krisavpn/fleetctl/internal/fleet"
	"github.com/krisavpn/fleetctl/internal/provision"
	"github.com/krisavpn/fleetctl/internal/state"
	"github.com/krisavpn/fleetctl/internal/util/async"
)

// Prober awaits management-channel reachability of one address.
type Prober interface {
	AwaitReachable(ctx context.Context, address string) error
}

// Options wires an Orchestrator. Config, Store, Provision and Confirm are
// required; Configure and Prober may be nil only for modes that never reach
// them.
type Options struct {
	Config    *config.Config
	Store     state.Store
	Provision provision.Driver
	Configure configure.Driver
	Prober    Prober
	Confirm   Confirmer
	Logger    zerolog.Logger
	Metrics   *Metrics
}

// Orchestrator drives one reconciliation pass.
type Orchestrator struct {
	cfg     *config.Config
	store   state.Store
	drv     provision.Driver
	confDrv configure.Driver
	prober  Prober
	confirm Confirmer
	log     zerolog.Logger
	metrics *Metrics
}

// New builds an orchestrator from its collaborators.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		cfg:     opts.Config,
		store:   opts.Store,
		drv:     opts.Provision,
		confDrv: opts.Configure,
		prober:  opts.Prober,
		confirm: opts.Confirm,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// Result is the outcome of a run. Created lists the nodes provisioned in
// this pass so callers can report fresh hosts to the operator.
type Result struct {
	RunID   string
	Status  Status
	Delta   fleet.Delta
	Created map[string]fleet.NodeState
	State   fleet.State
}

// Run executes one pass in the given mode. A declined confirmation returns
// Status StatusCanceled with a nil error: canceling is an operator decision,
// not a failure.
func (o *Orchestrator) Run(ctx context.Context, mode Mode) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := o.log.With().Str("run_id", res.RunID).Str("mode", mode.String()).Logger()
	start := time.Now()

	log.Info().Str("phase", string(PhaseInit)).Msg("starting reconciliation run")

	release, err := o.store.Acquire(ctx)
	if err != nil {
		o.metrics.observeRun(mode, "failed", time.Since(start))
		return res, fmt.Errorf("failed to acquire fleet lock: %w", err)
	}
	defer func() {
		if rerr := release(); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to release fleet lock")
		}
	}()

	current, err := o.store.Load(ctx)
	if err != nil {
		o.metrics.observeRun(mode, "failed", time.Since(start))
		return res, fmt.Errorf("failed to load fleet state: %w", err)
	}
	res.State = current

	switch mode {
	case ModeDestroy:
		err = o.runDestroy(ctx, log, current, &res)
	case ModeReboot:
		err = o.runReboot(ctx, log, current, &res)
	default:
		err = o.runReconcile(ctx, log, mode, current, &res)
	}

	outcome := res.Status.String()
	if err != nil {
		outcome = "failed"
		log.Error().Str("phase", string(PhaseFailed)).Err(err).Msg("run failed")
	} else if res.Status == StatusCanceled {
		log.Warn().Str("status", outcome).Msg("run canceled by operator")
	} else {
		log.Info().Str("phase", string(PhaseDone)).Str("status", outcome).Msg("run complete")
	}
	o.metrics.observeRun(mode, outcome, time.Since(start))
	return res, err
}

func (o *Orchestrator) runDestroy(ctx context.Context, log zerolog.Logger, current fleet.State, res *Result) error {
	names := current.Names()
	if len(names) == 0 {
		res.Status = StatusNoChanges
		log.Info().Str("phase", string(PhaseNoChanges)).Msg("no nodes recorded, nothing to destroy")
		return nil
	}

	log.Info().Str("phase", string(PhaseAwaitingDestroy)).Strs("nodes", names).Msg("destruction requires confirmation")
	ok, err := o.confirm.Confirm(fmt.Sprintf("Destroy all %d fleet nodes (%s)?", len(names), strings.Join(names, ", ")))
	if err != nil {
		return err
	}
	if !ok {
		res.Status = StatusCanceled
		return nil
	}

	if err := o.drv.Destroy(ctx, names); err != nil {
		return fmt.Errorf("failed to destroy fleet: %w", err)
	}

	empty := fleet.NewState()
	if err := o.store.Save(ctx, empty); err != nil {
		return fmt.Errorf("failed to persist emptied state: %w", err)
	}
	log.Info().Str("phase", string(PhasePersisted)).Int("destroyed", len(names)).Msg("fleet destroyed")
	res.State = empty
	res.Status = StatusApplied
	return nil
}

func (o *Orchestrator) runReboot(ctx context.Context, log zerolog.Logger, current fleet.State, res *Result) error {
	targets := current.Names()
	if len(targets) == 0 {
		res.Status = StatusNoChanges
		log.Info().Str("phase", string(PhaseNoChanges)).Msg("no nodes recorded, nothing to reboot")
		return nil
	}

	log.Info().Str("phase", string(PhaseConfiguring)).Strs("targets", targets).Msg("running reboot playbook")
	vars := o.configureVars(true)
	// The reboot playbook scopes its plays by this var; the inventory
	// limit alone does not reach play-level host expressions.
	vars["target_hosts"] = strings.Join(targets, ",")
	if err := o.confDrv.Apply(ctx, o.cfg.Configure.RebootPlaybook, targets, vars); err != nil {
		return err
	}
	res.Status = StatusApplied
	return nil
}

func (o *Orchestrator) runReconcile(ctx context.Context, log zerolog.Logger, mode Mode, current fleet.State, res *Result) error {
	desired := o.cfg.DesiredNodes()
	log.Info().Str("phase", string(PhaseDesiredLoaded)).Int("declared", len(desired)).Int("recorded", len(current.Nodes)).Msg("loaded desired and last-known state")

	delta := fleet.Diff(desired, current.Nodes)
	res.Delta = delta
	o.metrics.observeDelta(delta)
	log.Info().Str("phase", string(PhaseDiffed)).
		Strs("create", delta.CreateNames()).
		Strs("destroy", delta.DestroyNames()).
		Strs("replace", delta.ToReplace).
		Int("unchanged", len(delta.Unchanged)).
		Msg("computed delta")

	if delta.Empty() {
		res.Status = StatusNoChanges
		log.Info().Str("phase", string(PhaseNoChanges)).Msg("fleet matches declared state")
		return nil
	}

	plan, err := o.drv.PlanCreate(ctx, delta.ToCreate)
	if err != nil {
		return fmt.Errorf("failed to plan node creation: %w", err)
	}

	if plan.Result() == provision.PlanChangesPending || len(delta.ToDestroy) > 0 || len(delta.ToReplace) > 0 {
		log.Info().Str("phase", string(PhaseAwaitingApply)).Msg("changes require confirmation")
		ok, err := o.confirm.Confirm(confirmPrompt(delta, plan))
		if err != nil {
			return err
		}
		if !ok {
			res.Status = StatusCanceled
			return nil
		}
	}

	// next accumulates confirmed mutations. It is persisted even on a later
	// failure so a rerun only re-attempts what actually remains.
	next := current.Clone()
	dirty := false

	if len(delta.ToDestroy) > 0 {
		log.Info().Str("phase", string(PhaseProvisioning)).Strs("nodes", delta.DestroyNames()).Msg("destroying undeclared nodes")
		if err := o.drv.Destroy(ctx, delta.DestroyNames()); err != nil {
			return fmt.Errorf("failed to destroy undeclared nodes: %w", err)
		}
		for _, node := range delta.ToDestroy {
			delete(next.Nodes, node.Name)
		}
		dirty = true
	}

	if len(delta.ToReplace) > 0 {
		replaced := make([]fleet.NodeState, 0, len(delta.ToReplace))
		for _, name := range delta.ToReplace {
			replaced = append(replaced, next.Nodes[name])
		}
		log.Info().Str("phase", string(PhaseProvisioning)).Strs("nodes", delta.ToReplace).Msg("replacing registrations")
		if err := o.drv.ReplaceRegistration(ctx, replaced); err != nil {
			o.persist(ctx, log, next, dirty)
			return fmt.Errorf("failed to replace registrations: %w", err)
		}
		for _, name := range delta.ToReplace {
			node := next.Nodes[name]
			node.ConfigFingerprint = fleet.Fingerprint(desired[name])
			next.Nodes[name] = node
		}
		dirty = true
	}

	// Apply runs for every name the delta wants created, even when the plan
	// itself creates nothing new: the backend may already hold servers from
	// a run that died before probing or configuring, and those must be
	// adopted, re-probed and re-configured rather than left unrecorded.
	var created map[string]fleet.NodeState
	if len(delta.ToCreate) > 0 {
		log.Info().Str("phase", string(PhaseProvisioning)).Strs("nodes", delta.CreateNames()).Msg("creating nodes")
		created, err = plan.Apply(ctx)
		if err != nil {
			if perr, ok := err.(*provision.Error); ok && len(perr.Succeeded) > 0 {
				// Succeeded creations are real infrastructure. Record them
				// so the rerun only re-attempts the failed names.
				for name, node := range perr.Succeeded {
					next.Nodes[name] = node
				}
				dirty = true
			}
			o.persist(ctx, log, next, dirty)
			return err
		}
		res.Created = created
	}

	if len(created) > 0 {
		log.Info().Str("phase", string(PhaseProbing)).Int("nodes", len(created)).Msg("awaiting connectivity")
		if err := o.probeAll(ctx, created); err != nil {
			// Fresh nodes that never answered are not recorded: the rerun
			// must re-create them, not configure unreachable hosts.
			o.persist(ctx, log, next, dirty)
			return err
		}
	}

	if mode != ModeApply {
		targets := o.configureTargets(delta, created, desired)
		if len(targets) > 0 {
			// Fresh nodes get rebooted at the end of their first
			// configuration run; reruns over a settled fleet do not.
			vars := o.configureVars(len(created) > 0)
			log.Info().Str("phase", string(PhaseConfiguring)).Strs("targets", targets).Msg("configuring nodes")
			if err := o.confDrv.Apply(ctx, o.cfg.Configure.Playbook, targets, vars); err != nil {
				o.persist(ctx, log, next, dirty)
				return err
			}
		}
	}

	for name, node := range created {
		next.Nodes[name] = node
	}

	if err := o.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to persist fleet state: %w", err)
	}
	log.Info().Str("phase", string(PhasePersisted)).Int("nodes", len(next.Nodes)).Msg("state persisted")

	res.State = next
	res.Status = StatusApplied
	return nil
}

// probeAll fans out one probe per freshly created node and waits for all of
// them, collecting every unreachable host rather than the first.
func (o *Orchestrator) probeAll(ctx context.Context, created map[string]fleet.NodeState) error {
	tasks := make([]async.Task, 0, len(created))
	for name, node := range created {
		tasks = append(tasks, async.Task{
			Name: name,
			Func: func(ctx context.Context) error {
				if err := o.prober.AwaitReachable(ctx, node.PublicAddress); err != nil {
					o.metrics.observeProbeFailure()
					return err
				}
				return nil
			},
		})
	}
	return async.RunAll(ctx, tasks)
}

// configureTargets selects the host set for the configuration step per the
// declared reconfigure policy.
func (o *Orchestrator) configureTargets(delta fleet.Delta, created map[string]fleet.NodeState, desired map[string]fleet.NodeSpec) []string {
	full := o.cfg.Fleet.Reconfigure == config.ReconfigureAlwaysFull ||
		(o.cfg.Fleet.Reconfigure == config.ReconfigureFullOnReplace && len(delta.ToReplace) > 0)
	if full {
		names := make([]string, 0, len(desired))
		for name := range desired {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}

	names := make([]string, 0, len(created))
	for name := range created {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *Orchestrator) configureVars(rebootInfra bool) map[string]string {
	vars := make(map[string]string, len(o.cfg.Configure.Vars)+1)
	for k, v := range o.cfg.Configure.Vars {
		vars[k] = v
	}
	vars["reboot_infra"] = fmt.Sprintf("%t", rebootInfra)
	return vars
}

// persist saves intermediate state on a failure path. Confirmed destroys,
// replacements and partially succeeded creations must survive the failure;
// a save error here is logged, not returned, so it never masks the cause.
func (o *Orchestrator) persist(ctx context.Context, log zerolog.Logger, next fleet.State, dirty bool) {
	if !dirty {
		return
	}
	if err := o.store.Save(ctx, next); err != nil {
		log.Error().Err(err).Msg("failed to persist partial state after failure")
	}
}

func confirmPrompt(delta fleet.Delta, plan provision.Plan) string {
	var b strings.Builder
	b.WriteString("Pending fleet changes:\n")
	if len(delta.ToCreate) > 0 {
		fmt.Fprintf(&b, "  create:  %s\n", strings.Join(delta.CreateNames(), ", "))
	}
	if len(delta.ToDestroy) > 0 {
		fmt.Fprintf(&b, "  destroy: %s\n", strings.Join(delta.DestroyNames(), ", "))
	}
	if len(delta.ToReplace) > 0 {
		fmt.Fprintf(&b, "  replace: %s\n", strings.Join(delta.ToReplace, ", "))
	}
	if summary := plan.Summary(); summary != "" {
		b.WriteString(summary)
		b.WriteString("\n")
	}
	b.WriteString("Apply these changes?")
	return b.String()
}
