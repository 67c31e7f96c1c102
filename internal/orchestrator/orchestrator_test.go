package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisavpn/fleetctl/internal/config"
	"github.com/krisavpn/fleetctl/internal/fleet"
	"github.com/krisavpn/fleetctl/internal/provision"
	"github.com/krisavpn/fleetctl/internal/state"
)

type fakeStore struct {
	st     fleet.State
	saved  []fleet.State
	locked bool
}

func (f *fakeStore) Load(context.Context) (fleet.State, error) {
	if f.st.Nodes == nil {
		f.st = fleet.NewState()
	}
	return f.st.Clone(), nil
}

func (f *fakeStore) Save(_ context.Context, st fleet.State) error {
	f.saved = append(f.saved, st.Clone())
	f.st = st
	return nil
}

func (f *fakeStore) Acquire(context.Context) (func() error, error) {
	if f.locked {
		return nil, state.ErrLocked
	}
	return func() error { return nil }, nil
}

type fakePlan struct {
	result   provision.PlanResult
	nodes    map[string]fleet.NodeState
	applyErr error
	applied  bool
}

func (p *fakePlan) Result() provision.PlanResult { return p.result }

func (p *fakePlan) Summary() string {
	if p.result == provision.PlanNoChanges {
		return ""
	}
	return fmt.Sprintf("plan: %d node(s) to create", len(p.nodes))
}

func (p *fakePlan) Apply(context.Context) (map[string]fleet.NodeState, error) {
	if p.applied {
		return nil, errors.New("plan already applied")
	}
	p.applied = true
	if p.applyErr != nil {
		return nil, p.applyErr
	}
	return p.nodes, nil
}

type fakeDriver struct {
	applyErr  error
	adoptAll  bool
	destroyed [][]string
	replaced  []string
	plans     []*fakePlan
}

func (f *fakeDriver) PlanCreate(_ context.Context, specs []fleet.NodeSpec) (provision.Plan, error) {
	nodes := make(map[string]fleet.NodeState, len(specs))
	for i, spec := range specs {
		nodes[spec.Name] = fleet.NodeState{
			Name:              spec.Name,
			PublicAddress:     fmt.Sprintf("192.0.2.%d", i+1),
			ProvisionedAt:     time.Now().UTC(),
			ConfigFingerprint: fleet.Fingerprint(spec),
		}
	}
	result := provision.PlanChangesPending
	// adoptAll mimics a backend already holding every requested server:
	// nothing new to create, but Apply still returns the live nodes.
	if len(specs) == 0 || f.adoptAll {
		result = provision.PlanNoChanges
	}
	p := &fakePlan{result: result, nodes: nodes, applyErr: f.applyErr}
	f.plans = append(f.plans, p)
	return p, nil
}

func (f *fakeDriver) Destroy(_ context.Context, names []string) error {
	f.destroyed = append(f.destroyed, names)
	return nil
}

func (f *fakeDriver) ReplaceRegistration(_ context.Context, nodes []fleet.NodeState) error {
	for _, node := range nodes {
		f.replaced = append(f.replaced, node.Name)
	}
	return nil
}

func (f *fakeDriver) Read(context.Context) (map[string]fleet.NodeState, error) {
	return nil, nil
}

type configureCall struct {
	playbook string
	targets  []string
	vars     map[string]string
}

type fakeConfigure struct {
	calls []configureCall
	err   error
}

func (f *fakeConfigure) Apply(_ context.Context, playbook string, targets []string, vars map[string]string) error {
	f.calls = append(f.calls, configureCall{playbook: playbook, targets: targets, vars: vars})
	return f.err
}

type fakeProber struct {
	probed  []string
	failFor map[string]error
}

func (f *fakeProber) AwaitReachable(_ context.Context, address string) error {
	f.probed = append(f.probed, address)
	if f.failFor != nil {
		return f.failFor[address]
	}
	return nil
}

type declineConfirm struct{}

func (declineConfirm) Confirm(string) (bool, error) { return false, nil }

type recordingConfirm struct {
	prompt string
}

func (r *recordingConfirm) Confirm(prompt string) (bool, error) {
	r.prompt = prompt
	return true, nil
}

func testConfig(nodes map[string]config.NodeConfig) *config.Config {
	return &config.Config{
		Fleet: config.FleetConfig{
			Name:        "krisa",
			DefaultPlan: "cx22",
			DefaultPort: 2222,
			Reconfigure: config.ReconfigureFullOnReplace,
			Nodes:       nodes,
		},
		Configure: config.ConfigureConfig{
			Playbook:       "node-configure.yml",
			RebootPlaybook: "reboot.yml",
			Vars:           map[string]string{"fleet_env": "prod"},
		},
	}
}

type harness struct {
	store     *fakeStore
	driver    *fakeDriver
	configure *fakeConfigure
	prober    *fakeProber
	orch      *Orchestrator
}

func newHarness(cfg *config.Config, confirm Confirmer) *harness {
	h := &harness{
		store:     &fakeStore{},
		driver:    &fakeDriver{},
		configure: &fakeConfigure{},
		prober:    &fakeProber{},
	}
	h.orch = New(Options{
		Config:    cfg,
		Store:     h.store,
		Provision: h.driver,
		Configure: h.configure,
		Prober:    h.prober,
		Confirm:   confirm,
		Logger:    zerolog.Nop(),
	})
	return h
}

func stateWith(nodes ...fleet.NodeState) fleet.State {
	st := fleet.NewState()
	for _, node := range nodes {
		st.Nodes[node.Name] = node
	}
	return st
}

func recordedNode(spec fleet.NodeSpec, address string) fleet.NodeState {
	return fleet.NodeState{
		Name:              spec.Name,
		PublicAddress:     address,
		ProvisionedAt:     time.Now().UTC(),
		ConfigFingerprint: fleet.Fingerprint(spec),
	}
}

func TestRunNoChanges(t *testing.T) {
	cfg := testConfig(map[string]config.NodeConfig{
		"node-a": {Region: "fsn1"},
	})
	spec := cfg.DesiredNodes()["node-a"]

	h := newHarness(cfg, declineConfirm{})
	h.store.st = stateWith(recordedNode(spec, "192.0.2.1"))

	res, err := h.orch.Run(context.Background(), ModeDeploy)
	require.NoError(t, err)
	assert.Equal(t, StatusNoChanges, res.Status)
	assert.Empty(t, h.store.saved, "no-op pass must not rewrite state")
	assert.Empty(t, h.configure.calls)
}

func TestRunCreatesAndPersists(t *testing.T) {
	cfg := testConfig(map[string]config.NodeConfig{
		"node-a": {Region: "fsn1"},
		"node-b": {Region: "nbg1"},
	})
	confirm := &recordingConfirm{}
	h := newHarness(cfg, confirm)

	res, err := h.orch.Run(context.Background(), ModeDeploy)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Status)
	assert.Len(t, res.Created, 2)
	assert.Contains(t, confirm.prompt, "node-a")

	require.Len(t, h.store.saved, 1)
	assert.Len(t, h.store.saved[0].Nodes, 2)

	assert.Len(t, h.prober.probed, 2)

	require.Len(t, h.configure.calls, 1)
	call := h.configure.calls[0]
	assert.Equal(t, "node-configure.yml", call.playbook)
	assert.Equal(t, []string{"node-a", "node-b"}, call.targets)
	assert.Equal(t, "true", call.vars["reboot_infra"], "fresh nodes reboot after first configuration")
	assert.Equal(t, "prod", call.vars["fleet_env"])
}

func TestRunDeclinedIsCanceledNotFailed(t *testing.T) {
	cfg := testConfig(map[string]config.NodeConfig{"node-a": {Region: "fsn1"}})
	h := newHarness(cfg, declineConfirm{})

	res, err := h.orch.Run(context.Background(), ModeDeploy)
	require.NoError(t, err)

	assert.Equal(t, StatusCanceled, res.Status)
	assert.Empty(t, h.store.saved)
	assert.Empty(t, h.driver.destroyed)
	for _, p := range h.driver.plans {
		assert.False(t, p.applied, "declined run must not apply the plan")
	}
}

func TestRunPartialProvisionFailurePersistsSuccesses(t *testing.T) {
	cfg := testConfig(map[string]config.NodeConfig{
		"node-a": {Region: "fsn1"},
		"node-b": {Region: "nbg1"},
	})
	specA := cfg.DesiredNodes()["node-a"]

	h := newHarness(cfg, AutoApprove{})
	h.driver.applyErr = &provision.Error{
		Succeeded: map[string]fleet.NodeState{"node-a": recordedNode(specA, "192.0.2.1")},
		Failed:    map[string]error{"node-b": errors.New("resource_unavailable")},
	}

	_, err := h.orch.Run(context.Background(), ModeDeploy)
	require.Error(t, err)

	var perr *provision.Error
	require.True(t, errors.As(err, &perr))

	require.Len(t, h.store.saved, 1)
	saved := h.store.saved[0]
	assert.Contains(t, saved.Nodes, "node-a")
	assert.NotContains(t, saved.Nodes, "node-b")

	// The rerun only re-attempts the failed node.
	delta := fleet.Diff(cfg.DesiredNodes(), saved.Nodes)
	assert.Equal(t, []string{"node-b"}, delta.CreateNames())
}

func TestRunProbeFailureDoesNotPersistCreates(t *testing.T) {
	cfg := testConfig(map[string]config.NodeConfig{"node-a": {Region: "fsn1"}})
	stale := fleet.NodeState{Name: "node-gone", PublicAddress: "192.0.2.99", ConfigFingerprint: "x"}

	h := newHarness(cfg, AutoApprove{})
	h.store.st = stateWith(stale)
	h.prober.failFor = map[string]error{"192.0.2.1": errors.New("connection refused")}

	_, err := h.orch.Run(context.Background(), ModeDeploy)
	require.Error(t, err)
	assert.ErrorContains(t, err, "node-a")

	// The confirmed destroy is recorded; the unreachable create is not.
	require.Len(t, h.store.saved, 1)
	saved := h.store.saved[0]
	assert.NotContains(t, saved.Nodes, "node-gone")
	assert.NotContains(t, saved.Nodes, "node-a")
	assert.Empty(t, h.configure.calls)
}

func TestRunAdoptsUnrecordedServers(t *testing.T) {
	// A prior run provisioned node-a but died before probing, so the server
	// exists in the backend while the recorded state is empty. The rerun
	// must pick it up end to end, not report a clean no-op.
	cfg := testConfig(map[string]config.NodeConfig{"node-a": {Region: "fsn1"}})

	// declineConfirm doubles as proof that adoption needs no confirmation:
	// a prompt here would cancel the run.
	h := newHarness(cfg, declineConfirm{})
	h.driver.adoptAll = true

	res, err := h.orch.Run(context.Background(), ModeDeploy)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Status)
	assert.Equal(t, []string{"192.0.2.1"}, h.prober.probed)

	require.Len(t, h.configure.calls, 1)
	assert.Equal(t, []string{"node-a"}, h.configure.calls[0].targets)

	require.Len(t, h.store.saved, 1)
	assert.Contains(t, h.store.saved[0].Nodes, "node-a")
}

func TestRunReplacementRefreshesFingerprint(t *testing.T) {
	cfg := testConfig(map[string]config.NodeConfig{
		"node-a": {Region: "fsn1", Inbounds: []string{"vless-tcp"}},
	})
	spec := cfg.DesiredNodes()["node-a"]
	stale := recordedNode(spec, "192.0.2.1")
	stale.ConfigFingerprint = "stale"

	h := newHarness(cfg, AutoApprove{})
	h.store.st = stateWith(stale)

	res, err := h.orch.Run(context.Background(), ModeDeploy)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Status)
	assert.Equal(t, []string{"node-a"}, h.driver.replaced)

	require.Len(t, h.store.saved, 1)
	saved := h.store.saved[0].Nodes["node-a"]
	assert.Equal(t, fleet.Fingerprint(spec), saved.ConfigFingerprint)
	assert.Equal(t, "192.0.2.1", saved.PublicAddress, "replacement keeps the compute instance")

	// full-on-replace widens configuration to the whole fleet.
	require.Len(t, h.configure.calls, 1)
	assert.Equal(t, []string{"node-a"}, h.configure.calls[0].targets)
	assert.Equal(t, "false", h.configure.calls[0].vars["reboot_infra"], "no fresh nodes, no reboot")
}

func TestRunReconfigurePolicyTargeted(t *testing.T) {
	cfg := testConfig(map[string]config.NodeConfig{
		"node-a": {Region: "fsn1"},
		"node-b": {Region: "nbg1"},
	})
	cfg.Fleet.Reconfigure = config.ReconfigureTargeted
	specA := cfg.DesiredNodes()["node-a"]

	h := newHarness(cfg, AutoApprove{})
	h.store.st = stateWith(recordedNode(specA, "192.0.2.1"))

	_, err := h.orch.Run(context.Background(), ModeDeploy)
	require.NoError(t, err)

	require.Len(t, h.configure.calls, 1)
	assert.Equal(t, []string{"node-b"}, h.configure.calls[0].targets)
}

func TestRunReconfigurePolicyAlwaysFull(t *testing.T) {
	cfg := testConfig(map[string]config.NodeConfig{
		"node-a": {Region: "fsn1"},
		"node-b": {Region: "nbg1"},
	})
	cfg.Fleet.Reconfigure = config.ReconfigureAlwaysFull
	specA := cfg.DesiredNodes()["node-a"]

	h := newHarness(cfg, AutoApprove{})
	h.store.st = stateWith(recordedNode(specA, "192.0.2.1"))

	_, err := h.orch.Run(context.Background(), ModeDeploy)
	require.NoError(t, err)

	require.Len(t, h.configure.calls, 1)
	assert.Equal(t, []string{"node-a", "node-b"}, h.configure.calls[0].targets)
}

func TestRunApplyModeSkipsConfigure(t *testing.T) {
	cfg := testConfig(map[string]config.NodeConfig{"node-a": {Region: "fsn1"}})
	h := newHarness(cfg, AutoApprove{})

	res, err := h.orch.Run(context.Background(), ModeApply)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Status)
	assert.Empty(t, h.configure.calls)
	require.Len(t, h.store.saved, 1)
	assert.Contains(t, h.store.saved[0].Nodes, "node-a")
}

func TestRunRebootConfiguresWholeFleet(t *testing.T) {
	cfg := testConfig(nil)
	h := newHarness(cfg, AutoApprove{})
	h.store.st = stateWith(
		fleet.NodeState{Name: "node-a", PublicAddress: "192.0.2.1"},
		fleet.NodeState{Name: "node-b", PublicAddress: "192.0.2.2"},
	)

	res, err := h.orch.Run(context.Background(), ModeReboot)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Status)
	assert.Empty(t, h.store.saved, "reboot does not change recorded state")

	require.Len(t, h.configure.calls, 1)
	call := h.configure.calls[0]
	assert.Equal(t, "reboot.yml", call.playbook)
	assert.Equal(t, []string{"node-a", "node-b"}, call.targets)
	assert.Equal(t, "true", call.vars["reboot_infra"])
	assert.Equal(t, "node-a,node-b", call.vars["target_hosts"])
}

func TestRunDestroyConfirmed(t *testing.T) {
	cfg := testConfig(nil)
	confirm := &recordingConfirm{}
	h := newHarness(cfg, confirm)
	h.store.st = stateWith(
		fleet.NodeState{Name: "node-a", PublicAddress: "192.0.2.1"},
		fleet.NodeState{Name: "node-b", PublicAddress: "192.0.2.2"},
	)

	res, err := h.orch.Run(context.Background(), ModeDestroy)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Status)
	assert.Contains(t, confirm.prompt, "node-a")
	require.Len(t, h.driver.destroyed, 1)
	assert.Equal(t, []string{"node-a", "node-b"}, h.driver.destroyed[0])

	require.Len(t, h.store.saved, 1)
	assert.Empty(t, h.store.saved[0].Nodes)
}

func TestRunDestroyDeclined(t *testing.T) {
	cfg := testConfig(nil)
	h := newHarness(cfg, declineConfirm{})
	h.store.st = stateWith(fleet.NodeState{Name: "node-a", PublicAddress: "192.0.2.1"})

	res, err := h.orch.Run(context.Background(), ModeDestroy)
	require.NoError(t, err)

	assert.Equal(t, StatusCanceled, res.Status)
	assert.Empty(t, h.driver.destroyed)
	assert.Empty(t, h.store.saved)
}

func TestRunDestroyEmptyFleet(t *testing.T) {
	cfg := testConfig(nil)
	h := newHarness(cfg, declineConfirm{})

	res, err := h.orch.Run(context.Background(), ModeDestroy)
	require.NoError(t, err)
	assert.Equal(t, StatusNoChanges, res.Status)
}

func TestRunLockedStoreFailsFast(t *testing.T) {
	cfg := testConfig(map[string]config.NodeConfig{"node-a": {Region: "fsn1"}})
	h := newHarness(cfg, AutoApprove{})
	h.store.locked = true

	_, err := h.orch.Run(context.Background(), ModeDeploy)
	assert.ErrorIs(t, err, state.ErrLocked)
}
