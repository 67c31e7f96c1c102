// Package hcloud implements the provisioning driver on Hetzner Cloud.
// Each fleet node is one cloud server plus one DNS A record; servers are
// discovered by fleet label, never by scraping external tool state.
package hcloud

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/krisavpn/fleetctl/internal/fleet"
	"github.com/krisavpn/fleetctl/internal/provision"
)

const (
	labelFleet = "fleet"
	labelNode  = "fleet-node"
)

// serverAPI is the slice of hcloud's ServerClient the driver uses.
type serverAPI interface {
	AllWithOpts(ctx context.Context, opts hcloud.ServerListOpts) ([]*hcloud.Server, error)
	Create(ctx context.Context, opts hcloud.ServerCreateOpts) (hcloud.ServerCreateResult, *hcloud.Response, error)
	GetByName(ctx context.Context, name string) (*hcloud.Server, *hcloud.Response, error)
	DeleteWithResult(ctx context.Context, server *hcloud.Server) (*hcloud.ServerDeleteResult, *hcloud.Response, error)
}

// actionAPI waits for asynchronous hcloud actions.
type actionAPI interface {
	WaitFor(ctx context.Context, actions ...*hcloud.Action) error
}

// dnsAPI is the slice of the Cloudflare client the driver uses.
type dnsAPI interface {
	ZoneID(ctx context.Context, zone string) (string, error)
	EnsureARecord(ctx context.Context, zoneID, fqdn, address string) error
	DeleteARecord(ctx context.Context, zoneID, fqdn string) error
}

// Options configures the driver.
type Options struct {
	FleetName string
	Image     string
	SSHKeys   []string
	DNSZone   string
}

// Driver provisions fleet nodes on Hetzner Cloud.
type Driver struct {
	servers serverAPI
	actions actionAPI
	dns     dnsAPI
	opts    Options

	zoneID string
}

// NewDriver creates a driver from an hcloud client, a DNS client and
// options.
func NewDriver(client *hcloud.Client, dns dnsAPI, opts Options) *Driver {
	return &Driver{
		servers: &client.Server,
		actions: &client.Action,
		dns:     dns,
		opts:    opts,
	}
}

func (d *Driver) labelSelector() string {
	return fmt.Sprintf("%s=%s", labelFleet, d.opts.FleetName)
}

func (d *Driver) fqdn(name string) string {
	return name + "." + d.opts.DNSZone
}

func (d *Driver) zone(ctx context.Context) (string, error) {
	if d.zoneID != "" {
		return d.zoneID, nil
	}
	id, err := d.dns.ZoneID(ctx, d.opts.DNSZone)
	if err != nil {
		return "", fmt.Errorf("failed to resolve DNS zone %s: %w", d.opts.DNSZone, err)
	}
	d.zoneID = id
	return id, nil
}

// PlanCreate implements provision.Driver. Specs whose servers already
// exist are adopted rather than re-created: their plan entries resolve to
// the live server, so a rerun after a failed probe or configuration picks
// the node back up instead of abandoning it between backend and state.
func (d *Driver) PlanCreate(ctx context.Context, specs []fleet.NodeSpec) (provision.Plan, error) {
	existing, err := d.servers.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: d.labelSelector()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list fleet servers: %w", err)
	}

	have := make(map[string]*hcloud.Server, len(existing))
	for _, srv := range existing {
		have[srv.Name] = srv
	}

	var pending []fleet.NodeSpec
	var adopt []adoption
	for _, spec := range specs {
		if srv, ok := have[spec.Name]; ok {
			adopt = append(adopt, adoption{spec: spec, server: srv})
			continue
		}
		pending = append(pending, spec)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Name < pending[j].Name })
	sort.Slice(adopt, func(i, j int) bool { return adopt[i].spec.Name < adopt[j].spec.Name })

	return &plan{driver: d, pending: pending, adopt: adopt}, nil
}

// adoption pairs a declared spec with the live server that already backs it.
type adoption struct {
	spec   fleet.NodeSpec
	server *hcloud.Server
}

// plan is a single-use create plan.
type plan struct {
	driver   *Driver
	pending  []fleet.NodeSpec
	adopt    []adoption
	consumed bool
}

func (p *plan) Result() provision.PlanResult {
	if len(p.pending) == 0 {
		return provision.PlanNoChanges
	}
	return provision.PlanChangesPending
}

func (p *plan) Summary() string {
	if len(p.pending) == 0 && len(p.adopt) == 0 {
		return "no servers to create"
	}

	var parts []string
	if len(p.pending) > 0 {
		names := make([]string, len(p.pending))
		for i, spec := range p.pending {
			names[i] = fmt.Sprintf("%s (%s, %s)", spec.Name, spec.Region, spec.Plan)
		}
		parts = append(parts, fmt.Sprintf("create %d server(s): %s", len(names), strings.Join(names, ", ")))
	}
	if len(p.adopt) > 0 {
		names := make([]string, len(p.adopt))
		for i, a := range p.adopt {
			names[i] = a.spec.Name
		}
		parts = append(parts, fmt.Sprintf("adopt %d existing server(s): %s", len(names), strings.Join(names, ", ")))
	}
	return strings.Join(parts, "; ")
}

func (p *plan) Apply(ctx context.Context) (map[string]fleet.NodeState, error) {
	if p.consumed {
		return nil, fmt.Errorf("plan already applied")
	}
	p.consumed = true

	succeeded := make(map[string]fleet.NodeState, len(p.pending)+len(p.adopt))
	failed := make(map[string]error)

	for _, a := range p.adopt {
		node, err := p.driver.adoptNode(ctx, a.spec, a.server)
		if err != nil {
			failed[a.spec.Name] = err
			continue
		}
		succeeded[a.spec.Name] = node
	}

	for _, spec := range p.pending {
		node, err := p.driver.createNode(ctx, spec)
		if err != nil {
			failed[spec.Name] = err
			continue
		}
		succeeded[spec.Name] = node
	}

	if len(failed) > 0 {
		return succeeded, &provision.Error{Succeeded: succeeded, Failed: failed}
	}
	return succeeded, nil
}

// adoptNode turns a live server into a node state without touching the
// instance. The DNS record is still ensured: the run that created the
// server may have died before registering it.
func (d *Driver) adoptNode(ctx context.Context, spec fleet.NodeSpec, srv *hcloud.Server) (fleet.NodeState, error) {
	if srv.PublicNet.IPv4.IP == nil {
		return fleet.NodeState{}, fmt.Errorf("existing server has no public IPv4")
	}
	address := srv.PublicNet.IPv4.IP.String()

	zoneID, err := d.zone(ctx)
	if err != nil {
		return fleet.NodeState{}, err
	}
	if err := d.dns.EnsureARecord(ctx, zoneID, d.fqdn(spec.Name), address); err != nil {
		return fleet.NodeState{}, fmt.Errorf("failed to register DNS record: %w", err)
	}

	return fleet.NodeState{
		Name:              spec.Name,
		PublicAddress:     address,
		ProvisionedAt:     srv.Created,
		ConfigFingerprint: fleet.Fingerprint(spec),
	}, nil
}

func (d *Driver) createNode(ctx context.Context, spec fleet.NodeSpec) (fleet.NodeState, error) {
	labels := map[string]string{
		labelFleet: d.opts.FleetName,
		labelNode:  spec.Name,
	}
	for k, v := range spec.Tags {
		labels[k] = v
	}

	sshKeys := make([]*hcloud.SSHKey, len(d.opts.SSHKeys))
	for i, name := range d.opts.SSHKeys {
		sshKeys[i] = &hcloud.SSHKey{Name: name}
	}

	result, _, err := d.servers.Create(ctx, hcloud.ServerCreateOpts{
		Name:       spec.Name,
		ServerType: &hcloud.ServerType{Name: spec.Plan},
		Image:      &hcloud.Image{Name: d.opts.Image},
		Location:   &hcloud.Location{Name: spec.Region},
		SSHKeys:    sshKeys,
		Labels:     labels,
	})
	if err != nil {
		return fleet.NodeState{}, fmt.Errorf("failed to create server: %w", err)
	}
	if err := d.actions.WaitFor(ctx, result.Action); err != nil {
		return fleet.NodeState{}, fmt.Errorf("failed to wait for server creation: %w", err)
	}

	if result.Server == nil || result.Server.PublicNet.IPv4.IP == nil {
		return fleet.NodeState{}, fmt.Errorf("server created without public IPv4")
	}
	address := result.Server.PublicNet.IPv4.IP.String()

	zoneID, err := d.zone(ctx)
	if err != nil {
		return fleet.NodeState{}, err
	}
	if err := d.dns.EnsureARecord(ctx, zoneID, d.fqdn(spec.Name), address); err != nil {
		return fleet.NodeState{}, fmt.Errorf("failed to register DNS record: %w", err)
	}

	return fleet.NodeState{
		Name:              spec.Name,
		PublicAddress:     address,
		ProvisionedAt:     time.Now().UTC(),
		ConfigFingerprint: fleet.Fingerprint(spec),
	}, nil
}

// Destroy implements provision.Driver. Missing servers and records are
// skipped so a rerun after partial failure converges.
func (d *Driver) Destroy(ctx context.Context, names []string) error {
	zoneID, err := d.zone(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		server, _, err := d.servers.GetByName(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to look up server %s: %w", name, err)
		}
		if server != nil {
			result, _, err := d.servers.DeleteWithResult(ctx, server)
			if err != nil {
				return fmt.Errorf("failed to delete server %s: %w", name, err)
			}
			if err := d.actions.WaitFor(ctx, result.Action); err != nil {
				return fmt.Errorf("failed to wait for deletion of %s: %w", name, err)
			}
		}
		if err := d.dns.DeleteARecord(ctx, zoneID, d.fqdn(name)); err != nil {
			return fmt.Errorf("failed to delete DNS record for %s: %w", name, err)
		}
	}
	return nil
}

// ReplaceRegistration implements provision.Driver. The registration API
// has no in-place update, so the record is deleted and recreated at the
// node's current address.
func (d *Driver) ReplaceRegistration(ctx context.Context, nodes []fleet.NodeState) error {
	zoneID, err := d.zone(ctx)
	if err != nil {
		return err
	}

	for _, node := range nodes {
		fqdn := d.fqdn(node.Name)
		if err := d.dns.DeleteARecord(ctx, zoneID, fqdn); err != nil {
			return fmt.Errorf("failed to remove registration for %s: %w", node.Name, err)
		}
		if err := d.dns.EnsureARecord(ctx, zoneID, fqdn, node.PublicAddress); err != nil {
			return fmt.Errorf("failed to re-register %s: %w", node.Name, err)
		}
	}
	return nil
}

// Read implements provision.Driver, returning the backend's live view of
// the fleet.
func (d *Driver) Read(ctx context.Context) (map[string]fleet.NodeState, error) {
	servers, err := d.servers.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: d.labelSelector()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list fleet servers: %w", err)
	}

	nodes := make(map[string]fleet.NodeState, len(servers))
	for _, srv := range servers {
		var address string
		if srv.PublicNet.IPv4.IP != nil {
			address = srv.PublicNet.IPv4.IP.String()
		}
		name := srv.Labels[labelNode]
		if name == "" {
			name = srv.Name
		}
		nodes[name] = fleet.NodeState{
			Name:          name,
			PublicAddress: address,
			ProvisionedAt: srv.Created,
		}
	}
	return nodes, nil
}
