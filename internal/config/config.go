package config

import (
	"time"

	"github.com/krisavpn/fleetctl/internal/fleet"
)

// Reconfigure policies decide which hosts the configuration step targets
// after provisioning. Fresh nodes always need full configuration; unchanged
// nodes normally should not be re-touched, but a full run must stay
// available for drift correction.
const (
	// ReconfigureTargeted configures only newly created nodes.
	ReconfigureTargeted = "targeted"
	// ReconfigureFullOnReplace configures the full fleet when any
	// registration replacement occurred, otherwise only new nodes.
	ReconfigureFullOnReplace = "full-on-replace"
	// ReconfigureAlwaysFull configures the full fleet on every pass.
	ReconfigureAlwaysFull = "always-full"
)

// Config is the top-level fleet configuration.
type Config struct {
	Fleet     FleetConfig     `mapstructure:"fleet"`
	Provision ProvisionConfig `mapstructure:"provision"`
	State     StateConfig     `mapstructure:"state"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Configure ConfigureConfig `mapstructure:"configure"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
}

// FleetConfig declares the desired topology.
type FleetConfig struct {
	Name        string                `mapstructure:"name"`
	DefaultPlan string                `mapstructure:"default_plan"`
	DefaultPort int                   `mapstructure:"default_port"`
	Reconfigure string                `mapstructure:"reconfigure"`
	Nodes       map[string]NodeConfig `mapstructure:"nodes"`
}

// NodeConfig is one declared node. Name comes from the map key.
type NodeConfig struct {
	Region   string            `mapstructure:"region"`
	Plan     string            `mapstructure:"plan"`
	Port     int               `mapstructure:"port"`
	Inbounds []string          `mapstructure:"inbounds"`
	Tags     map[string]string `mapstructure:"tags"`
}

// ProvisionConfig configures the provisioning backend.
type ProvisionConfig struct {
	Image   string   `mapstructure:"image"`
	SSHKeys []string `mapstructure:"ssh_keys"`
	DNSZone string   `mapstructure:"dns_zone"`
}

// StateConfig selects and configures the state store backend.
type StateConfig struct {
	Backend string   `mapstructure:"backend"` // "file" or "s3"
	Path    string   `mapstructure:"path"`
	S3      S3Config `mapstructure:"s3"`
}

// S3Config configures the S3 state backend.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Key       string `mapstructure:"key"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// ProbeConfig configures the management-channel connectivity probe.
type ProbeConfig struct {
	User           string        `mapstructure:"user"`
	KeyPath        string        `mapstructure:"key_path"`
	KnownHostsPath string        `mapstructure:"known_hosts"`
	Port           int           `mapstructure:"port"`
	Interval       time.Duration `mapstructure:"interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// ConfigureConfig configures the configuration-management backend.
type ConfigureConfig struct {
	Dir            string            `mapstructure:"dir"`
	Inventory      string            `mapstructure:"inventory"`
	Playbook       string            `mapstructure:"playbook"`
	RebootPlaybook string            `mapstructure:"reboot_playbook"`
	Vars           map[string]string `mapstructure:"vars"`
}

// SecretsConfig locates the generated-secrets file.
type SecretsConfig struct {
	Path string `mapstructure:"path"`
}

// DesiredNodes expands the declared topology into the spec map the differ
// consumes, applying fleet-level defaults.
func (c *Config) DesiredNodes() map[string]fleet.NodeSpec {
	specs := make(map[string]fleet.NodeSpec, len(c.Fleet.Nodes))
	for name, node := range c.Fleet.Nodes {
		spec := fleet.NodeSpec{
			Name:     name,
			Region:   node.Region,
			Plan:     node.Plan,
			Port:     node.Port,
			Inbounds: node.Inbounds,
			Tags:     node.Tags,
		}
		if spec.Plan == "" {
			spec.Plan = c.Fleet.DefaultPlan
		}
		if spec.Port == 0 {
			spec.Port = c.Fleet.DefaultPort
		}
		specs[name] = spec
	}
	return specs
}
