package config

import (
	"encoding/json"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/racksync/racksync/internal/facts"
)

const (
	// DefaultConfigFile is the default path to the configuration file.
	DefaultConfigFile = "/etc/racksync/config.yaml"
	// DefaultStateCache is the default path of the local sync-state
	// cache database.
	DefaultStateCache = "/var/lib/racksync/state.db"
)

// Service holds the remote inventory API endpoint settings.
type Service struct {
	Server string `json:"server"`
	Token  string `json:"token,omitempty"`
}

// Overrides are identity values substituted for probed DMI facts.
// Resolution precedence is CLI > environment > config file > probed.
type Overrides struct {
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Serial       string `json:"serial,omitempty"`
}

// Config is the full configuration surface consumed by the engine.
type Config struct {
	Service Service `json:"service"`

	// Placement defaults used when no location driver supplies the
	// field.
	Site       string `json:"site,omitempty"`
	DeviceRole string `json:"deviceRole,omitempty"`
	Status     string `json:"status,omitempty"`

	// LocationFields maps placement field names to driver specs.
	LocationFields map[string]facts.FieldSpec `json:"locationFields,omitempty"`

	// ExpandVirtualDrives splits disks into a virtual-drive /
	// physical-disk inventory hierarchy.
	ExpandVirtualDrives bool `json:"expandVirtualDrives,omitempty"`
	// ExpansionAsDevice registers expansion hardware as a separate
	// child device instead of folding it into the parent's inventory.
	ExpansionAsDevice bool `json:"expansionAsDevice,omitempty"`

	// StateCachePath is the sqlite file backing stale-item detection.
	StateCachePath string `json:"stateCachePath,omitempty"`

	// Listen enables the status endpoint when non-empty.
	Listen string `json:"listen,omitempty"`

	LogLevel string `json:"logLevel,omitempty"`

	// Overrides is the config-file layer of identity overrides.
	Overrides Overrides `json:"overrides,omitempty"`
}

// envOverrides is the environment layer of identity overrides.
type envOverrides struct {
	Manufacturer string `envconfig:"RACKSYNC_MANUFACTURER"`
	Model        string `envconfig:"RACKSYNC_MODEL"`
	Serial       string `envconfig:"RACKSYNC_SERIAL"`
}

func NewDefault() *Config {
	return &Config{
		Status:         "active",
		DeviceRole:     "server",
		StateCachePath: DefaultStateCache,
		LogLevel:       "info",
	}
}

// ParseConfigFile reads the config file and unmarshals it over the
// defaults.
func (cfg *Config) ParseConfigFile(cfgFile string) error {
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return errors.Wrap(err, "failed to unmarshal config file")
	}
	return nil
}

func (cfg *Config) Validate() error {
	if cfg.Service.Server == "" {
		return errors.New("service.server is required")
	}
	return nil
}

func (cfg *Config) String() string {
	redacted := *cfg
	if redacted.Service.Token != "" {
		redacted.Service.Token = "<redacted>"
	}
	contents, err := json.Marshal(redacted)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}

// ResolveOverrides collapses the CLI, environment and config-file
// layers into one immutable override set, applied once at startup.
func ResolveOverrides(cli Overrides, file Overrides) (Overrides, error) {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return Overrides{}, errors.Wrap(err, "processing environment overrides")
	}
	return Overrides{
		Manufacturer: firstNonEmpty(cli.Manufacturer, env.Manufacturer, file.Manufacturer),
		Model:        firstNonEmpty(cli.Model, env.Model, file.Model),
		Serial:       firstNonEmpty(cli.Serial, env.Serial, file.Serial),
	}, nil
}

// Apply substitutes the overrides for probed DMI values. Probed values
// survive only where no layer overrides them.
func (o Overrides) Apply(dmi facts.DMI) facts.DMI {
	dmi.Manufacturer = firstNonEmpty(o.Manufacturer, dmi.Manufacturer)
	dmi.ProductName = firstNonEmpty(o.Model, dmi.ProductName)
	dmi.Serial = firstNonEmpty(o.Serial, dmi.Serial)
	return dmi
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
