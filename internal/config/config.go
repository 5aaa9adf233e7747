// Package config handles bluelock configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/bluelock/internal/logic"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./bluelock.yaml, ~/.config/bluelock/bluelock.yaml, /etc/bluelock/bluelock.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"bluelock.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "bluelock", "bluelock.yaml"))
	}

	paths = append(paths, "/etc/bluelock/bluelock.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists,
// or "" if there is none (defaults apply).
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Config holds all bluelock configuration.
type Config struct {
	Target        TargetConfig  `yaml:"target"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MissThreshold int           `yaml:"miss_threshold"`
	HitThreshold  int           `yaml:"hit_threshold"`
	LockEnabled   bool          `yaml:"lock_enabled"`
	WakeEnabled   bool          `yaml:"wake_enabled"`
	Probe         ProbeConfig   `yaml:"probe"`
	Actions       ActionsConfig `yaml:"actions"`
	MQTT          MQTTConfig    `yaml:"mqtt"`
	HTTP          HTTPConfig    `yaml:"http"`
	Database      string        `yaml:"database"`
	LogLevel      string        `yaml:"log_level"`
}

// TargetConfig pins the monitored device. Empty ID means "use the
// persisted selection".
type TargetConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Probe kinds.
const (
	ProbeBlueZ   = "bluez"
	ProbeCommand = "command"
	// ProbeChain tries BlueZ first, then the command.
	ProbeChain = "chain"
)

// ProbeConfig selects and tunes the probe adapter.
type ProbeConfig struct {
	Kind    string        `yaml:"kind"`
	Adapter string        `yaml:"adapter"`
	Timeout time.Duration `yaml:"timeout"`
	// MinRSSI in dBm; weaker readings from a disconnected device count as
	// absent. Connected devices are always present. 0 disables.
	MinRSSI int `yaml:"min_rssi"`
	// AssumedRSSI is reported for connected devices without a reading.
	AssumedRSSI int    `yaml:"assumed_rssi"`
	Command     string `yaml:"command"`
}

// Action kinds. ActionsConfig.Kind may list several, comma separated.
const (
	ActionLogind  = "logind"
	ActionCommand = "command"
	ActionGPIO    = "gpio"
	ActionNone    = "none"
)

// ActionsConfig selects the action adapters.
type ActionsConfig struct {
	Kind          string `yaml:"kind"`
	LockCommand   string `yaml:"lock_command"`
	WakeCommand   string `yaml:"wake_command"`
	GPIOChip      string `yaml:"gpio_chip"`
	GPIOLine      int    `yaml:"gpio_line"`
	GPIOActiveLow bool   `yaml:"gpio_active_low"`
}

// Kinds returns the configured action kinds.
func (a ActionsConfig) Kinds() []string {
	var kinds []string
	for _, k := range strings.Split(a.Kind, ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// MQTTConfig configures event publishing. Empty Broker disables MQTT.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// HTTPConfig configures the status server. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads configuration from a YAML file on top of Default().
// An empty path returns Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		PollInterval:  logic.DefaultPollInterval,
		MissThreshold: logic.DefaultMissThreshold,
		HitThreshold:  logic.DefaultHitThreshold,
		LockEnabled:   true,
		WakeEnabled:   true,
		Probe: ProbeConfig{
			Kind:    ProbeBlueZ,
			Adapter: "hci0",
			Timeout: 2 * time.Second,
			MinRSSI: -70,
		},
		Actions: ActionsConfig{
			Kind:     ActionLogind,
			GPIOChip: "gpiochip0",
			GPIOLine: 17,
		},
		MQTT: MQTTConfig{
			ClientID:  "bluelock",
			Heartbeat: 15 * time.Minute,
		},
		HTTP:     HTTPConfig{Listen: ":8080"},
		Database: DefaultDatabasePath(),
		LogLevel: "info",
	}
}

// DefaultDatabasePath returns ~/.config/bluelock/bluelock.db, or
// ./bluelock.db if the home directory is unknown.
func DefaultDatabasePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "bluelock", "bluelock.db")
	}
	return "bluelock.db"
}

// Monitor builds the session config for targetID.
func (c *Config) Monitor(targetID string) logic.Config {
	return logic.Config{
		TargetID:      targetID,
		PollInterval:  c.PollInterval,
		MissThreshold: c.MissThreshold,
		HitThreshold:  c.HitThreshold,
		Actions: logic.ActionGates{
			LockEnabled: c.LockEnabled,
			WakeEnabled: c.WakeEnabled,
		},
	}
}

// Validate checks everything except the target, which may be chosen later.
func (c *Config) Validate() error {
	var errs []error

	mc := c.Monitor("placeholder")
	if err := mc.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Probe.Kind {
	case ProbeBlueZ:
	case ProbeCommand, ProbeChain:
		if strings.TrimSpace(c.Probe.Command) == "" {
			errs = append(errs, fmt.Errorf("probe.command is required for probe kind %q", c.Probe.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown probe kind %q (valid: bluez, command, chain)", c.Probe.Kind))
	}
	for _, k := range c.Actions.Kinds() {
		switch k {
		case ActionLogind, ActionGPIO, ActionNone:
		case ActionCommand:
			if c.Actions.LockCommand == "" && c.Actions.WakeCommand == "" {
				errs = append(errs, errors.New("actions.lock_command or actions.wake_command is required for the command action"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown action kind %q (valid: logind, command, gpio, none)", k))
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
