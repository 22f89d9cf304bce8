package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Satconf types accepted in frontends[].satconf.type.
const (
	SatConfSimple   = "simple"
	SatConf2Port    = "2port"
	SatConf4Port    = "4port"
	SatConfUnicable = "unicable"
	SatConfAdvanced = "advanced"
)

// Frontend drivers accepted in frontends[].driver.
const (
	DriverLinuxDVB  = "linuxdvb"
	DriverSimulated = "simulated"
)

// Unicable standards accepted in unicable.standard.
const (
	StandardEN50494 = "en50494"
	StandardEN50607 = "en50607"
)

// Config is the root configuration structure for SatLink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig       `yaml:"site"`
	Database  DatabaseConfig   `yaml:"database"`
	MQTT      MQTTConfig       `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig   `yaml:"influxdb"`
	Logging   LoggingConfig    `yaml:"logging"`
	Tuning    TuningConfig     `yaml:"tuning"`
	Frontends []FrontendConfig `yaml:"frontends"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Antenna is the default dish location used by USALS rotors when a
	// satconf does not carry its own.
	Antenna GeoConfig `yaml:"antenna"`
}

// GeoConfig is a dish location. Latitude and longitude are magnitudes in
// degrees; the hemisphere flags select south and west.
type GeoConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Altitude  float64 `yaml:"altitude"`
	South     bool    `yaml:"south"`
	West      bool    `yaml:"west"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// JournalDays is how long tuning journal rows are kept. 0 keeps them
	// forever.
	JournalDays int `yaml:"journal_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TuningConfig holds the global tuning policy shared by every satconf.
type TuningConfig struct {
	// DiseqcRepeats is the number of extra transmissions of each DiseqC
	// command. 0 sends every command once.
	DiseqcRepeats int `yaml:"diseqc_repeats"`

	// DiseqcFull re-sends switch, tone and voltage commands on every tune,
	// ignoring the session cache.
	DiseqcFull bool `yaml:"diseqc_full"`

	// SwitchRotor drives the switch before the rotor. Default is rotor first.
	SwitchRotor bool `yaml:"switch_rotor"`

	// EarlyTune asks the frontend to lock before DiseqC is sent.
	EarlyTune bool `yaml:"early_tune"`

	// LNBPowerOff switches the LNB supply off when a mux is stopped.
	LNBPowerOff bool `yaml:"lnb_poweroff"`
}

// FrontendConfig describes one DVB-S frontend and its antenna wiring.
type FrontendConfig struct {
	Name    string        `yaml:"name"`
	Device  string        `yaml:"device"`
	Driver  string        `yaml:"driver"`
	SatConf SatConfConfig `yaml:"satconf"`
}

// SatConfConfig describes the antenna topology of one frontend.
type SatConfConfig struct {
	Type string `yaml:"type"`

	// MotorRate is the rotor slew rate in milliseconds per degree.
	// 0 means unknown; every move then waits MaxRotorMove seconds.
	MotorRate int `yaml:"motor_rate"`

	// MaxRotorMove is the worst case rotor move time in seconds.
	// Default: 120
	MaxRotorMove int `yaml:"max_rotor_move"`

	// MinRotorMove is added to the computed rotor move time in seconds.
	MinRotorMove int `yaml:"min_rotor_move"`

	// Site overrides site.antenna for USALS computations.
	Site *GeoConfig `yaml:"site,omitempty"`

	// Unicable is shared by both positions of a "unicable" satconf.
	Unicable *UnicableConfig `yaml:"unicable,omitempty"`

	Elements []ElementConfig `yaml:"elements"`
}

// ElementConfig describes one antenna position.
type ElementConfig struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Priority int             `yaml:"priority"`
	Disabled bool            `yaml:"disabled"`
	Networks []string        `yaml:"networks"`
	LNB      string          `yaml:"lnb"`
	Switch   *SwitchConfig   `yaml:"switch,omitempty"`
	Rotor    *RotorConfig    `yaml:"rotor,omitempty"`
	Unicable *UnicableConfig `yaml:"unicable,omitempty"`
}

// SwitchConfig describes a DiseqC 1.0/1.1 switch port and toneburst.
// Omitted ports default to -1 (not used).
type SwitchConfig struct {
	Committed        int  `yaml:"committed"`
	Uncommitted      int  `yaml:"uncommitted"`
	Toneburst        int  `yaml:"toneburst"`
	PowerUpTime      int  `yaml:"powerup_time"`
	CommandTime      int  `yaml:"cmd_time"`
	UncommittedFirst bool `yaml:"uncommitted_first"`
}

// UnmarshalYAML applies the -1 defaults before decoding.
func (s *SwitchConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw SwitchConfig
	r := raw{Committed: -1, Uncommitted: -1, Toneburst: -1}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*s = SwitchConfig(r)
	return nil
}

// RotorConfig describes a GOTOX or USALS positioner.
type RotorConfig struct {
	Type         string  `yaml:"type"`
	Position     int     `yaml:"position"`
	SatLongitude float64 `yaml:"sat_longitude"`
	PowerUpTime  int     `yaml:"powerup_time"`
	CommandTime  int     `yaml:"cmd_time"`
}

// UnicableConfig describes an SCR user band.
// Pin defaults to -1 (no PIN).
type UnicableConfig struct {
	Standard    string `yaml:"standard"`
	SCR         int    `yaml:"scr"`
	Frequency   int    `yaml:"frequency"`
	Pin         int    `yaml:"pin"`
	Position    int    `yaml:"position"`
	Group       int    `yaml:"group"`
	Master      bool   `yaml:"master"`
	PowerUpTime int    `yaml:"powerup_time"`
	CommandTime int    `yaml:"cmd_time"`
}

// UnmarshalYAML applies the no-PIN default before decoding.
func (u *UnicableConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw UnicableConfig
	r := raw{Pin: -1, Standard: StandardEN50494}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*u = UnicableConfig(r)
	return nil
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SATLINK_SECTION_KEY
// For example: SATLINK_DATABASE_PATH, SATLINK_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "SatLink",
		},
		Database: DatabaseConfig{
			Path:        "./data/satlink.db",
			WALMode:     true,
			BusyTimeout: 5,
			JournalDays: 30,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "satlink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SATLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SATLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SATLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SATLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SATLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("SATLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("SATLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("SATLINK_DISEQC_REPEATS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tuning.DiseqcRepeats = n
		}
	}
}

// Validate checks the configuration for errors.
//
// Unknown LNB names are not rejected here; they fall back to the Universal
// profile when the satconf is built.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.JournalDays < 0 {
		errs = append(errs, "database.journal_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Tuning.DiseqcRepeats < 0 || c.Tuning.DiseqcRepeats > 10 {
		errs = append(errs, "tuning.diseqc_repeats must be between 0 and 10")
	}

	names := make(map[string]bool)
	masters := make(map[int]string)
	for i, fe := range c.Frontends {
		prefix := fmt.Sprintf("frontends[%d]", i)
		if fe.Name == "" {
			errs = append(errs, prefix+".name is required")
		} else if names[fe.Name] {
			errs = append(errs, fmt.Sprintf("%s.name %q is duplicated", prefix, fe.Name))
		}
		names[fe.Name] = true

		if fe.Device == "" {
			errs = append(errs, prefix+".device is required")
		}
		switch fe.Driver {
		case "", DriverLinuxDVB, DriverSimulated:
		default:
			errs = append(errs, fmt.Sprintf("%s.driver %q is not supported", prefix, fe.Driver))
		}

		errs = append(errs, fe.SatConf.validate(prefix+".satconf", fe.Name, masters)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// maxElements is the element count limit per satconf type.
var maxElements = map[string]int{
	SatConfSimple:   1,
	SatConf2Port:    2,
	SatConf4Port:    4,
	SatConfUnicable: 2,
	SatConfAdvanced: 64,
}

func (s *SatConfConfig) validate(prefix, frontend string, masters map[int]string) []string {
	var errs []string

	limit, ok := maxElements[s.Type]
	if !ok {
		return append(errs, fmt.Sprintf("%s.type %q is not supported", prefix, s.Type))
	}
	if len(s.Elements) == 0 {
		errs = append(errs, prefix+".elements must not be empty")
	}
	if len(s.Elements) > limit {
		errs = append(errs, fmt.Sprintf("%s.elements allows at most %d entries for type %s", prefix, limit, s.Type))
	}
	if s.MotorRate < 0 || s.MaxRotorMove < 0 || s.MinRotorMove < 0 {
		errs = append(errs, prefix+" rotor timings must not be negative")
	}

	if s.Type == SatConfUnicable {
		if s.Unicable == nil {
			errs = append(errs, prefix+".unicable is required for type unicable")
		} else {
			errs = append(errs, s.Unicable.validate(prefix+".unicable", frontend, masters)...)
		}
	}

	ids := make(map[string]bool)
	for i, el := range s.Elements {
		ep := fmt.Sprintf("%s.elements[%d]", prefix, i)
		if el.ID != "" {
			if ids[el.ID] {
				errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", ep, el.ID))
			}
			ids[el.ID] = true
		}
		if s.Type != SatConfAdvanced && (el.Switch != nil || el.Rotor != nil || el.Unicable != nil) {
			errs = append(errs, fmt.Sprintf("%s: devices can only be set on advanced satconfs", ep))
		}
		if el.Switch != nil {
			errs = append(errs, el.Switch.validate(ep+".switch")...)
		}
		if el.Rotor != nil {
			errs = append(errs, el.Rotor.validate(ep+".rotor")...)
		}
		if el.Unicable != nil {
			errs = append(errs, el.Unicable.validate(ep+".unicable", frontend, masters)...)
		}
	}

	return errs
}

func (s *SwitchConfig) validate(prefix string) []string {
	var errs []string
	if s.Committed < -1 || s.Committed > 3 {
		errs = append(errs, prefix+".committed must be between -1 and 3")
	}
	if s.Uncommitted < -1 || s.Uncommitted > 15 {
		errs = append(errs, prefix+".uncommitted must be between -1 and 15")
	}
	if s.Toneburst < -1 || s.Toneburst > 1 {
		errs = append(errs, prefix+".toneburst must be -1, 0 (A) or 1 (B)")
	}
	return errs
}

func (r *RotorConfig) validate(prefix string) []string {
	var errs []string
	switch strings.ToLower(r.Type) {
	case "gotox":
		if r.Position < 0 || r.Position > 255 {
			errs = append(errs, prefix+".position must be between 0 and 255")
		}
	case "usals":
		if r.SatLongitude < -180 || r.SatLongitude > 180 {
			errs = append(errs, prefix+".sat_longitude must be between -180 and 180")
		}
	default:
		errs = append(errs, fmt.Sprintf("%s.type %q must be gotox or usals", prefix, r.Type))
	}
	return errs
}

func (u *UnicableConfig) validate(prefix, frontend string, masters map[int]string) []string {
	var errs []string
	var maxSCR, maxPos int
	switch strings.ToLower(u.Standard) {
	case StandardEN50494:
		maxSCR, maxPos = 7, 1
	case StandardEN50607:
		maxSCR, maxPos = 31, 63
	default:
		return append(errs, fmt.Sprintf("%s.standard %q must be en50494 or en50607", prefix, u.Standard))
	}
	if u.SCR < 0 || u.SCR > maxSCR {
		errs = append(errs, fmt.Sprintf("%s.scr must be between 0 and %d", prefix, maxSCR))
	}
	if u.Position < 0 || u.Position > maxPos {
		errs = append(errs, fmt.Sprintf("%s.position must be between 0 and %d", prefix, maxPos))
	}
	if u.Frequency <= 0 {
		errs = append(errs, prefix+".frequency is required")
	}
	if u.Pin < -1 || u.Pin > 255 {
		errs = append(errs, prefix+".pin must be between 0 and 255, or -1")
	}
	if u.Group < 0 {
		errs = append(errs, prefix+".group must not be negative")
	}
	if u.Master {
		if u.Group == 0 {
			errs = append(errs, prefix+".master requires a group")
		} else if owner, ok := masters[u.Group]; ok && owner != frontend {
			errs = append(errs, fmt.Sprintf("%s: group %d already has a master on %s", prefix, u.Group, owner))
		} else if ok {
			errs = append(errs, fmt.Sprintf("%s: group %d already has a master", prefix, u.Group))
		} else {
			masters[u.Group] = frontend
		}
	}
	return errs
}
