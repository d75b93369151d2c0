// Package netaudioconfig loads a netaudio client/server configuration
// from an optional YAML file via gopkg.in/yaml.v3, and lets command-line
// flags registered through github.com/spf13/pflag override it.
package netaudioconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Default ports: these are defaults, not protocol requirements.
const (
	DefaultDiscoveryPort = 4451
	DefaultBeaconPort    = 3581
	DefaultAudioPort     = 6910
)

// Config holds every setting a netaudio client or server binary needs.
// Zero value is not meaningful; use Default.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr"`
	DiscoveryAddr string        `yaml:"discovery_addr"`
	BeaconAddr    string        `yaml:"beacon_addr"`
	BeaconPeriod  time.Duration `yaml:"beacon_period"`
	MDNSName      string        `yaml:"mdns_name"`
	MDNSEnabled   bool          `yaml:"mdns_enabled"`
	Channels      int           `yaml:"channels"`
	BufferFrames  int           `yaml:"buffer_frames"`
	SampleRateHz  float64       `yaml:"sample_rate_hz"`
	LogLevel      string        `yaml:"log_level"`
}

// Default returns the out-of-the-box configuration: local audio port,
// broadcast beacon, 250ms beacon period, stereo 48kHz/32-frame audio,
// mDNS announcement on, info logging.
func Default() Config {
	return Config{
		ListenAddr:    fmt.Sprintf(":%d", DefaultAudioPort),
		DiscoveryAddr: fmt.Sprintf(":%d", DefaultDiscoveryPort),
		BeaconAddr:    fmt.Sprintf("255.255.255.255:%d", DefaultBeaconPort),
		BeaconPeriod:  250 * time.Millisecond,
		MDNSName:      "netaudio",
		MDNSEnabled:   true,
		Channels:      2,
		BufferFrames:  32,
		SampleRateHz:  48000,
		LogLevel:      "info",
	}
}

// Load reads and merges a YAML file over Default. A missing file is not
// an error: Default alone is returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("netaudioconfig: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("netaudioconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// RegisterFlags adds one flag per setting to fs, defaulting to c's
// current values; call pflag.Parse (or fs.Parse) afterward to apply any
// overrides in place.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ListenAddr, "listen", "l", c.ListenAddr, "Audio socket listen address.")
	fs.StringVar(&c.DiscoveryAddr, "discovery-addr", c.DiscoveryAddr, "Discovery socket listen address.")
	fs.StringVar(&c.BeaconAddr, "beacon-addr", c.BeaconAddr, "Discovery beacon broadcast destination.")
	fs.DurationVar(&c.BeaconPeriod, "beacon-period", c.BeaconPeriod, "Interval between Discovery beacons.")
	fs.StringVar(&c.MDNSName, "mdns-name", c.MDNSName, "mDNS/DNS-SD service instance name.")
	fs.BoolVar(&c.MDNSEnabled, "mdns", c.MDNSEnabled, "Announce and browse via mDNS/DNS-SD.")
	fs.IntVar(&c.Channels, "channels", c.Channels, "Audio channel count.")
	fs.IntVarP(&c.BufferFrames, "buffer-frames", "b", c.BufferFrames, "Advisory buffer size hint, in frames.")
	fs.Float64Var(&c.SampleRateHz, "sample-rate", c.SampleRateHz, "Audio sample rate, in Hz.")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error.")
}
