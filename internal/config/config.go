package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	EnvPrefix = "CINFO"

	DefaultMote = "bbbb::1415:92cc:0:4"

	TerminateSignal = "signal"
	TerminateReturn = "return"

	OutputText = "text"
	OutputYAML = "yaml"
)

// Config holds the probe configuration loaded from flags, environment variables and files.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	LogLevel string `mapstructure:"log_level"`

	Motes          []string      `mapstructure:"motes"`
	MotePort       int           `mapstructure:"mote_port"`
	Resource       string        `mapstructure:"resource"`
	Scheme         string        `mapstructure:"scheme"`
	LocalPort      int           `mapstructure:"local_port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxParallel    int           `mapstructure:"max_parallel"`

	TransmissionNStart       time.Duration `mapstructure:"transmission_nstart"`
	AcknowledgeTimeout       time.Duration `mapstructure:"ack_timeout"`
	MaxRetransmit            int           `mapstructure:"max_retransmit"`
	BlockwiseEnable          bool          `mapstructure:"blockwise_enable"`
	BlockSize                string        `mapstructure:"block_size"`
	BlockSizeBytes           int64         `mapstructure:"-"`
	BlockwiseTransferTimeout time.Duration `mapstructure:"blockwise_transfer_timeout"`

	PSKIdentity        string `mapstructure:"psk_identity"`
	PSKHex             string `mapstructure:"psk"`
	PSK                []byte `mapstructure:"-"`
	KeyFile            string `mapstructure:"key_file"`
	CertFile           string `mapstructure:"cert_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`

	Output        string `mapstructure:"output"`
	Terminate     string `mapstructure:"terminate"`
	ReleaseClient bool   `mapstructure:"release_client"`

	HistoryType string `mapstructure:"history_type"`
	HistoryPath string `mapstructure:"history_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config", "")
	v.SetDefault("app_name", "cinfo")
	v.SetDefault("log_level", "warn")
	v.SetDefault("motes", []string{DefaultMote})
	v.SetDefault("mote_port", 0)
	v.SetDefault("resource", "w")
	v.SetDefault("scheme", "coap")
	v.SetDefault("local_port", 61618)
	v.SetDefault("request_timeout", time.Duration(0))
	v.SetDefault("max_parallel", 4)
	v.SetDefault("transmission_nstart", time.Second)
	v.SetDefault("ack_timeout", 2*time.Second)
	v.SetDefault("max_retransmit", 4)
	v.SetDefault("blockwise_enable", true)
	v.SetDefault("block_size", "1KiB")
	v.SetDefault("blockwise_transfer_timeout", 3*time.Second)
	v.SetDefault("psk_identity", "")
	v.SetDefault("psk", "")
	v.SetDefault("key_file", "")
	v.SetDefault("cert_file", "")
	v.SetDefault("ca_file", "")
	v.SetDefault("insecure_skip_verify", false)
	v.SetDefault("output", OutputText)
	v.SetDefault("terminate", TerminateSignal)
	v.SetDefault("release_client", false)
	v.SetDefault("history_type", "none")
	v.SetDefault("history_path", "./data/readings.db")
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("cinfo", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.StringSlice("mote", nil, "IPv6 address of a mote to query (repeatable)")
	fs.String("resource", "", "resource path queried on each mote")
	fs.Int("local-port", 0, "local UDP port requests are sent from")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("output", "", "text or yaml")
	fs.String("history", "", "bbolt file readings are recorded to")
	return fs
}

var flagKeys = map[string]string{
	"mote":       "motes",
	"resource":   "resource",
	"local-port": "local_port",
	"log-level":  "log_level",
	"output":     "output",
	"history":    "history_path",
}

// Load reads configuration from args, the environment and an optional config file.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %v: %w", name, err)
		}
	}
	if fs.Changed("history") {
		v.Set("history_type", "bbolt")
	}

	configFile, _ := fs.GetString("config")
	if configFile == "" {
		configFile = v.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %v: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	motes := c.Motes[:0]
	for _, m := range c.Motes {
		if m = strings.TrimSpace(m); m != "" {
			motes = append(motes, strings.Trim(m, "[]"))
		}
	}
	c.Motes = motes
	if len(c.Motes) == 0 {
		return errors.New("invalid motes (at least one address required)")
	}
	if c.Resource = strings.TrimPrefix(strings.TrimSpace(c.Resource), "/"); c.Resource == "" {
		return errors.New("invalid resource (must not be empty)")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	c.Scheme = strings.ToLower(c.Scheme)
	if c.Scheme != "coap" && c.Scheme != "coaps" {
		return fmt.Errorf("invalid scheme %q (coap or coaps)", c.Scheme)
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return fmt.Errorf("invalid local_port %v", c.LocalPort)
	}
	if c.MotePort < 0 || c.MotePort > 65535 {
		return fmt.Errorf("invalid mote_port %v", c.MotePort)
	}
	if c.RequestTimeout < 0 {
		return errors.New("invalid request_timeout (must not be negative)")
	}
	if c.MaxParallel < 1 {
		return errors.New("invalid max_parallel (must be positive)")
	}
	if c.AcknowledgeTimeout <= 0 || c.TransmissionNStart <= 0 {
		return errors.New("invalid ack_timeout or transmission_nstart (must be positive)")
	}
	if c.MaxRetransmit < 0 {
		return errors.New("invalid max_retransmit (must not be negative)")
	}
	size, err := units.ParseBase2Bytes(c.BlockSize)
	if err != nil {
		return fmt.Errorf("invalid block_size %q: %w", c.BlockSize, err)
	}
	c.BlockSizeBytes = int64(size)
	if c.PSKHex != "" {
		c.PSK, err = hex.DecodeString(c.PSKHex)
		if err != nil {
			return fmt.Errorf("invalid psk (hex expected): %w", err)
		}
	}
	switch c.Output {
	case OutputText, OutputYAML:
	default:
		return fmt.Errorf("invalid output %q (text or yaml)", c.Output)
	}
	switch c.Terminate {
	case TerminateSignal, TerminateReturn:
	default:
		return fmt.Errorf("invalid terminate %q (signal or return)", c.Terminate)
	}
	return nil
}
