package config

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete quartz configuration
type Config struct {
	Identity Identity `yaml:"identity"`
	Relays   Relays   `yaml:"relays"`
	Account  Account  `yaml:"account"`
	Policy   Policy   `yaml:"policy"`
	Sync     Sync     `yaml:"sync"`
	Storage  Storage  `yaml:"storage"`
	Prefs    Prefs    `yaml:"prefs"`
	Serve    Serve    `yaml:"serve"`
	Logging  Logging  `yaml:"logging"`
}

// Identity contains Nostr identity information
type Identity struct {
	Npub string `yaml:"npub"`
	// Nsec is never read from the file, only from QUARTZ_NSEC.
	Nsec string `yaml:"-"`
}

// Relays contains relay configuration
type Relays struct {
	Local        []RelaySetup `yaml:"local"`
	ForcedSearch RelaySetup   `yaml:"forced_search"`
	Policy       RelayPolicy  `yaml:"policy"`
}

// RelaySetup is one relay entry of the local relay set
type RelaySetup struct {
	URL       string   `yaml:"url"`
	Read      bool     `yaml:"read"`
	Write     bool     `yaml:"write"`
	FeedTypes []string `yaml:"feed_types"` // follows|public_chats|private_dms|global|search
}

// RelayPolicy contains relay connection policies
type RelayPolicy struct {
	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
	PublishTimeoutMs int `yaml:"publish_timeout_ms"`
}

// Account contains defaults applied to a fresh account
type Account struct {
	DefaultChannels  []string `yaml:"default_channels"`
	ZapAmountChoices []int64  `yaml:"zap_amount_choices"`
	TranslateTo      string   `yaml:"translate_to"`
}

// Policy contains the trust and batching thresholds
type Policy struct {
	ReportThreshold      int `yaml:"report_threshold"`
	BoostWindowSeconds   int `yaml:"boost_window_seconds"`
	SpamThreshold        int `yaml:"spam_threshold"`
	SpamMinContentLength int `yaml:"spam_min_content_length"`
	BatchWindowMs        int `yaml:"batch_window_ms"`
}

// Sync contains ingestion settings
type Sync struct {
	Workers         int `yaml:"workers"`
	QueueSize       int `yaml:"queue_size"`
	FollowsLimit    int `yaml:"follows_limit"`
	TagsLimit       int `yaml:"tags_limit"`
	BootstrapWaitMs int `yaml:"bootstrap_wait_ms"`
}

// Storage contains event archive settings
type Storage struct {
	Driver      string `yaml:"driver"` // memory|sqlite
	SQLitePath  string `yaml:"sqlite_path"`
	ReplayLimit int    `yaml:"replay_limit"`
}

// Prefs contains account settings persistence configuration
type Prefs struct {
	Engine    string `yaml:"engine"` // file|redis
	Dir       string `yaml:"dir"`
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Serve contains the local archive relay listener settings
type Serve struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// applyDefaults fills in missing configuration fields with sensible defaults
func applyDefaults(cfg *Config) {
	defaults := Default()

	if len(cfg.Relays.Local) == 0 {
		cfg.Relays.Local = defaults.Relays.Local
	}
	if cfg.Relays.ForcedSearch.URL == "" {
		cfg.Relays.ForcedSearch = defaults.Relays.ForcedSearch
	}
	if cfg.Relays.Policy.ConnectTimeoutMs == 0 {
		cfg.Relays.Policy.ConnectTimeoutMs = defaults.Relays.Policy.ConnectTimeoutMs
	}
	if cfg.Relays.Policy.PublishTimeoutMs == 0 {
		cfg.Relays.Policy.PublishTimeoutMs = defaults.Relays.Policy.PublishTimeoutMs
	}

	if len(cfg.Account.ZapAmountChoices) == 0 {
		cfg.Account.ZapAmountChoices = defaults.Account.ZapAmountChoices
	}
	if cfg.Account.DefaultChannels == nil {
		cfg.Account.DefaultChannels = defaults.Account.DefaultChannels
	}

	if cfg.Policy.ReportThreshold == 0 {
		cfg.Policy.ReportThreshold = defaults.Policy.ReportThreshold
	}
	if cfg.Policy.BoostWindowSeconds == 0 {
		cfg.Policy.BoostWindowSeconds = defaults.Policy.BoostWindowSeconds
	}
	if cfg.Policy.SpamThreshold == 0 {
		cfg.Policy.SpamThreshold = defaults.Policy.SpamThreshold
	}
	if cfg.Policy.SpamMinContentLength == 0 {
		cfg.Policy.SpamMinContentLength = defaults.Policy.SpamMinContentLength
	}
	if cfg.Policy.BatchWindowMs == 0 {
		cfg.Policy.BatchWindowMs = defaults.Policy.BatchWindowMs
	}

	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = defaults.Sync.Workers
	}
	if cfg.Sync.QueueSize == 0 {
		cfg.Sync.QueueSize = defaults.Sync.QueueSize
	}
	if cfg.Sync.FollowsLimit == 0 {
		cfg.Sync.FollowsLimit = defaults.Sync.FollowsLimit
	}
	if cfg.Sync.TagsLimit == 0 {
		cfg.Sync.TagsLimit = defaults.Sync.TagsLimit
	}
	if cfg.Sync.BootstrapWaitMs == 0 {
		cfg.Sync.BootstrapWaitMs = defaults.Sync.BootstrapWaitMs
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = defaults.Storage.SQLitePath
	}
	if cfg.Storage.ReplayLimit == 0 {
		cfg.Storage.ReplayLimit = defaults.Storage.ReplayLimit
	}

	if cfg.Prefs.Engine == "" {
		cfg.Prefs.Engine = defaults.Prefs.Engine
	}
	if cfg.Prefs.Dir == "" {
		cfg.Prefs.Dir = defaults.Prefs.Dir
	}
	if cfg.Prefs.KeyPrefix == "" {
		cfg.Prefs.KeyPrefix = defaults.Prefs.KeyPrefix
	}

	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = defaults.Serve.Addr
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration bytes, applying defaults and env overrides
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults for missing fields
	applyDefaults(&cfg)

	// Apply environment variable overrides
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	// The private key only ever comes from the environment
	if nsec := os.Getenv("QUARTZ_NSEC"); nsec != "" {
		cfg.Identity.Nsec = nsec
	}

	if npub := os.Getenv("QUARTZ_NPUB"); npub != "" {
		cfg.Identity.Npub = npub
	}

	// Redis URL from env if using redis
	if redisURL := os.Getenv("QUARTZ_REDIS_URL"); redisURL != "" {
		cfg.Prefs.RedisURL = redisURL
	}

	return nil
}

// GetExampleConfig returns the embedded example configuration
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Identity: Identity{
			Npub: "",
		},
		Relays: Relays{
			Local: []RelaySetup{
				{URL: "wss://nostr.bitcoiner.social", Read: true, Write: true, FeedTypes: []string{"follows"}},
				{URL: "wss://relay.nostr.bg", Read: true, Write: true, FeedTypes: []string{"follows"}},
				{URL: "wss://nostr.oxtr.dev", Read: true, Write: true, FeedTypes: []string{"follows"}},
				{URL: "wss://relay.damus.io", Read: true, Write: true, FeedTypes: []string{"follows", "public_chats", "private_dms"}},
				{URL: "wss://nostr-pub.wellorder.net", Read: true, Write: true, FeedTypes: []string{"follows", "public_chats", "global"}},
				{URL: "wss://nos.lol", Read: true, Write: true, FeedTypes: []string{"follows", "private_dms"}},
			},
			ForcedSearch: RelaySetup{
				URL:       "wss://relay.nostr.band",
				Read:      true,
				Write:     false,
				FeedTypes: []string{"search"},
			},
			Policy: RelayPolicy{
				ConnectTimeoutMs: 5000,
				PublishTimeoutMs: 7000,
			},
		},
		Account: Account{
			DefaultChannels:  []string{},
			ZapAmountChoices: []int64{500, 1000, 5000},
			TranslateTo:      "en",
		},
		Policy: Policy{
			ReportThreshold:      5,
			BoostWindowSeconds:   300,
			SpamThreshold:        5,
			SpamMinContentLength: 50,
			BatchWindowMs:        300,
		},
		Sync: Sync{
			Workers:         4,
			QueueSize:       1000,
			FollowsLimit:    400,
			TagsLimit:       100,
			BootstrapWaitMs: 4000,
		},
		Storage: Storage{
			Driver:      "memory",
			SQLitePath:  "./data/quartz.db",
			ReplayLimit: 100000,
		},
		Prefs: Prefs{
			Engine:    "file",
			Dir:       "./data/prefs",
			KeyPrefix: "quartz:prefs:",
		},
		Serve: Serve{
			Enabled: false,
			Addr:    "127.0.0.1:4869",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// validLogLevels defines allowed log levels
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validStorageDrivers defines allowed archive drivers
var validStorageDrivers = map[string]bool{
	"memory": true,
	"sqlite": true,
}

// validPrefsEngines defines allowed settings stores
var validPrefsEngines = map[string]bool{
	"file":  true,
	"redis": true,
}

// validFeedTypes defines allowed relay feed types
var validFeedTypes = map[string]bool{
	"follows":      true,
	"public_chats": true,
	"private_dms":  true,
	"global":       true,
	"search":       true,
}

// Validate checks if a configuration is valid
func Validate(cfg *Config) error {
	// Validate identity
	if cfg.Identity.Npub == "" {
		return fmt.Errorf("identity.npub is required")
	}
	if !strings.HasPrefix(cfg.Identity.Npub, "npub1") {
		return fmt.Errorf("identity.npub must start with 'npub1'")
	}
	if cfg.Identity.Nsec != "" && !strings.HasPrefix(cfg.Identity.Nsec, "nsec1") {
		return fmt.Errorf("QUARTZ_NSEC must start with 'nsec1'")
	}

	// Validate local relays
	if len(cfg.Relays.Local) == 0 {
		return fmt.Errorf("at least one local relay is required")
	}
	for _, r := range append([]RelaySetup{cfg.Relays.ForcedSearch}, cfg.Relays.Local...) {
		if !strings.HasPrefix(r.URL, "wss://") && !strings.HasPrefix(r.URL, "ws://") {
			return fmt.Errorf("relay url must start with ws:// or wss://: %s", r.URL)
		}
		for _, ft := range r.FeedTypes {
			if !validFeedTypes[ft] {
				return fmt.Errorf("invalid feed type %q for relay %s", ft, r.URL)
			}
		}
	}

	// Validate policy
	if cfg.Policy.ReportThreshold < 1 {
		return fmt.Errorf("policy.report_threshold must be at least 1")
	}
	if cfg.Policy.SpamThreshold < 2 {
		return fmt.Errorf("policy.spam_threshold must be at least 2")
	}
	if cfg.Policy.BatchWindowMs < 1 || cfg.Policy.BatchWindowMs > 10000 {
		return fmt.Errorf("policy.batch_window_ms must be between 1 and 10000")
	}

	// Validate sync
	if cfg.Sync.Workers < 1 || cfg.Sync.Workers > 64 {
		return fmt.Errorf("sync.workers must be between 1 and 64")
	}

	// Validate storage driver
	if !validStorageDrivers[cfg.Storage.Driver] {
		return fmt.Errorf("invalid storage driver: %s (must be one of: memory, sqlite)", cfg.Storage.Driver)
	}

	// Validate prefs engine
	if !validPrefsEngines[cfg.Prefs.Engine] {
		return fmt.Errorf("invalid prefs engine: %s (must be one of: file, redis)", cfg.Prefs.Engine)
	}
	if cfg.Prefs.Engine == "redis" && cfg.Prefs.RedisURL == "" {
		return fmt.Errorf("prefs.redis_url is required when prefs.engine is redis")
	}

	// Validate log level
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", cfg.Logging.Level)
	}

	return nil
}
