// Package prefs persists account settings between runs, in YAML files or
// in Redis.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/sandwichfarm/quartz/internal/account"
	"github.com/sandwichfarm/quartz/internal/config"
	"github.com/sandwichfarm/quartz/internal/ops"
)

// Store loads and saves the settings of one account at a time
type Store interface {
	// Load returns false when nothing was saved for pubkey yet
	Load(ctx context.Context, pubkey string) (account.Settings, bool, error)
	Save(ctx context.Context, pubkey string, s account.Settings) error
	Close() error
}

// Open returns the store selected by configuration
func Open(ctx context.Context, cfg *config.Prefs) (Store, error) {
	switch cfg.Engine {
	case "file":
		return NewFileStore(cfg.Dir)
	case "redis":
		return NewRedisStore(ctx, cfg.RedisURL, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unsupported prefs engine: %s", cfg.Engine)
	}
}

// FileStore keeps one YAML file per account
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create prefs directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(pubkey string) string {
	return filepath.Join(f.dir, pubkey+".yaml")
}

// Load reads the account's file
func (f *FileStore) Load(_ context.Context, pubkey string) (account.Settings, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(pubkey))
	if errors.Is(err, os.ErrNotExist) {
		return account.Settings{}, false, nil
	}
	if err != nil {
		return account.Settings{}, false, fmt.Errorf("failed to read prefs: %w", err)
	}

	var s account.Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return account.Settings{}, false, fmt.Errorf("failed to parse prefs: %w", err)
	}
	return s, true, nil
}

// Save replaces the account's file atomically
func (f *FileStore) Save(_ context.Context, pubkey string, s account.Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode prefs: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.path(pubkey) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	if err := os.Rename(tmp, f.path(pubkey)); err != nil {
		return fmt.Errorf("failed to replace prefs: %w", err)
	}
	return nil
}

// Close is a no-op
func (f *FileStore) Close() error { return nil }

// Saver writes every saveable settings snapshot of an account to a Store
type Saver struct {
	store  Store
	pubkey string
	logger *ops.Logger
	done   chan struct{}
}

// SaveableSource is the account notifier the saver follows
type SaveableSource interface {
	PubKey() string
	SubscribeSaveable() (<-chan account.Settings, func())
}

// StartSaver follows the account until its saveable notifier closes or
// the returned stop function is called
func StartSaver(ctx context.Context, src SaveableSource, store Store, logger *ops.Logger) (*Saver, func()) {
	if logger == nil {
		logger = ops.Default()
	}
	s := &Saver{
		store:  store,
		pubkey: src.PubKey(),
		logger: logger.WithComponent("prefs"),
		done:   make(chan struct{}),
	}

	updates, unsubscribe := src.SubscribeSaveable()
	go func() {
		defer close(s.done)
		for settings := range updates {
			if err := store.Save(ctx, s.pubkey, settings); err != nil {
				s.logger.Error("failed to save settings", "error", err)
				continue
			}
			s.logger.Debug("settings saved")
		}
	}()

	return s, func() {
		unsubscribe()
		<-s.done
	}
}

// Done is closed once the saver stopped
func (s *Saver) Done() <-chan struct{} { return s.done }

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*RedisStore)(nil)
)

// RedisStore keeps settings as JSON under one key per account
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to url and checks the connection
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) key(pubkey string) string {
	return r.prefix + pubkey
}

// Load reads the account's key
func (r *RedisStore) Load(ctx context.Context, pubkey string) (account.Settings, bool, error) {
	data, err := r.client.Get(ctx, r.key(pubkey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return account.Settings{}, false, nil
	}
	if err != nil {
		return account.Settings{}, false, fmt.Errorf("failed to read prefs: %w", err)
	}

	s, err := decodeJSON(data)
	if err != nil {
		return account.Settings{}, false, err
	}
	return s, true, nil
}

// Save overwrites the account's key
func (r *RedisStore) Save(ctx context.Context, pubkey string, s account.Settings) error {
	data, err := encodeJSON(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(pubkey), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	return nil
}

// Close closes the redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func encodeJSON(s account.Settings) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prefs: %w", err)
	}
	return data, nil
}

func decodeJSON(data []byte) (account.Settings, error) {
	var s account.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return account.Settings{}, fmt.Errorf("failed to parse prefs: %w", err)
	}
	return s, nil
}
