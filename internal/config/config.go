// Package config loads, validates, and hot-reloads the proxy's runtime
// configuration snapshot: listener addresses, TLS/ACME mode, the credential
// pool, auth/rate-limit defaults, and the audit sink. The admin-facing
// CRUD/API surface over these settings is out of scope; this package only
// needs to produce a validated Snapshot a standalone process can run from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gemini-relay/internal/events"
	"gopkg.in/yaml.v3"
)

// CredentialConfig is one entry in the static credential pool (component
// A/B's seed data). Weight and MaxRequestsPerMinute feed the scheduler and
// the per-credential token bucket respectively.
type CredentialConfig struct {
	ID                   string `yaml:"id"`
	Key                  string `yaml:"key"`
	Weight               int    `yaml:"weight"`
	MaxRequestsPerMinute int    `yaml:"max_requests_per_minute"`
}

// TLSConfig selects between a static certificate/key pair and ACME-managed
// certificates for the TLS terminator (component H/I).
type TLSConfig struct {
	Mode             string   `yaml:"mode"` // "static" or "acme"
	CertFile         string   `yaml:"cert_file"`
	KeyFile          string   `yaml:"key_file"`
	ACMEDomains      []string `yaml:"acme_domains"`
	ACMEEmail        string   `yaml:"acme_email"`
	ACMEDirectoryURL string   `yaml:"acme_directory_url"`
	ACMECacheDir     string   `yaml:"acme_cache_dir"`
}

// AuthConfig carries bearer-JWT verification settings for component E.
type AuthConfig struct {
	JWTSigningSecret       string `yaml:"jwt_signing_secret"`
	DefaultClientRateLimit int    `yaml:"default_client_rate_limit"`
	RateLimitClaim         string `yaml:"rate_limit_claim"`
}

// UpstreamConfig names the single upstream collaborator this proxy fronts.
type UpstreamConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AuditConfig points at the external sink the core emits outcome/change
// events to, when one is attached (§6). A blank RedisAddr disables it.
type AuditConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	StreamKey     string `yaml:"stream_key"`
}

// ServerConfig holds the two listener addresses: the TLS data-plane
// listener and the plaintext ACME HTTP-01 listener.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ACMEListenAddr  string        `yaml:"acme_listen_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Snapshot is the fully resolved, validated configuration the rest of the
// proxy is built from. It is immutable once produced; a reload produces a
// new Snapshot and publishes it as a config.updated event, which main
// applies to the running scheduler and auth verifier.
type Snapshot struct {
	Debug       bool               `yaml:"debug"`
	LogFile     string             `yaml:"log_file"`
	MetricsPath string             `yaml:"metrics_path"`
	// MetricsAddr, when set, serves /metrics on its own plaintext listener
	// instead of the TLS data-plane engine (§6's configuration intake
	// names "the metrics port" as distinct from the data-plane port). Left
	// empty, /metrics is served on the data-plane engine alongside /health.
	MetricsAddr string             `yaml:"metrics_addr"`
	Server      ServerConfig       `yaml:"server"`
	TLS         TLSConfig          `yaml:"tls"`
	Credentials []CredentialConfig `yaml:"credentials"`
	Auth        AuthConfig         `yaml:"auth"`
	Upstream    UpstreamConfig     `yaml:"upstream"`
	Audit       AuditConfig        `yaml:"audit"`
}

func defaults() *Snapshot {
	return &Snapshot{
		MetricsPath: "/metrics",
		Server: ServerConfig{
			ListenAddr:      ":8443",
			ACMEListenAddr:  ":80",
			ShutdownTimeout: 30 * time.Second,
		},
		TLS: TLSConfig{Mode: "static"},
		Upstream: UpstreamConfig{
			Host: "generativelanguage.googleapis.com",
			Port: 443,
		},
		Auth: AuthConfig{
			DefaultClientRateLimit: 60,
			RateLimitClaim:         "rl",
		},
		Audit: AuditConfig{StreamKey: "gemini-relay:audit"},
	}
}

// Load reads a YAML file at path, overlays environment variables, fills
// defaults, and validates the result.
func Load(path string) (*Snapshot, error) {
	snap := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, snap); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	mergeEnv(snap)

	if err := Validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// mergeEnv overlays environment variables onto the snapshot, matching the
// teacher's env-overlay convention: explicit env vars win over file values,
// used primarily so secrets never need to live in the config file on disk.
func mergeEnv(snap *Snapshot) {
	if v := os.Getenv("GEMINI_RELAY_JWT_SECRET"); v != "" {
		snap.Auth.JWTSigningSecret = v
	}
	if v := os.Getenv("GEMINI_RELAY_LISTEN_ADDR"); v != "" {
		snap.Server.ListenAddr = v
	}
	if v := os.Getenv("GEMINI_RELAY_ACME_LISTEN_ADDR"); v != "" {
		snap.Server.ACMEListenAddr = v
	}
	if v := os.Getenv("GEMINI_RELAY_DEBUG"); v != "" {
		snap.Debug = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("GEMINI_RELAY_AUDIT_REDIS_ADDR"); v != "" {
		snap.Audit.RedisAddr = v
	}
	if v := os.Getenv("GEMINI_RELAY_CREDENTIALS"); v != "" {
		snap.Credentials = append(snap.Credentials, parseEnvCredentials(v)...)
	}
}

// parseEnvCredentials parses "id:key:weight:limit,id2:key2:weight2:limit2"
// so credentials can be injected without touching the config file, the way
// the teacher's env credential source loads GCLI_CREDS_* entries.
func parseEnvCredentials(raw string) []CredentialConfig {
	var out []CredentialConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 {
			continue
		}
		cred := CredentialConfig{ID: parts[0], Key: parts[1], Weight: 1, MaxRequestsPerMinute: 60}
		if len(parts) > 2 {
			if w, err := strconv.Atoi(parts[2]); err == nil {
				cred.Weight = w
			}
		}
		if len(parts) > 3 {
			if l, err := strconv.Atoi(parts[3]); err == nil {
				cred.MaxRequestsPerMinute = l
			}
		}
		out = append(out, cred)
	}
	return out
}

// ConfigManager owns the live Snapshot, a file watch, and a publisher used
// to emit config.updated / credential change events, mirroring the
// teacher's hot-reload manager.
type ConfigManager struct {
	mu         sync.RWMutex
	current    *Snapshot
	configPath string
	lastMod    time.Time
	stopCh     chan struct{}
	publisher  events.Publisher
}

// NewManager loads the initial snapshot and returns a manager ready to
// watch the file for further changes via Watch.
func NewManager(configPath string) (*ConfigManager, error) {
	snap, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	cm := &ConfigManager{
		current:    snap,
		configPath: configPath,
		stopCh:     make(chan struct{}),
	}
	if configPath != "" {
		if info, statErr := os.Stat(configPath); statErr == nil {
			cm.lastMod = info.ModTime()
		}
	}
	return cm, nil
}

// SetEventPublisher attaches the hub config/credential changes are
// published to.
func (cm *ConfigManager) SetEventPublisher(p events.Publisher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.publisher = p
}

// GetConfig returns the current snapshot.
func (cm *ConfigManager) GetConfig() *Snapshot {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.current
}

// Stop stops the file watcher goroutine.
func (cm *ConfigManager) Stop() {
	close(cm.stopCh)
}

func (cm *ConfigManager) load() error {
	snap, err := Load(cm.configPath)
	if err != nil {
		return err
	}
	cm.mu.Lock()
	cm.current = snap
	if info, statErr := os.Stat(cm.configPath); statErr == nil {
		cm.lastMod = info.ModTime()
	}
	cm.mu.Unlock()
	return nil
}

func (cm *ConfigManager) emitChange(old, new *Snapshot) {
	cm.mu.RLock()
	publisher := cm.publisher
	cm.mu.RUnlock()
	if publisher == nil {
		return
	}
	publisher.Publish(nil, events.TopicConfigUpdated, new, map[string]string{"path": cm.configPath})
	if len(old.Credentials) != len(new.Credentials) {
		publisher.Publish(nil, events.TopicCredentialsSynced, new.Credentials, nil)
	}
}
