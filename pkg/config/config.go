package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	Logger       LoggerConfig       `yaml:"logger"`
	Pool         PoolConfig         `yaml:"pool"`
	Repair       RepairConfig       `yaml:"repair"`
	Task         TaskConfig         `yaml:"task"`
	Queue        QueueConfig        `yaml:"queue"`
	Adapter      AdapterConfig      `yaml:"adapter"`
	Notification NotificationConfig `yaml:"notification"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // operator API key (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration (audit stream + leader lock)
type RedisConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Addr              string `yaml:"addr"`
	Password          string `yaml:"password"`
	DB                int    `yaml:"db"`
	AuditStream       string `yaml:"audit_stream"`         // stream key for audit events
	AuditStreamMaxLen int64  `yaml:"audit_stream_max_len"` // approximate trim length
	LockKey           string `yaml:"lock_key"`             // leader lock key
}

// MySQLConfig MySQL configuration (audit + escalation records)
type MySQLConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// AuditRetention audit rows older than this are deleted
	AuditRetention time.Duration `yaml:"audit_retention"`
}

// DSN builds the go-sql-driver DSN
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// PoolConfig terminal pool configuration
type PoolConfig struct {
	Size            int           `yaml:"size"`              // explicit size override, 0 = computed
	SafetyMargin    float64       `yaml:"safety_margin"`     // fraction of resources the pool may use
	PerWorkerMemory string        `yaml:"per_worker_memory"` // memory budget per terminal, e.g. "2Gi"
	FallbackSize    int           `yaml:"fallback_size"`     // used when introspection fails
	HealthInterval  time.Duration `yaml:"health_interval"`   // per-terminal probe period
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	DrainInterval   time.Duration `yaml:"drain_interval"` // queue-drain tick
	ReassignGrace   time.Duration `yaml:"reassign_grace"` // wait for an alternative terminal before reuse
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsInterval time.Duration `yaml:"metrics_interval"` // periodic metrics log line
}

// RepairConfig repair ladder configuration
type RepairConfig struct {
	GentleTimeout        time.Duration `yaml:"gentle_timeout"`
	ContextTimeout       time.Duration `yaml:"context_timeout"`
	InterruptTimeout     time.Duration `yaml:"interrupt_timeout"`
	RestartTimeout       time.Duration `yaml:"restart_timeout"`
	KillTimeout          time.Duration `yaml:"kill_timeout"`
	InstabilityWindow    time.Duration `yaml:"instability_window"`
	InstabilityThreshold int           `yaml:"instability_threshold"`
	ReplaceBackoffMax    time.Duration `yaml:"replace_backoff_max"` // give up relaunching a dead slot after this long
}

// Timeouts returns per-level timeouts ordered GENTLE..KILL
func (c RepairConfig) Timeouts() []time.Duration {
	return []time.Duration{c.GentleTimeout, c.ContextTimeout, c.InterruptTimeout, c.RestartTimeout, c.KillTimeout}
}

// TaskConfig task defaults and execution policy
type TaskConfig struct {
	DefaultMaxAttempts   int           `yaml:"default_max_attempts"`
	DefaultTimeout       time.Duration `yaml:"default_timeout"`
	RateLimitWait        time.Duration `yaml:"rate_limit_wait"`
	PermissionAutoAccept bool          `yaml:"permission_auto_accept"`
	MaxPermissionPrompts int           `yaml:"max_permission_prompts"` // per attempt
	Retention            time.Duration `yaml:"retention"`              // finished tasks kept in memory this long
}

// QueueConfig queue configuration
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// AdapterConfig worker-execution adapter configuration
type AdapterConfig struct {
	Type    string            `yaml:"type"`    // process, scripted
	Command string            `yaml:"command"` // executable hosting the assistant
	Args    []string          `yaml:"args"`
	WorkDir string            `yaml:"workdir"`
	Env     map[string]string `yaml:"env"`
}

// NotificationConfig escalation/alert delivery configuration
type NotificationConfig struct {
	WebhookURL       string        `yaml:"webhook_url"`
	FeishuWebhookURL string        `yaml:"feishu_webhook_url"`
	Timeout          time.Duration `yaml:"timeout"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	validateAndApplyDefaults(cfg)
	return cfg
}

// DefaultRepairConfig default ladder timeouts, strictly increasing
func DefaultRepairConfig() RepairConfig {
	return RepairConfig{
		GentleTimeout:        5 * time.Second,
		ContextTimeout:       15 * time.Second,
		InterruptTimeout:     30 * time.Second,
		RestartTimeout:       90 * time.Second,
		KillTimeout:          3 * time.Minute,
		InstabilityWindow:    10 * time.Minute,
		InstabilityThreshold: 3,
		ReplaceBackoffMax:    10 * time.Minute,
	}
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		return err
	}

	GlobalConfig = cfg
	return nil
}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	validateAndApplyDefaults(&cfg)
	return &cfg, nil
}

// validateAndApplyDefaults replaces invalid values with defaults.
// The logger package depends on config, so warnings go through the std logger.
func validateAndApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = "console"
	}
	if cfg.Redis.AuditStream == "" {
		cfg.Redis.AuditStream = "termpool:audit"
	}
	if cfg.Redis.AuditStreamMaxLen <= 0 {
		cfg.Redis.AuditStreamMaxLen = 100000
	}
	if cfg.MySQL.AuditRetention <= 0 {
		cfg.MySQL.AuditRetention = 30 * 24 * time.Hour
	}
	if cfg.Redis.LockKey == "" {
		cfg.Redis.LockKey = "termpool:pool-lock"
	}

	applyPoolDefaults(&cfg.Pool)
	applyRepairDefaults(&cfg.Repair)
	applyTaskDefaults(&cfg.Task)

	if cfg.Queue.Capacity <= 0 {
		warnDefault("queue.capacity", cfg.Queue.Capacity, 1000)
		cfg.Queue.Capacity = 1000
	}
	if cfg.Adapter.Type == "" {
		cfg.Adapter.Type = "process"
	}
	if cfg.Notification.Timeout <= 0 {
		cfg.Notification.Timeout = 10 * time.Second
	}
}

func applyPoolDefaults(p *PoolConfig) {
	if p.Size < 0 {
		warnDefault("pool.size", p.Size, 0)
		p.Size = 0
	}
	if p.SafetyMargin <= 0 || p.SafetyMargin > 1 {
		if p.SafetyMargin != 0 {
			warnDefault("pool.safety_margin", p.SafetyMargin, 0.8)
		}
		p.SafetyMargin = 0.8
	}
	if p.PerWorkerMemory == "" {
		p.PerWorkerMemory = "2Gi"
	}
	if p.FallbackSize <= 0 {
		p.FallbackSize = 1
	}
	if p.HealthInterval <= 0 {
		p.HealthInterval = 30 * time.Second
	}
	if p.ProbeTimeout <= 0 {
		p.ProbeTimeout = 5 * time.Second
	}
	if p.DrainInterval <= 0 {
		p.DrainInterval = time.Second
	}
	if p.ReassignGrace <= 0 {
		p.ReassignGrace = 30 * time.Second
	}
	if p.ShutdownTimeout <= 0 {
		p.ShutdownTimeout = 30 * time.Second
	}
	if p.MetricsInterval <= 0 {
		p.MetricsInterval = time.Minute
	}
}

// applyRepairDefaults falls back to the default ladder as a whole when the
// configured timeouts are missing or not strictly increasing
func applyRepairDefaults(r *RepairConfig) {
	defaults := DefaultRepairConfig()

	timeouts := r.Timeouts()
	valid := true
	for i, d := range timeouts {
		if d <= 0 || (i > 0 && d <= timeouts[i-1]) {
			valid = false
			break
		}
	}
	if !valid {
		if timeouts[0] != 0 {
			log.Printf("WARN config: repair timeouts %v must be positive and strictly increasing, using defaults", timeouts)
		}
		r.GentleTimeout = defaults.GentleTimeout
		r.ContextTimeout = defaults.ContextTimeout
		r.InterruptTimeout = defaults.InterruptTimeout
		r.RestartTimeout = defaults.RestartTimeout
		r.KillTimeout = defaults.KillTimeout
	}
	if r.InstabilityWindow <= 0 {
		r.InstabilityWindow = defaults.InstabilityWindow
	}
	if r.InstabilityThreshold <= 0 {
		r.InstabilityThreshold = defaults.InstabilityThreshold
	}
	if r.ReplaceBackoffMax <= 0 {
		r.ReplaceBackoffMax = defaults.ReplaceBackoffMax
	}
}

func applyTaskDefaults(t *TaskConfig) {
	if t.DefaultMaxAttempts <= 0 {
		t.DefaultMaxAttempts = 3
	}
	if t.DefaultTimeout <= 0 {
		t.DefaultTimeout = 30 * time.Minute
	}
	if t.RateLimitWait <= 0 {
		t.RateLimitWait = 5 * time.Minute
	}
	if t.MaxPermissionPrompts <= 0 {
		t.MaxPermissionPrompts = 20
	}
	if t.Retention <= 0 {
		t.Retention = 24 * time.Hour
	}
}

func warnDefault(field string, got, def interface{}) {
	log.Printf("WARN config: invalid %s=%v, falling back to default %v", field, got, def)
}
