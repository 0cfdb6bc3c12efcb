// Package config loads process configuration: defaults, then an optional YAML
// file, then environment overrides. Knobs are addressed by dotted names such as
// "rateLimit.capacity"; the YAML layout nests along the same path.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	wstrings "warden/pkg/platform/strings"
)

// Config is the full set of knobs recognized by the server.
type Config struct {
	RateLimit   RateLimit   `yaml:"rateLimit"`
	AntiSpam    AntiSpam    `yaml:"antiSpam"`
	JoinGate    JoinGate    `yaml:"joinGate"`
	Signature   Signature   `yaml:"signature"`
	Backup      Backup      `yaml:"backup"`
	Audit       Audit       `yaml:"audit"`
	Redis       Redis       `yaml:"redis"`
	Postgres    Postgres    `yaml:"postgres"`
	Kafka       Kafka       `yaml:"kafka"`
	Admin       Admin       `yaml:"admin"`
	Permissions Permissions `yaml:"permissions"`
	Log         Log         `yaml:"log"`
}

type Bucket struct {
	Capacity        int     `yaml:"capacity"`
	RefillPerSecond float64 `yaml:"refillPerSecond"`
}

// RateLimitCategories are the categories that accept per-category knobs.
var RateLimitCategories = []string{"webhook", "command", "message", "admin"}

// RateLimit holds the default bucket and per-category overrides. An override
// field left at zero inherits the default.
type RateLimit struct {
	Capacity        int               `yaml:"capacity"`
	RefillPerSecond float64           `yaml:"refillPerSecond"`
	IdleSeconds     int               `yaml:"idleSeconds"`
	Categories      map[string]Bucket `yaml:"categories"`
}

// For returns the bucket that governs category.
func (r RateLimit) For(category string) Bucket {
	b := Bucket{Capacity: r.Capacity, RefillPerSecond: r.RefillPerSecond}
	o, ok := r.Categories[category]
	if !ok {
		return b
	}
	if o.Capacity != 0 {
		b.Capacity = o.Capacity
	}
	if o.RefillPerSecond != 0 {
		b.RefillPerSecond = o.RefillPerSecond
	}
	return b
}

type Weights struct {
	Frequency float64 `yaml:"frequency"`
	Duplicate float64 `yaml:"duplicate"`
	Mention   float64 `yaml:"mention"`
	Link      float64 `yaml:"link"`
}

type AntiSpam struct {
	WarnThreshold        float64 `yaml:"warnThreshold"`
	RestrictThreshold    float64 `yaml:"restrictThreshold"`
	WindowSeconds        int     `yaml:"windowSeconds"`
	DecayHalfLifeSeconds int     `yaml:"decayHalfLifeSeconds"`
	RestrictBaseSeconds  int     `yaml:"restrictBaseSeconds"`
	RestrictMaxSeconds   int     `yaml:"restrictMaxSeconds"`
	Weights              Weights `yaml:"weights"`
}

type JoinGate struct {
	BurstThreshold          int     `yaml:"burstThreshold"`
	WindowSeconds           int     `yaml:"windowSeconds"`
	LockdownCooldownSeconds int     `yaml:"lockdownCooldownSeconds"`
	MinAccountAgeSeconds    int     `yaml:"minAccountAgeSeconds"`
	MinTrustScore           float64 `yaml:"minTrustScore"`
	Strictness              string  `yaml:"strictness"`
}

type Signature struct {
	SkewSeconds     int               `yaml:"skewSeconds"`
	ReplayCacheSize int               `yaml:"replayCacheSize"`
	Secrets         map[string]string `yaml:"secrets"`
}

type Backup struct {
	IntervalHours  int      `yaml:"intervalHours"`
	Retain         int      `yaml:"retain"`
	TimeoutSeconds int      `yaml:"timeoutSeconds"`
	Concurrency    int      `yaml:"concurrency"`
	Guilds         []string `yaml:"guilds"`
}

type Audit struct {
	BufferSize int `yaml:"bufferSize"`
	BatchSize  int `yaml:"batchSize"`
}

type Redis struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"poolSize"`
	MinIdleConns int           `yaml:"minIdleConns"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Kafka struct {
	Brokers    []string `yaml:"brokers"`
	AuditTopic string   `yaml:"auditTopic"`
}

type Admin struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwtSecret"`
}

// Permissions grants command capabilities. Keys are an actor id, which applies
// in every guild, or "<guildID>/<actorID>". The capability "*" grants all.
type Permissions struct {
	Grants map[string][]string `yaml:"grants"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		RateLimit: RateLimit{
			Capacity:        5,
			RefillPerSecond: 1,
			IdleSeconds:     600,
		},
		AntiSpam: AntiSpam{
			WarnThreshold:        6,
			RestrictThreshold:    10,
			WindowSeconds:        30,
			DecayHalfLifeSeconds: 20,
			RestrictBaseSeconds:  300,
			RestrictMaxSeconds:   3600,
			Weights:              Weights{Frequency: 1, Duplicate: 1.5, Mention: 0.5, Link: 2},
		},
		JoinGate: JoinGate{
			BurstThreshold:          10,
			WindowSeconds:           10,
			LockdownCooldownSeconds: 300,
			MinAccountAgeSeconds:    7 * 24 * 3600,
			MinTrustScore:           0.5,
			Strictness:              "hold",
		},
		Signature: Signature{
			SkewSeconds:     300,
			ReplayCacheSize: 65536,
		},
		Backup: Backup{
			IntervalHours:  6,
			Retain:         28,
			TimeoutSeconds: 30,
			Concurrency:    4,
		},
		Audit: Audit{
			BufferSize: 4096,
			BatchSize:  128,
		},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{AuditTopic: "warden.audit"},
		Admin: Admin{Addr: ":8080"},
		Log:   Log{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// WARDEN_CONFIG (if set), and environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("WARDEN_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML file onto c. Absent keys keep their current value.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.Backup.Guilds = wstrings.DedupeAndTrim(c.Backup.Guilds)
	c.Kafka.Brokers = wstrings.DedupeAndTrim(c.Kafka.Brokers)
	return nil
}

// Validate rejects values no component can operate with.
func (c *Config) Validate() error {
	var errs []error
	if c.RateLimit.Capacity <= 0 {
		errs = append(errs, errors.New("rateLimit.capacity must be positive"))
	}
	if c.RateLimit.RefillPerSecond <= 0 {
		errs = append(errs, errors.New("rateLimit.refillPerSecond must be positive"))
	}
	for name := range c.RateLimit.Categories {
		if b := c.RateLimit.For(name); b.Capacity <= 0 || b.RefillPerSecond <= 0 {
			errs = append(errs, fmt.Errorf("rateLimit.categories.%s must have positive capacity and refill", name))
		}
	}
	if c.AntiSpam.WarnThreshold <= 0 || c.AntiSpam.RestrictThreshold < c.AntiSpam.WarnThreshold {
		errs = append(errs, errors.New("antiSpam thresholds must satisfy 0 < warnThreshold <= restrictThreshold"))
	}
	if c.AntiSpam.WindowSeconds <= 0 {
		errs = append(errs, errors.New("antiSpam.windowSeconds must be positive"))
	}
	if c.JoinGate.BurstThreshold <= 0 || c.JoinGate.WindowSeconds <= 0 {
		errs = append(errs, errors.New("joinGate.burstThreshold and joinGate.windowSeconds must be positive"))
	}
	if c.JoinGate.Strictness != "hold" && c.JoinGate.Strictness != "reject" {
		errs = append(errs, fmt.Errorf("joinGate.strictness must be hold or reject, got %q", c.JoinGate.Strictness))
	}
	if c.Signature.SkewSeconds <= 0 {
		errs = append(errs, errors.New("signature.skewSeconds must be positive"))
	}
	if c.Backup.IntervalHours <= 0 {
		errs = append(errs, errors.New("backup.intervalHours must be positive"))
	}
	return errors.Join(errs...)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (r RateLimit) IdleTTL() time.Duration { return seconds(r.IdleSeconds) }

func (a AntiSpam) Window() time.Duration { return seconds(a.WindowSeconds) }

func (a AntiSpam) DecayHalfLife() time.Duration { return seconds(a.DecayHalfLifeSeconds) }

func (a AntiSpam) RestrictBase() time.Duration { return seconds(a.RestrictBaseSeconds) }

func (a AntiSpam) RestrictMax() time.Duration { return seconds(a.RestrictMaxSeconds) }

func (j JoinGate) Window() time.Duration { return seconds(j.WindowSeconds) }

func (j JoinGate) LockdownCooldown() time.Duration { return seconds(j.LockdownCooldownSeconds) }

func (j JoinGate) MinAccountAge() time.Duration { return seconds(j.MinAccountAgeSeconds) }

func (s Signature) Skew() time.Duration { return seconds(s.SkewSeconds) }

func (b Backup) Interval() time.Duration { return time.Duration(b.IntervalHours) * time.Hour }

func (b Backup) Timeout() time.Duration { return seconds(b.TimeoutSeconds) }
