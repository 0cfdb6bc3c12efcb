package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	wstrings "warden/pkg/platform/strings"
)

type setter func(c *Config, v string) error

func intKnob(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatKnob(field func(*Config) *float64) setter {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func stringKnob(field func(*Config) *string) setter {
	return func(c *Config, v string) error {
		*field(c) = strings.TrimSpace(v)
		return nil
	}
}

func listKnob(field func(*Config) *[]string) setter {
	return func(c *Config, v string) error {
		*field(c) = wstrings.DedupeAndTrim(strings.Split(v, ","))
		return nil
	}
}

func categoryKnob(category string, set func(b *Bucket, v string) error) setter {
	return func(c *Config, v string) error {
		if c.RateLimit.Categories == nil {
			c.RateLimit.Categories = make(map[string]Bucket)
		}
		b := c.RateLimit.Categories[category]
		if err := set(&b, strings.TrimSpace(v)); err != nil {
			return err
		}
		c.RateLimit.Categories[category] = b
		return nil
	}
}

func init() {
	for _, cat := range RateLimitCategories {
		knobs["rateLimit.categories."+cat+".capacity"] = categoryKnob(cat, func(b *Bucket, v string) error {
			n, err := strconv.Atoi(v)
			b.Capacity = n
			return err
		})
		knobs["rateLimit.categories."+cat+".refillPerSecond"] = categoryKnob(cat, func(b *Bucket, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			b.RefillPerSecond = f
			return err
		})
	}
}

// knobs maps every externally recognized name to its field.
var knobs = map[string]setter{
	"rateLimit.capacity":               intKnob(func(c *Config) *int { return &c.RateLimit.Capacity }),
	"rateLimit.refillPerSecond":        floatKnob(func(c *Config) *float64 { return &c.RateLimit.RefillPerSecond }),
	"rateLimit.idleSeconds":            intKnob(func(c *Config) *int { return &c.RateLimit.IdleSeconds }),
	"antiSpam.warnThreshold":           floatKnob(func(c *Config) *float64 { return &c.AntiSpam.WarnThreshold }),
	"antiSpam.restrictThreshold":       floatKnob(func(c *Config) *float64 { return &c.AntiSpam.RestrictThreshold }),
	"antiSpam.windowSeconds":           intKnob(func(c *Config) *int { return &c.AntiSpam.WindowSeconds }),
	"antiSpam.decayHalfLifeSeconds":    intKnob(func(c *Config) *int { return &c.AntiSpam.DecayHalfLifeSeconds }),
	"antiSpam.restrictBaseSeconds":     intKnob(func(c *Config) *int { return &c.AntiSpam.RestrictBaseSeconds }),
	"antiSpam.restrictMaxSeconds":      intKnob(func(c *Config) *int { return &c.AntiSpam.RestrictMaxSeconds }),
	"antiSpam.weights.frequency":       floatKnob(func(c *Config) *float64 { return &c.AntiSpam.Weights.Frequency }),
	"antiSpam.weights.duplicate":       floatKnob(func(c *Config) *float64 { return &c.AntiSpam.Weights.Duplicate }),
	"antiSpam.weights.mention":         floatKnob(func(c *Config) *float64 { return &c.AntiSpam.Weights.Mention }),
	"antiSpam.weights.link":            floatKnob(func(c *Config) *float64 { return &c.AntiSpam.Weights.Link }),
	"joinGate.burstThreshold":          intKnob(func(c *Config) *int { return &c.JoinGate.BurstThreshold }),
	"joinGate.windowSeconds":           intKnob(func(c *Config) *int { return &c.JoinGate.WindowSeconds }),
	"joinGate.lockdownCooldownSeconds": intKnob(func(c *Config) *int { return &c.JoinGate.LockdownCooldownSeconds }),
	"joinGate.minAccountAgeSeconds":    intKnob(func(c *Config) *int { return &c.JoinGate.MinAccountAgeSeconds }),
	"joinGate.minTrustScore":           floatKnob(func(c *Config) *float64 { return &c.JoinGate.MinTrustScore }),
	"joinGate.strictness":              stringKnob(func(c *Config) *string { return &c.JoinGate.Strictness }),
	"signature.skewSeconds":            intKnob(func(c *Config) *int { return &c.Signature.SkewSeconds }),
	"signature.replayCacheSize":        intKnob(func(c *Config) *int { return &c.Signature.ReplayCacheSize }),
	"backup.intervalHours":             intKnob(func(c *Config) *int { return &c.Backup.IntervalHours }),
	"backup.retain":                    intKnob(func(c *Config) *int { return &c.Backup.Retain }),
	"backup.timeoutSeconds":            intKnob(func(c *Config) *int { return &c.Backup.TimeoutSeconds }),
	"backup.concurrency":               intKnob(func(c *Config) *int { return &c.Backup.Concurrency }),
	"backup.guilds":                    listKnob(func(c *Config) *[]string { return &c.Backup.Guilds }),
	"audit.bufferSize":                 intKnob(func(c *Config) *int { return &c.Audit.BufferSize }),
	"audit.batchSize":                  intKnob(func(c *Config) *int { return &c.Audit.BatchSize }),
	"redis.url":                        stringKnob(func(c *Config) *string { return &c.Redis.URL }),
	"postgres.dsn":                     stringKnob(func(c *Config) *string { return &c.Postgres.DSN }),
	"kafka.brokers":                    listKnob(func(c *Config) *[]string { return &c.Kafka.Brokers }),
	"kafka.auditTopic":                 stringKnob(func(c *Config) *string { return &c.Kafka.AuditTopic }),
	"admin.addr":                       stringKnob(func(c *Config) *string { return &c.Admin.Addr }),
	"admin.jwtSecret":                  stringKnob(func(c *Config) *string { return &c.Admin.JWTSecret }),
	"log.level":                        stringKnob(func(c *Config) *string { return &c.Log.Level }),
	"log.format":                       stringKnob(func(c *Config) *string { return &c.Log.Format }),
}

// Knobs lists the recognized knob names in sorted order.
func Knobs() []string {
	names := make([]string, 0, len(knobs))
	for name := range knobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set assigns a knob by its dotted name.
func (c *Config) Set(name, value string) error {
	set, ok := knobs[name]
	if !ok {
		return fmt.Errorf("unknown config knob %q", name)
	}
	if err := set(c, value); err != nil {
		return fmt.Errorf("config knob %s: %w", name, err)
	}
	return nil
}

// EnvName maps a knob name to its environment variable:
// "rateLimit.capacity" becomes "WARDEN_RATELIMIT_CAPACITY".
func EnvName(knob string) string {
	return "WARDEN_" + strings.ToUpper(strings.ReplaceAll(knob, ".", "_"))
}

// ApplyEnv overrides knobs present in the environment. Webhook secrets are read
// from WARDEN_SIGNATURE_SECRET_<SOURCE>.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, name := range Knobs() {
		if v, ok := lookup(EnvName(name)); ok {
			if err := c.Set(name, v); err != nil {
				return err
			}
		}
	}
	for _, source := range []string{"twitch", "youtube", "kick"} {
		if v, ok := lookup("WARDEN_SIGNATURE_SECRET_" + strings.ToUpper(source)); ok {
			if c.Signature.Secrets == nil {
				c.Signature.Secrets = make(map[string]string)
			}
			c.Signature.Secrets[source] = v
		}
	}
	return nil
}
