package config

import (
	"fmt"
	"os"
	"time"

	"exam-practice-service/internal/app"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type TierConfig struct {
	Limit    int    `yaml:"limit" validate:"gte=0"`
	Duration string `yaml:"duration"`
}

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	Exam struct {
		Base         TierConfig `yaml:"base"`
		Premium      TierConfig `yaml:"premium"`
		Milestones   []int      `yaml:"milestones" validate:"dive,gt=0"`
		HistoryLimit int        `yaml:"historyLimit" validate:"gte=0"`
	} `yaml:"exam"`
}

var validate = validator.New()

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Policy converts the exam section, filling the defaults of the free and
// premium tiers.
func (c Config) Policy() app.Policy {
	p := app.Policy{
		Base:         tier(c.Exam.Base, 20, 30*time.Minute),
		Premium:      tier(c.Exam.Premium, 100, 150*time.Minute),
		Milestones:   c.Exam.Milestones,
		HistoryLimit: c.Exam.HistoryLimit,
	}
	if len(p.Milestones) == 0 {
		p.Milestones = []int{3, 7, 14, 30, 100}
	}
	if p.HistoryLimit == 0 {
		p.HistoryLimit = 5
	}
	return p
}

func tier(t TierConfig, limit int, budget time.Duration) app.TierPolicy {
	if t.Limit > 0 {
		limit = t.Limit
	}
	return app.TierPolicy{Limit: limit, Budget: TTLDuration(t.Duration, budget)}
}
