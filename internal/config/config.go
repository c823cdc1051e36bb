package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config настройки терминала. Источники в порядке приоритета:
// значения по умолчанию < yaml-файл < переменные окружения.
type Config struct {
	ListenAddr     string
	BackendURL     string
	HealthPath     string
	BranchID       string
	RedisURL       string // пусто — in-memory хранилище
	RequestTimeout time.Duration
	ProbeInterval  time.Duration
}

// fileConfig сырой вид yaml-файла; длительности записываются строками
// вида "5s" и разбираются отдельно
type fileConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	BackendURL     string `yaml:"backend_url"`
	HealthPath     string `yaml:"health_path"`
	BranchID       string `yaml:"branch_id"`
	RedisURL       string `yaml:"redis_url"`
	RequestTimeout string `yaml:"request_timeout"`
	ProbeInterval  string `yaml:"probe_interval"`
}

func Default() Config {
	return Config{
		ListenAddr:     ":9091",
		BackendURL:     "http://localhost:8080",
		HealthPath:     "/health",
		RequestTimeout: 5 * time.Second,
		ProbeInterval:  10 * time.Second,
	}
}

// Load читает конфиг из yaml-файла (path может быть пустым) и накладывает
// переменные окружения
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		if err := apply(&cfg, fc); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	if cfg.BackendURL == "" {
		return cfg, fmt.Errorf("backend_url is required")
	}
	return cfg, nil
}

func apply(cfg *Config, fc fileConfig) error {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.BackendURL != "" {
		cfg.BackendURL = fc.BackendURL
	}
	if fc.HealthPath != "" {
		cfg.HealthPath = fc.HealthPath
	}
	if fc.BranchID != "" {
		cfg.BranchID = fc.BranchID
	}
	if fc.RedisURL != "" {
		cfg.RedisURL = fc.RedisURL
	}
	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("parse request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if fc.ProbeInterval != "" {
		d, err := time.ParseDuration(fc.ProbeInterval)
		if err != nil {
			return fmt.Errorf("parse probe_interval: %w", err)
		}
		cfg.ProbeInterval = d
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KASSA_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("KASSA_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("KASSA_BRANCH_ID"); v != "" {
		cfg.BranchID = v
	}
	if v := os.Getenv("KASSA_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("KASSA_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("KASSA_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ProbeInterval = d
		}
	}
}
