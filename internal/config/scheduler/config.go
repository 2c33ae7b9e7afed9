package scheduler_config

import (
	"time"

	"github.com/NordCoder/pingwatch/internal/obs"
	"github.com/NordCoder/pingwatch/internal/prober"
	pginfra "github.com/NordCoder/pingwatch/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Log struct {
	Level      string `mapstructure:"level"`
	Pretty     bool   `mapstructure:"pretty"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type Storage struct {
	Driver  string `mapstructure:"driver"`
	Migrate bool   `mapstructure:"migrate"`
}

type KafkaCfg struct {
	Enable     bool     `mapstructure:"enable"`
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	Partitions int      `mapstructure:"partitions"`
}

type OutboxCfg struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	Wait          time.Duration `mapstructure:"wait"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

type SchedCfg struct {
	Tick         time.Duration `mapstructure:"tick"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Concurrency  int           `mapstructure:"concurrency"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
}

type ProbeCfg struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"`
	VerifyTLS       bool          `mapstructure:"verify_tls"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// SeedService is a service registered at startup by the memory driver.
type SeedService struct {
	Name            string `mapstructure:"name"`
	URL             string `mapstructure:"url"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	Active          *bool  `mapstructure:"active"`
}

type Config struct {
	App     App            `mapstructure:"app"`
	Log     Log            `mapstructure:"log"`
	OTEL    OTEL           `mapstructure:"otel"`
	DB      pginfra.Config `mapstructure:"db"`
	Storage Storage        `mapstructure:"storage"`
	Kafka   KafkaCfg       `mapstructure:"kafka"`
	Outbox  OutboxCfg      `mapstructure:"outbox"`
	Sched   SchedCfg       `mapstructure:"sched"`
	Probe   ProbeCfg       `mapstructure:"probe"`
	Server  Server         `mapstructure:"server"`
	Seed    []SeedService  `mapstructure:"seed"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:      c.Log.Level,
		Pretty:     c.Log.Pretty,
		App:        c.App.Name,
		Env:        c.App.Env,
		Ver:        c.App.Version,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

func (c *Config) AsOTELConfig() obs.OTELConfig {
	return obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: c.OTEL.ServiceName,
		Version:     c.App.Version,
		Env:         c.App.Env,
		SampleRatio: c.OTEL.SampleRatio,
	}
}

func (pc *ProbeCfg) AsProberConfig() prober.Config {
	return prober.Config{
		Timeout:         pc.Timeout,
		UserAgent:       pc.UserAgent,
		FollowRedirects: pc.FollowRedirects,
		MaxRedirects:    pc.MaxRedirects,
		VerifyTLS:       pc.VerifyTLS,
	}
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
