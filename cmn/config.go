// Package cmn provides types and constants shared by all sandesh subsystems.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
)

// Config carries generator tunables. The zero value is unusable; start from
// DefaultConfig and override, or load overrides from a YAML file.
type Config struct {
	// connection state machine
	IdleHoldTime time.Duration `yaml:"idle_hold_time"` // 0 fires immediately
	ConnectTime  time.Duration `yaml:"connect_time"`

	// session keepalive
	KeepaliveIdle     time.Duration `yaml:"keepalive_idle"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	KeepaliveProbes   int           `yaml:"keepalive_probes"`
	TCPUserTimeout    time.Duration `yaml:"tcp_user_timeout"`

	// send queue
	SendQueueBounded  bool            `yaml:"send_queue_bounded"`
	SendQueueMaxBytes int64           `yaml:"send_queue_max_bytes"`
	HighWatermarks    []LevelWatermark `yaml:"high_watermarks"`
	LowWatermarks     []LevelWatermark `yaml:"low_watermarks"`

	// rate limiter
	SystemLogsPerSec int `yaml:"system_logs_per_sec"`

	// logging
	LogFile        string `yaml:"log_file"`
	LogMaxFileSize int64  `yaml:"log_max_file_size"`

	DoRateLimitDropLog bool `yaml:"rate_limit_drop_log"`
}

// LevelWatermark pairs a queue byte threshold with the send level the
// crossing installs.
type LevelWatermark struct {
	Bytes int64 `yaml:"bytes"`
	Level Level `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		IdleHoldTime:      5 * time.Second,
		ConnectTime:       30 * time.Second,
		KeepaliveIdle:     15 * time.Second,
		KeepaliveInterval: 3 * time.Second,
		KeepaliveProbes:   5,
		TCPUserTimeout:    30 * time.Second,

		SendQueueBounded:  false,
		SendQueueMaxBytes: 256 * MiB,
		HighWatermarks: []LevelWatermark{
			{Bytes: 24 * MiB, Level: LevelDebug},
			{Bytes: 32 * MiB, Level: LevelInfo},
			{Bytes: 40 * MiB, Level: LevelNotice},
		},
		LowWatermarks: []LevelWatermark{
			{Bytes: 36 * MiB, Level: LevelInfo},
			{Bytes: 28 * MiB, Level: LevelDebug},
			{Bytes: 20 * MiB, Level: LevelInvalid},
		},

		SystemLogsPerSec: DefaultSendRateLimit,

		LogFile:            "",
		LogMaxFileSize:     10 * MiB,
		DoRateLimitDropLog: true,
	}
}

// DefaultSendRateLimit caps system-log sends per wall-clock second.
const DefaultSendRateLimit = 100

// yamlConfig shadows Config for file parsing: durations come in as "30s"
// style strings.
type yamlConfig struct {
	IdleHoldTime      *string          `yaml:"idle_hold_time"`
	ConnectTime       *string          `yaml:"connect_time"`
	KeepaliveIdle     *string          `yaml:"keepalive_idle"`
	KeepaliveInterval *string          `yaml:"keepalive_interval"`
	KeepaliveProbes   *int             `yaml:"keepalive_probes"`
	TCPUserTimeout    *string          `yaml:"tcp_user_timeout"`
	SendQueueBounded  *bool            `yaml:"send_queue_bounded"`
	SendQueueMaxBytes *int64           `yaml:"send_queue_max_bytes"`
	HighWatermarks    []LevelWatermark `yaml:"high_watermarks"`
	LowWatermarks     []LevelWatermark `yaml:"low_watermarks"`
	SystemLogsPerSec  *int             `yaml:"system_logs_per_sec"`
	LogFile           *string          `yaml:"log_file"`
	LogMaxFileSize    *int64           `yaml:"log_max_file_size"`
	RateLimitDropLog  *bool            `yaml:"rate_limit_drop_log"`
}

// LoadConfig overlays YAML from path onto the defaults. A missing file is
// not an error; a malformed one is.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(b, &yc); err != nil {
		return nil, err
	}
	if err := overlayDur(&cfg.IdleHoldTime, yc.IdleHoldTime, true); err != nil {
		return nil, err
	}
	if err := overlayDur(&cfg.ConnectTime, yc.ConnectTime, false); err != nil {
		return nil, err
	}
	if err := overlayDur(&cfg.KeepaliveIdle, yc.KeepaliveIdle, false); err != nil {
		return nil, err
	}
	if err := overlayDur(&cfg.KeepaliveInterval, yc.KeepaliveInterval, false); err != nil {
		return nil, err
	}
	if err := overlayDur(&cfg.TCPUserTimeout, yc.TCPUserTimeout, false); err != nil {
		return nil, err
	}
	if yc.KeepaliveProbes != nil {
		cfg.KeepaliveProbes = *yc.KeepaliveProbes
	}
	if yc.SendQueueBounded != nil {
		cfg.SendQueueBounded = *yc.SendQueueBounded
	}
	if yc.SendQueueMaxBytes != nil {
		cfg.SendQueueMaxBytes = *yc.SendQueueMaxBytes
	}
	if yc.HighWatermarks != nil {
		cfg.HighWatermarks = yc.HighWatermarks
	}
	if yc.LowWatermarks != nil {
		cfg.LowWatermarks = yc.LowWatermarks
	}
	if yc.SystemLogsPerSec != nil {
		cfg.SystemLogsPerSec = *yc.SystemLogsPerSec
	}
	if yc.LogFile != nil {
		cfg.LogFile = *yc.LogFile
	}
	if yc.LogMaxFileSize != nil {
		cfg.LogMaxFileSize = *yc.LogMaxFileSize
	}
	if yc.RateLimitDropLog != nil {
		cfg.DoRateLimitDropLog = *yc.RateLimitDropLog
	}
	return cfg, nil
}

// overlayDur parses one optional duration override; zeroOK admits "0"
// (the idle-hold timer treats zero as fire-immediately).
func overlayDur(dst *time.Duration, src *string, zeroOK bool) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return err
	}
	if d < 0 || (d == 0 && !zeroOK) {
		return nil
	}
	*dst = d
	return nil
}
