// Package config resolves the tunable constants of the replication engine
// from built-in defaults, an optional config file, and ATOMEDIT_-prefixed
// environment variables, using Viper the way the rest of the corpus does.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable named in the design: peer capacity, polling
// and batching intervals, the merge threshold, mailbox capacity, and the
// shared file locations.
type Config struct {
	MaxPeers        int
	PollInterval    time.Duration
	BatchTick       time.Duration
	SettleDelay     time.Duration
	OpThreshold     int
	MailboxCapacity int
	SendRetries     int
	SendRetryBase   time.Duration
	HeartbeatPeriod time.Duration
	StalePeerAfter  time.Duration

	MasterFile   string
	RegistryPath string
	MailboxPort  int
}

// Default mirrors the original implementation's named constants (MaxUsers,
// PollInt, BatchInt, OpThreshold, ShmName/MasterFile) translated to this
// repository's configuration surface.
func Default() Config {
	return Config{
		MaxPeers:        5,
		PollInterval:    2 * time.Second,
		BatchTick:       50 * time.Millisecond,
		SettleDelay:     30 * time.Millisecond,
		OpThreshold:     5,
		MailboxCapacity: 10,
		SendRetries:     4,
		SendRetryBase:   120 * time.Millisecond,
		HeartbeatPeriod: 2 * time.Second,
		StalePeerAfter:  30 * time.Second,

		MasterFile:   "centeralFile.txt",
		RegistryPath: "registry.db",
		MailboxPort:  0, // 0 == let the OS pick a free port
	}
}

// Load resolves Config from defaults, an optional file at configPath (if
// non-empty and present), and ATOMEDIT_ environment variables, in that
// priority order.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("ATOMEDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("max_peers", cfg.MaxPeers)
	v.SetDefault("poll_interval", cfg.PollInterval)
	v.SetDefault("batch_tick", cfg.BatchTick)
	v.SetDefault("settle_delay", cfg.SettleDelay)
	v.SetDefault("op_threshold", cfg.OpThreshold)
	v.SetDefault("mailbox_capacity", cfg.MailboxCapacity)
	v.SetDefault("send_retries", cfg.SendRetries)
	v.SetDefault("send_retry_base", cfg.SendRetryBase)
	v.SetDefault("heartbeat_period", cfg.HeartbeatPeriod)
	v.SetDefault("stale_peer_after", cfg.StalePeerAfter)
	v.SetDefault("master_file", cfg.MasterFile)
	v.SetDefault("registry_path", cfg.RegistryPath)
	v.SetDefault("mailbox_port", cfg.MailboxPort)

	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return cfg, err
				}
			}
		}
	}

	cfg.MaxPeers = v.GetInt("max_peers")
	cfg.PollInterval = v.GetDuration("poll_interval")
	cfg.BatchTick = v.GetDuration("batch_tick")
	cfg.SettleDelay = v.GetDuration("settle_delay")
	cfg.OpThreshold = v.GetInt("op_threshold")
	cfg.MailboxCapacity = v.GetInt("mailbox_capacity")
	cfg.SendRetries = v.GetInt("send_retries")
	cfg.SendRetryBase = v.GetDuration("send_retry_base")
	cfg.HeartbeatPeriod = v.GetDuration("heartbeat_period")
	cfg.StalePeerAfter = v.GetDuration("stale_peer_after")
	cfg.MasterFile = v.GetString("master_file")
	cfg.RegistryPath = v.GetString("registry_path")
	cfg.MailboxPort = v.GetInt("mailbox_port")

	return cfg, nil
}
