package config

import (
	"time"

	"github.com/jpalmerr/etagwatch"
)

// Build converts a parsed configuration into a ready [etagwatch.Watcher].
//
// The config must already be validated, which [Load] and [Parse] guarantee.
func Build(cfg *Config) (*etagwatch.Watcher, error) {
	return etagwatch.New(cfg.WatchURL, BuildOptions(cfg)...)
}

// BuildOptions converts a parsed configuration into SDK options.
func BuildOptions(cfg *Config) []etagwatch.Option {
	opts := []etagwatch.Option{
		etagwatch.WithPort(cfg.Port),
		etagwatch.WithPollInterval(cfg.PollInterval.Duration()),
		etagwatch.WithRestartBackoff(cfg.RestartBackoff.Duration()),
		etagwatch.WithProbeTimeout(cfg.ProbeTimeout.Duration()),
		etagwatch.WithStateFile(cfg.StateFile),
		etagwatch.WithHTTPRequestQuota(cfg.Quotas.HTTPRequestsPerMinute, time.Minute),
		etagwatch.WithSubscriberQuota(cfg.Quotas.SubscriberConnections, cfg.Quotas.SubscriberMessagesPerMinute, time.Minute),
		etagwatch.WithMaxMessageBytes(cfg.Quotas.MaxMessageBytes),
		etagwatch.WithHeartbeatInterval(cfg.HeartbeatInterval.Duration()),
	}

	if cfg.SuppressInitialChange {
		opts = append(opts, etagwatch.WithInitialChangeSuppressed())
	}

	if len(cfg.Email.Recipients) > 0 {
		opts = append(opts, etagwatch.WithEmailNotifications(etagwatch.EmailSettings{
			Host:       cfg.Email.Host,
			Port:       cfg.Email.Port,
			From:       cfg.Email.From,
			Username:   cfg.Email.Username,
			Password:   cfg.Email.Password,
			Recipients: cfg.Email.Recipients,
		}))
	}

	return opts
}
