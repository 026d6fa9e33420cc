package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validate checks ranges and parses derived fields.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 bytes"))
	}
	if c.Auth.RootSubject == "" {
		errs = append(errs, errors.New("auth.root_subject is required"))
	}
	if c.Database.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("database.resolve_timeout must be positive"))
	}

	if c.Audit.RetentionDays < 1 {
		errs = append(errs, errors.New("audit.retention_days must be >= 1"))
	}
	at, err := time.Parse("15:04", c.Audit.RetentionAt)
	if err != nil {
		errs = append(errs, fmt.Errorf("audit.retention_at %q: want HH:MM", c.Audit.RetentionAt))
	} else {
		c.Audit.RetentionHour, c.Audit.RetentionMinute = at.Hour(), at.Minute()
	}
	if c.Audit.StatsInterval < time.Minute {
		errs = append(errs, errors.New("audit.stats_interval must be >= 1m"))
	}
	if c.Audit.StatsWindow < 0 {
		errs = append(errs, errors.New("audit.stats_window must be >= 0"))
	}
	if c.Audit.WriteTimeout <= 0 {
		errs = append(errs, errors.New("audit.write_timeout must be positive"))
	}
	if c.Audit.PreviewMax < 0 {
		errs = append(errs, errors.New("audit.preview_max must be >= 0"))
	}

	d := c.Dispatch
	if d.Workers < 1 {
		errs = append(errs, errors.New("dispatch.workers must be >= 1"))
	}
	if d.QueueSize < 1 || d.BacklogSize < 1 || d.BatchSize < 1 {
		errs = append(errs, errors.New("dispatch queue_size, backlog_size and batch_size must be >= 1"))
	}
	if d.PollInterval <= 0 || d.LeaseTTL <= 0 || d.BaseDelay <= 0 || d.TaskTimeout <= 0 {
		errs = append(errs, errors.New("dispatch intervals must be positive"))
	}
	if d.TaskTimeout >= d.LeaseTTL {
		errs = append(errs, errors.New("dispatch.task_timeout must be shorter than dispatch.lease_ttl"))
	}
	if d.MaxRetries < 1 || d.MaxRetries > 5 {
		errs = append(errs, errors.New("dispatch.max_retries must be in [1,5]"))
	}
	if d.WebhookMaxRetries < 1 || d.WebhookMaxRetries > 5 {
		errs = append(errs, errors.New("dispatch.webhook_max_retries must be in [1,5]"))
	}

	for i, w := range c.Notify.Webhooks {
		u, err := url.Parse(w.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("notify.webhooks[%d].url %q is not an http(s) URL", i, w.URL))
		}
		switch w.Format {
		case "", "generic", "slack":
		case "pagerduty":
			if w.RoutingKey == "" {
				errs = append(errs, fmt.Errorf("notify.webhooks[%d].routing_key is required for pagerduty", i))
			}
		default:
			errs = append(errs, fmt.Errorf("notify.webhooks[%d].format %q unknown", i, w.Format))
		}
	}
	if c.Notify.ThrottleMax < 1 || c.Notify.ThrottleWindow <= 0 {
		errs = append(errs, errors.New("notify throttle_max and throttle_window must be positive"))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want json or console", c.Log.Format))
	}

	return errors.Join(errs...)
}
