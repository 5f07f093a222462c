package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMailbox(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateMailbox() error {
	if c.Mailbox.MassEmailThreshold <= 0 {
		return errors.New("mailbox.mass_email_threshold must be positive")
	}
	if c.Mailbox.RequestsPerSecond <= 0 {
		return errors.New("mailbox.requests_per_second must be positive")
	}
	return ensurePositiveMap(map[string]int{
		"mailbox.request_timeout":     c.Mailbox.RequestTimeout,
		"mailbox.rate_limit_cooldown": c.Mailbox.RateLimitCooldown,
	})
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":             c.Workflow.PollInterval,
		"workflow.in_progress_stale_hours":   c.Workflow.InProgressStaleHours,
		"workflow.clarification_stale_hours": c.Workflow.ClarificationStaleHours,
		"workflow.retry_max_attempts":        c.Workflow.RetryMaxAttempts,
		"workflow.retry_base_delay_seconds":  c.Workflow.RetryBaseDelaySeconds,
		"notifications.request_timeout":      c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.MaxClarificationRounds < 0 {
		return errors.New("workflow.max_clarification_rounds must not be negative")
	}
	if c.Workflow.ConfidenceThreshold < 0 || c.Workflow.ConfidenceThreshold > 100 {
		return errors.New("workflow.confidence_threshold must be between 0 and 100")
	}
	if c.Workflow.CompletenessThreshold < 0 || c.Workflow.CompletenessThreshold > 100 {
		return errors.New("workflow.completeness_threshold must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
