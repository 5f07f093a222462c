package config

import "strings"

// normalize expands path fields and trims string settings so validation and
// consumers see canonical values.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Mailbox.Address = strings.ToLower(strings.TrimSpace(c.Mailbox.Address))
	c.Mailbox.BaseURL = strings.TrimRight(strings.TrimSpace(c.Mailbox.BaseURL), "/")
	c.Mailbox.Token = strings.TrimSpace(c.Mailbox.Token)
	c.Mailbox.EscalationAddress = strings.ToLower(strings.TrimSpace(c.Mailbox.EscalationAddress))

	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)

	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	c.Catalog.APIKey = strings.TrimSpace(c.Catalog.APIKey)

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
