package config

const (
	defaultDataDir                 = "~/.local/share/tend"
	defaultLogDir                  = "~/.local/share/tend/logs"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultMailboxBaseURL          = "https://graph.microsoft.com/v1.0"
	defaultMailboxRequestTimeout   = 30
	defaultMailboxRatePerSecond    = 2.0
	defaultMailboxRateCooldown     = 60
	defaultMassEmailThreshold      = 20
	defaultLLMBaseURL              = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                = "google/gemini-3-flash-preview"
	defaultLLMReferer              = "https://github.com/tend-agent/tend"
	defaultLLMTitle                = "Tend Catalog Agent"
	defaultLLMTimeoutSeconds       = 60
	defaultCatalogRequestTimeout   = 30
	defaultCatalogRatePerSecond    = 5.0
	defaultPollInterval            = 300
	defaultInProgressStaleHours    = 24
	defaultClarificationStaleHours = 48
	defaultMaxClarificationRounds  = 2
	defaultConfidenceThreshold     = 60
	defaultCompletenessThreshold   = 70
	defaultRetryMaxAttempts        = 4
	defaultRetryBaseDelaySeconds   = 300
	defaultNotifyRequestTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Mailbox: Mailbox{
			BaseURL:            defaultMailboxBaseURL,
			RequestTimeout:     defaultMailboxRequestTimeout,
			RequestsPerSecond:  defaultMailboxRatePerSecond,
			RateLimitCooldown:  defaultMailboxRateCooldown,
			MassEmailThreshold: defaultMassEmailThreshold,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Catalog: Catalog{
			RequestTimeout:    defaultCatalogRequestTimeout,
			RequestsPerSecond: defaultCatalogRatePerSecond,
		},
		Workflow: Workflow{
			PollInterval:            defaultPollInterval,
			InProgressStaleHours:    defaultInProgressStaleHours,
			ClarificationStaleHours: defaultClarificationStaleHours,
			MaxClarificationRounds:  defaultMaxClarificationRounds,
			ConfidenceThreshold:     defaultConfidenceThreshold,
			CompletenessThreshold:   defaultCompletenessThreshold,
			RetryMaxAttempts:        defaultRetryMaxAttempts,
			RetryBaseDelaySeconds:   defaultRetryBaseDelaySeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Runs:           true,
			MassEmail:      true,
			Escalations:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
