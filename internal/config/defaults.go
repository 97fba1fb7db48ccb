package config

const (
	defaultDataDir          = "~/.local/share/podium"
	defaultLogDir           = "~/.local/share/podium/logs"
	defaultRendererBaseURL  = "http://127.0.0.1:8807"
	defaultRendererTimeout  = 120
	defaultPollInterval     = 2
	defaultPollMaxAttempts  = 150
	defaultPollMaxTransient = 3
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Renderer: Renderer{
			BaseURL:        defaultRendererBaseURL,
			RequestTimeout: defaultRendererTimeout,
		},
		Polling: Polling{
			IntervalSeconds:      defaultPollInterval,
			MaxAttempts:          defaultPollMaxAttempts,
			MaxTransientFailures: defaultPollMaxTransient,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
