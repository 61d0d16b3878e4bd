package config

const (
	defaultStateDir          = "~/.local/share/genqueue"
	defaultLogDir            = "~/.local/share/genqueue/logs"
	defaultBaseURL           = "http://127.0.0.1:8000"
	defaultCSRFHeader        = "X-CSRFToken"
	defaultTimeoutSeconds    = 30
	defaultStoreBackend      = "sqlite"
	defaultUserKey           = "anon"
	defaultRedisAddr         = "localhost:6379"
	defaultRedisPrefix       = "genqueue"
	defaultRedisTTLHours     = 48
	defaultInitialIntervalMS = 950
	defaultMultiplier        = 1.15
	defaultMaxIntervalMS     = 2500
	defaultVideoIntervalMS   = 1000
	defaultHiddenFactor      = 2
	defaultMaxAttempts       = 120
	defaultSlowIntervalMS    = 5000
	defaultRetryIntervalMS   = 1500
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Server: Server{
			BaseURL:        defaultBaseURL,
			CSRFHeader:     defaultCSRFHeader,
			TimeoutSeconds: defaultTimeoutSeconds,
			Image: Endpoints{
				Submit:    "/generate/image/",
				Status:    "/generate/status/",
				Completed: "/generate/api/completed-jobs/?type=image",
				Persist:   "/generate/persist/",
				Clear:     "/generate/queue/clear/",
				Remove:    "/generate/queue/remove/",
			},
			Video: Endpoints{
				Submit:    "/generate/video/",
				Status:    "/generate/video/status/",
				Completed: "/generate/api/completed-jobs/?type=video",
				Persist:   "/generate/video/persist/",
				Clear:     "/generate/queue/clear/",
				Remove:    "/generate/queue/remove/",
			},
		},
		Store: Store{
			Backend:       defaultStoreBackend,
			UserKey:       defaultUserKey,
			RedisAddr:     defaultRedisAddr,
			RedisPrefix:   defaultRedisPrefix,
			RedisTTLHours: defaultRedisTTLHours,
		},
		Poll: Poll{
			InitialIntervalMS: defaultInitialIntervalMS,
			Multiplier:        defaultMultiplier,
			MaxIntervalMS:     defaultMaxIntervalMS,
			VideoIntervalMS:   defaultVideoIntervalMS,
			HiddenFactor:      defaultHiddenFactor,
			MaxAttempts:       defaultMaxAttempts,
			SlowIntervalMS:    defaultSlowIntervalMS,
			RetryIntervalMS:   defaultRetryIntervalMS,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: 10,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
