package config

const (
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultLocale             = "en"
	defaultAPIPort            = 3015
	defaultMaxFileSize        = 524288000 // 500MB
	defaultStoragePath        = "~/.local/share/mediaforge/storage"
	defaultRetentionHours     = 24
	defaultCleanupIntervalMin = 10
	defaultRedisAddr          = "localhost:6379"
	defaultRedisPoolSize      = 10
	defaultHistoryDriver      = "sqlite"
	defaultHistoryDSN         = "~/.local/share/mediaforge/history.db"
	defaultWorkerConcurrency  = 4
	defaultTmpDir             = "/tmp/mediaforge"
	defaultLockFile           = "/tmp/mediaforge/worker.lock"
	defaultMaxRetries         = 1
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Slim: Slim{BitratePrecheck: true},
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Locale: Locale{Default: defaultLocale},
		API: API{
			Port:               defaultAPIPort,
			MaxFileSize:        defaultMaxFileSize,
			StoragePath:        defaultStoragePath,
			RetentionHours:     defaultRetentionHours,
			CleanupIntervalMin: defaultCleanupIntervalMin,
		},
		Queue: Queue{
			RedisAddr: defaultRedisAddr,
			PoolSize:  defaultRedisPoolSize,
		},
		History: History{
			Driver: defaultHistoryDriver,
			DSN:    defaultHistoryDSN,
		},
		Worker: Worker{
			Concurrency: defaultWorkerConcurrency,
			TmpDir:      defaultTmpDir,
			LockFile:    defaultLockFile,
			MaxRetries:  defaultMaxRetries,
		},
		Timeouts: map[string]int{
			"convert-image": 120,
			"convert-pdf":   300,
			"convert-video": 1800,
			"convert-audio": 300,
			"slim":          1800,
			"upscale":       900,
			"compress":      300,
			"extract":       300,
		},
	}
}
