// internal/utils/logger/config.go
package logger

type Config struct {
	LogFile     string
	MaxSize     int  // megabytes
	MaxAge      int  // days
	MaxBackups  int  // files kept
	Compress    bool // gzip rotated files
	Development bool
	// Console disables stdout output when false, e.g. while a TUI owns the
	// terminal.
	Console bool
}

// DefaultConfig returns the production settings.
func DefaultConfig() *Config {
	return &Config{
		LogFile:     "logs/willwe.log",
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: false,
		Console:     true,
	}
}
