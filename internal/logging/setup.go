package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/jmylchreest/slog-logfilter"
)

// Setup installs the process-wide logger. Format is "json" (default) or "text".
func Setup(logLevel string, format string) *slog.Logger {
	opts := []logfilter.Option{
		logfilter.WithLevel(ParseLevel(logLevel)),
		logfilter.WithOutput(os.Stdout),
	}

	if strings.EqualFold(format, "text") {
		opts = append(opts, logfilter.WithFormat("text"))
	} else {
		opts = append(opts, logfilter.WithFormat("json"))
	}

	logger := logfilter.New(opts...)
	slog.SetDefault(logger)
	return logger
}

func SetLevel(level slog.Level) {
	logfilter.SetLevel(level)
}

// AddJobFilter emits debug output for a single reanalysis job regardless of
// the global level. Matches records carrying the job_id attribute.
func AddJobFilter(jobID string) {
	logfilter.AddFilter(logfilter.LogFilter{
		Type:    "job_id",
		Pattern: jobID,
		Level:   "debug",
		Enabled: true,
	})
}

// ParseLevel maps a config string to a level, falling back to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
