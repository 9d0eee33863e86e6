package logging

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Config selects the level, format and destination of log output.
type Config struct {
	// Level is any logrus level name: trace, debug, info, warn, error, fatal, panic.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
	// Output is "stdout", "stderr" or a file path to append to.
	Output string `yaml:"output"`
}

// DefaultConfig logs info and above as text to stderr, leaving stdout to program output.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}

// New returns a logger configured by @cfg. Invalid settings are reported as warnings on the
// returned logger and fall back to their defaults; log files are opened on @fs.
func New(cfg Config, fs afero.Fs) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		log.SetOutput(os.Stdout)
	default:
		file, err := fs.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Warnf("Failed to open log file '%s', using stderr", cfg.Output)
		} else {
			log.SetOutput(file)
		}
	}

	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		log.Warnf("Invalid log format '%s', using 'text'", cfg.Format)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			log.Warnf("Invalid log level '%s', using 'info'", cfg.Level)
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)

	return log
}
