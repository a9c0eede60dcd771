package mainboilerplate

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"warn" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// InitLog configures the standard logger to write events of at least the
// configured level to stderr, leaving stdout to command output.
func InitLog(cfg LogConfig) {
	var lvl, err = log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithFields(log.Fields{"level": cfg.Level, "err": err}).Fatal("unrecognized log level")
	}
	log.SetOutput(os.Stderr)
	log.SetFormatter(logFormatter(cfg.Format))
	log.SetLevel(lvl)
}

// logFormatter maps a LogConfig Format to its Formatter. Unknown formats
// are plain text.
func logFormatter(format string) log.Formatter {
	switch format {
	case "json":
		return &log.JSONFormatter{}
	case "color":
		return &log.TextFormatter{ForceColors: true, FullTimestamp: true}
	default:
		return &log.TextFormatter{}
	}
}
