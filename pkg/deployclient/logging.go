package deployclient

import (
	"bytes"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nais/sitedeploy/pkg/deploysite"
)

type ActionsFormatter struct{}

func SetupLogging(cfg Config) {
	log.SetOutput(os.Stderr)

	if cfg.Actions {
		log.SetFormatter(&ActionsFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			DisableLevelTruncation: true,
		})
	}

	if cfg.Quiet {
		log.SetLevel(log.ErrorLevel)
	}
}

func (a *ActionsFormatter) Format(e *log.Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	switch e.Level {
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		buf.WriteString("::error::")
	case log.WarnLevel:
		buf.WriteString("::warning::")
	case log.DebugLevel, log.TraceLevel:
		buf.WriteString("::debug::")
	default:
		buf.WriteString("[")
		buf.WriteString(e.Time.Format(time.RFC3339Nano))
		buf.WriteString("] ")
	}
	buf.WriteString(e.Message)
	buf.WriteRune('\n')
	return buf.Bytes(), nil
}

// LogObserver renders pipeline progress events as log lines.
var LogObserver deploysite.Observer = deploysite.ObserverFunc(logEvent)

func logEvent(event deploysite.Event) {
	entry := log.WithField("event", string(event.Type))
	switch event.Phase {
	case deploysite.PhaseProgress:
		entry.Debug(event.Message)
	case deploysite.PhaseError:
		entry.Error(event.Message)
	default:
		entry.Info(event.Message)
	}
}
