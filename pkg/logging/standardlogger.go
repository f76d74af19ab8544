package logging

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// standardLogger writes everything at a fixed level.
type standardLogger struct {
	logger *log.Logger
	level  log.Level
}

func (d *standardLogger) Print(v ...interface{}) {
	d.logger.Log(d.level, v...)
}

func (d *standardLogger) Printf(format string, v ...interface{}) {
	d.logger.Logf(d.level, format, v...)
}

func (d *standardLogger) Println(v ...interface{}) {
	d.logger.Logln(d.level, v...)
}

// New returns a logger that writes every message at the given level.
func New(level, format string) (*standardLogger, error) {
	var err error

	l := &standardLogger{}
	l.logger = log.New()

	switch format {
	case "json":
		l.logger.SetFormatter(jsonFormatter())
	case "text":
		l.logger.SetFormatter(textFormatter())
	default:
		return nil, fmt.Errorf("log format '%s' is not recognized", format)
	}

	l.level, err = log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("while setting log level: %s", err)
	}
	l.logger.SetLevel(l.level)

	return l, nil
}

// Writer returns an io.Writer for wiring into log.New from the standard library.
func (d *standardLogger) Writer() *io.PipeWriter {
	return d.logger.WriterLevel(d.level)
}
