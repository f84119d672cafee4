package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/UniQw/aiqueue/config"
	"github.com/sirupsen/logrus"
)

// newLogger builds a logrus logger from the logger section. The returned
// func closes the log file, if one was opened.
func newLogger(c *config.Logger, stderr io.Writer) (*logrus.Logger, func() error, error) {
	l := logrus.New()
	closeFn := func() error { return nil }

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l.SetLevel(level)

	if strings.EqualFold(c.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(c.Output) {
	case "", "stderr":
		l.SetOutput(stderr)
	case "stdout":
		l.SetOutput(os.Stdout)
	case "file":
		if c.OutputFile == "" {
			return nil, nil, errors.New("logger: output_file is required when output is file")
		}
		f, err := os.OpenFile(c.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logger: open log file: %w", err)
		}
		l.SetOutput(f)
		closeFn = f.Close
	default:
		return nil, nil, fmt.Errorf("logger: unknown output %q", c.Output)
	}
	return l, closeFn, nil
}
