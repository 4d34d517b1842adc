// Package logging builds the slog logger shared by the server. Records go to
// stderr and, when it can be opened, to a log file. String attributes are
// masked before they are written.
package logging

import (
	"io"
	"log/slog"
	"os"
)

type Options struct {
	Level  slog.Leveler
	File   string    // empty disables file logging
	Stderr io.Writer // os.Stderr when nil
}

// New returns the logger and a close func for the log file. A file that
// cannot be opened is reported on the returned logger and skipped.
func New(opts Options) (*slog.Logger, func() error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	out := stderr
	closer := func() error { return nil }

	var fileErr error
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fileErr = err
		} else {
			out = io.MultiWriter(stderr, f)
			closer = f.Close
		}
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: maskAttr,
	}))

	if fileErr != nil {
		logger.Warn("logging: log file unavailable, using stderr only", slog.String("file", opts.File), slog.String("error", fileErr.Error()))
	}

	return logger, closer
}

func maskAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, Mask(a.Value.String()))
	}
	return a
}
