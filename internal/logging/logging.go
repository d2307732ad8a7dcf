// Package logging builds the logrus logger used by the command and adapts it
// to the client's error sink and event bus.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	client "github.com/hanpama/gqlfeed/internal/client"
	eventbus "github.com/hanpama/gqlfeed/internal/eventbus"
	events "github.com/hanpama/gqlfeed/internal/events"
	reqid "github.com/hanpama/gqlfeed/internal/reqid"
)

// Config selects level, format ("text" or "json"), and output ("stdout" or
// "stderr").
type Config struct {
	Level  string
	Format string
	Output string
}

// New creates a logger from c. Empty fields fall back to info, text, stderr.
func New(c Config) (*logrus.Logger, error) {
	l := logrus.New()

	level := logrus.InfoLevel
	if c.Level != "" {
		lv, err := logrus.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = lv
	}
	l.SetLevel(level)

	switch strings.ToLower(c.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", c.Format)
	}

	var out io.Writer
	switch strings.ToLower(c.Output) {
	case "stdout":
		out = os.Stdout
	case "", "stderr":
		out = os.Stderr
	default:
		return nil, fmt.Errorf("logging: unknown output %q", c.Output)
	}
	l.SetOutput(out)
	return l, nil
}

// Sink reports query errors as warnings.
func Sink(l logrus.FieldLogger) client.ErrorSink {
	return client.SinkFunc(func(errs []client.QueryError) {
		for _, e := range errs {
			entry := l.WithFields(logrus.Fields{})
			if len(e.Path) > 0 {
				entry = entry.WithField("path", formatPath(e.Path))
			}
			if code, ok := e.Extensions["code"]; ok {
				entry = entry.WithField("code", code)
			}
			if len(e.Locations) > 0 {
				entry = entry.WithField("line", e.Locations[0].Line)
			}
			entry.Warn(e.Message)
		}
	})
}

func formatPath(path []any) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".")
}

// Subscribe logs client events at debug level through the global bus.
func Subscribe(l logrus.FieldLogger) (unsubscribe func()) {
	withID := func(ctx context.Context) logrus.FieldLogger {
		if id, ok := reqid.FromContext(ctx); ok {
			return l.WithField("request_id", id)
		}
		return l
	}
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.QueryFinish) {
			entry := withID(ctx).WithFields(logrus.Fields{
				"operation": e.OperationName,
				"has_data":  e.HasData,
				"errors":    len(e.Errors),
				"duration":  e.Duration,
			})
			if e.Err != nil {
				entry.WithError(e.Err).Debug("query failed")
				return
			}
			entry.Debug("query finished")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			withID(ctx).WithFields(logrus.Fields{
				"url":      e.Request.URL.String(),
				"status":   e.Status,
				"duration": e.Duration,
			}).Debug("http round trip")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.PageApplied) {
			l.WithFields(logrus.Fields{
				"operation": e.OperationName,
				"added":     e.Items,
				"total":     e.Total,
				"has_more":  e.HasMore,
			}).Debug("page applied")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.RecordLoaded) {
			l.WithFields(logrus.Fields{
				"operation": e.OperationName,
				"id":        e.ID,
			}).Debug("record loaded")
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
