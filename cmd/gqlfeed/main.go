package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanpama/gqlfeed/internal/config"
	"github.com/hanpama/gqlfeed/internal/detail"
	"github.com/hanpama/gqlfeed/internal/eventbus"
	"github.com/hanpama/gqlfeed/internal/feed"
	"github.com/hanpama/gqlfeed/internal/httptp"
	"github.com/hanpama/gqlfeed/internal/launches"
	"github.com/hanpama/gqlfeed/internal/logging"
	"github.com/hanpama/gqlfeed/internal/otel"
	"github.com/hanpama/gqlfeed/internal/pagination"
)

const rootUsage = `gqlfeed: paginated GraphQL feed client

USAGE:
  gqlfeed <command> [flags]

COMMANDS:
  list             Page through launches and print them
  detail           Load one launch by id and print it
  help             Show help for any command
`

const commonUsage = `  -config <file>                 Config file (default: ./gqlfeed.yaml or $GQLFEED_CONFIG)
  -endpoint <url>                GraphQL endpoint
  -timeout <duration>            HTTP request timeout, e.g. 10s
  -load-timeout <duration>       Bound on one controller request (default: none)
  -header <Name=value>           Extra request header. Repeatable
  -log.level <level>             Log level (default: info)
  -otel.endpoint <addr>          OTLP collector endpoint
  -otel.service <name>           OpenTelemetry service name (default: gqlfeed)
`

const listUsage = `list FLAGS:
  -page-size N                   Launches per page (default: 20)
  -pages N                       Stop after N pages; 0 loads until exhausted (default: 0)
` + commonUsage

const detailUsage = `detail FLAGS:
  -id <id>                       Launch id (required)
` + commonUsage

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		logrus.Fatal(err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("gqlfeed", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "list":
		return cmdList(cmdArgs, stdout, stderr)
	case "detail":
		return cmdDetail(cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "list":
		fmt.Fprint(stdout, listUsage)
	case "detail":
		fmt.Fprint(stdout, detailUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type headerFlag map[string]string

func (h headerFlag) String() string { return "" }

func (h headerFlag) Set(v string) error {
	parts := strings.SplitN(v, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid header %q", v)
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return fmt.Errorf("invalid header %q", v)
	}
	h[name] = strings.TrimSpace(parts[1])
	return nil
}

// commonFlags are shared by list and detail. Values override the loaded
// config only when set on the command line.
type commonFlags struct {
	configPath   string
	endpoint     string
	timeout      time.Duration
	loadTimeout  time.Duration
	headers      headerFlag
	logLevel     string
	otelEndpoint string
	otelService  string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	c.headers = headerFlag{}
	fs.StringVar(&c.configPath, "config", "", "Config file")
	fs.StringVar(&c.endpoint, "endpoint", "", "GraphQL endpoint")
	fs.DurationVar(&c.timeout, "timeout", 0, "HTTP request timeout")
	fs.DurationVar(&c.loadTimeout, "load-timeout", 0, "Controller request timeout")
	fs.Var(c.headers, "header", "Extra request header")
	fs.StringVar(&c.logLevel, "log.level", "", "Log level")
	fs.StringVar(&c.otelEndpoint, "otel.endpoint", "", "OTLP collector endpoint")
	fs.StringVar(&c.otelService, "otel.service", "", "OpenTelemetry service name")
}

func (c *commonFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Endpoint = c.endpoint
		case "timeout":
			cfg.Request.Timeout = c.timeout
		case "load-timeout":
			cfg.Feed.LoadTimeout = c.loadTimeout
		case "header":
			if cfg.Headers == nil {
				cfg.Headers = map[string]string{}
			}
			for k, v := range c.headers {
				cfg.Headers[k] = v
			}
		case "log.level":
			cfg.Log.Level = c.logLevel
		case "otel.endpoint":
			cfg.Otel.Endpoint = c.otelEndpoint
		case "otel.service":
			cfg.Otel.Service = c.otelService
		}
	})
}

// env is what a command needs after configuration.
type env struct {
	cfg       config.Config
	log       *logrus.Logger
	transport *httptp.Transport
	close     func()
}

func setup(cfg config.Config, stderr io.Writer) (*env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, err
	}
	if cfg.Log.Output == "" || cfg.Log.Output == "stderr" {
		logger.SetOutput(stderr)
	}

	eventbus.Use(eventbus.New())
	unsubscribe := logging.Subscribe(logger)
	shutdown, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("otel setup: %w", err)
	}

	trOpts := []httptp.Option{
		httptp.WithHeaders(cfg.Headers),
		httptp.WithRequestTimeout(cfg.Request.Timeout),
		httptp.WithMaxBodyBytes(cfg.Request.MaxBodyBytes),
	}
	if cfg.Breaker.MaxFailures > 0 {
		trOpts = append(trOpts, httptp.WithCircuitBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.OpenTimeout))
	}
	tr, err := httptp.New(cfg.Endpoint, trOpts...)
	if err != nil {
		unsubscribe()
		_ = shutdown(context.Background())
		return nil, err
	}
	return &env{
		cfg:       cfg,
		log:       logger,
		transport: tr,
		close: func() {
			_ = tr.Close()
			unsubscribe()
			_ = shutdown(context.Background())
			eventbus.Use(nil)
		},
	}, nil
}

// errLoadFailed is returned when a completion delivered errors instead of
// the requested data. The errors themselves were logged by the sink.
var errLoadFailed = errors.New("load failed")

func cmdList(args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	pageSize := 0
	pages := 0
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	fs.IntVar(&pageSize, "page-size", pageSize, "Launches per page")
	fs.IntVar(&pages, "pages", pages, "Stop after N pages")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, listUsage)
		return err
	}
	if pages < 0 {
		fmt.Fprint(stderr, listUsage)
		return fmt.Errorf("-pages must not be negative")
	}

	cfg, err := config.Load(common.configPath)
	if err != nil {
		return err
	}
	common.apply(fs, &cfg)
	if pageSize > 0 {
		cfg.Feed.PageSize = pageSize
	}
	e, err := setup(cfg, stderr)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	completed := make(chan bool, 1)
	applied := false
	loader := launches.NewListLoader(e.transport, logging.Sink(e.log), cfg.Feed.PageSize,
		launches.ByID(),
		feed.WithTimeout[launches.Launch](cfg.Feed.LoadTimeout),
		feed.WithOnPage(func(added []launches.Launch, _ pagination.Page[launches.Launch]) {
			applied = true
			for _, l := range added {
				printLaunchRow(stdout, l)
			}
		}),
		feed.WithOnComplete[launches.Launch](func() {
			completed <- applied
			applied = false
		}),
	)

	for n := 0; pages == 0 || n < pages; n++ {
		if !loader.RequestNextPageIfNeeded(ctx) {
			break
		}
		select {
		case ok := <-completed:
			if !ok {
				return fmt.Errorf("page %d: %w", n+1, errLoadFailed)
			}
		case <-ctx.Done():
			loader.CancelActive()
			return ctx.Err()
		}
	}
	e.log.WithFields(logrus.Fields{
		"launches":  loader.Len(),
		"exhausted": loader.IsExhausted(),
	}).Info("done")
	return nil
}

func cmdDetail(args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	id := ""
	fs := flag.NewFlagSet("detail", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	fs.StringVar(&id, "id", id, "Launch id")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, detailUsage)
		return err
	}
	if id == "" {
		fmt.Fprint(stderr, detailUsage)
		return fmt.Errorf("-id is required")
	}

	cfg, err := config.Load(common.configPath)
	if err != nil {
		return err
	}
	common.apply(fs, &cfg)
	e, err := setup(cfg, stderr)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	completed := make(chan struct{}, 1)
	loader := launches.NewDetailLoader(e.transport, logging.Sink(e.log),
		detail.WithTimeout[string, launches.Launch](cfg.Feed.LoadTimeout),
		detail.WithOnComplete[string, launches.Launch](func() { completed <- struct{}{} }),
	)
	if loader.Select(ctx, id) {
		select {
		case <-completed:
		case <-ctx.Done():
			loader.CancelActive()
			return ctx.Err()
		}
	}
	rec, ok := loader.Current()
	if !ok {
		return fmt.Errorf("launch %s: %w", id, errLoadFailed)
	}
	printLaunch(stdout, rec.Value)
	return nil
}

func printLaunchRow(w io.Writer, l launches.Launch) {
	mission := ""
	if l.Mission != nil {
		mission = l.Mission.Name
	}
	fmt.Fprintf(w, "%s\t%s\t%s\n", l.ID, mission, l.Site)
}

func printLaunch(w io.Writer, l launches.Launch) {
	fmt.Fprintf(w, "id:       %s\n", l.ID)
	fmt.Fprintf(w, "site:     %s\n", l.Site)
	if l.Mission != nil {
		fmt.Fprintf(w, "mission:  %s\n", l.Mission.Name)
		if l.Mission.MissionPatch != "" {
			fmt.Fprintf(w, "patch:    %s\n", l.Mission.MissionPatch)
		}
	}
	if l.Rocket != nil {
		fmt.Fprintf(w, "rocket:   %s (%s)\n", l.Rocket.Name, l.Rocket.Type)
	}
	fmt.Fprintf(w, "booked:   %t\n", l.IsBooked)
}
