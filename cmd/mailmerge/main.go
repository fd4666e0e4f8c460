// Command mailmerge sends one templated message per CSV row through an SMTP relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/config"
	"github.com/pure-golang/mailmerge/dispatch"
	"github.com/pure-golang/mailmerge/logger"
	"github.com/pure-golang/mailmerge/mail"
	"github.com/pure-golang/mailmerge/mail/noop"
	"github.com/pure-golang/mailmerge/mail/smtp"
	"github.com/pure-golang/mailmerge/metrics"
	"github.com/pure-golang/mailmerge/rows"
	"github.com/pure-golang/mailmerge/template"
	"github.com/pure-golang/mailmerge/tracing"
	"github.com/pure-golang/mailmerge/tracing/otlp"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2

	pushTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	dryRun     bool
	skip       int
	limit      int
	csvPath    string
	tplPath    string
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("mailmerge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: mailmerge [flags] <csv_filename> <email_template_filename>")
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.configPath, "config", "", "path to YAML configuration file (optional)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "render and log messages without connecting to the relay")
	fs.IntVar(&opts.skip, "skip", 0, "skip the first N data rows")
	fs.IntVar(&opts.limit, "limit", 0, "send at most N messages, 0 for all")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return opts, errors.Errorf("expected 2 arguments, got %d", fs.NArg())
	}
	if opts.skip < 0 || opts.limit < 0 {
		return opts, errors.New("-skip and -limit must not be negative")
	}

	opts.csvPath, opts.tplPath = fs.Arg(0), fs.Arg(1)
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "mailmerge: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "mailmerge: %v\n", err)
		return exitUsage
	}

	log := logger.New(cfg.Log, stderr).With(slog.String("run_id", uuid.NewString()))
	ctx = logger.NewContext(ctx, log)

	if cfg.Tracing.Enabled() {
		provider, err := tracing.Init(otlp.NewProviderBuilder(cfg.Tracing))
		if err != nil {
			logger.FromContextWithErr(ctx, err).Warn("tracing disabled")
		}
		defer func() {
			if err := provider.Close(); err != nil {
				logger.FromContextWithErr(ctx, err).Warn("failed to close tracing provider")
			}
		}()
	}

	recorder := metrics.New(cfg.Metrics)
	defer func() {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if err := recorder.Push(pushCtx); err != nil {
			logger.FromContextWithErr(ctx, err).Warn("failed to push metrics")
		}
	}()

	sent, err := merge(ctx, cfg, opts, recorder, stdout)
	if err != nil {
		logger.FromContextWithErr(ctx, err).Error("mail merge failed", slog.Int("sent", sent))
		fmt.Fprintf(stderr, "mailmerge: %v\n", err)
		return exitFatal
	}

	return exitOK
}

// merge prints the sent count once the run has started, also when it fails.
func merge(ctx context.Context, cfg config.Config, opts options, recorder *metrics.Recorder, stdout io.Writer) (int, error) {
	log := logger.FromContext(ctx)

	in := &inputs{cfg: cfg.Storage, logger: log}
	defer in.Close()

	tplFile, err := in.open(ctx, opts.tplPath)
	if err != nil {
		return 0, err
	}
	tpl, err := template.Load(tplFile)
	tplFile.Close()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to load %s", opts.tplPath)
	}

	csvFile, err := in.open(ctx, opts.csvPath)
	if err != nil {
		return 0, err
	}
	defer csvFile.Close()

	reader, err := rows.NewReader(csvFile)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", opts.csvPath)
	}

	if missing := tpl.Unmatched(reader.Header()); len(missing) > 0 {
		log.Warn("template placeholders without a csv column are sent verbatim", slog.Any("placeholders", missing))
	}

	var dialer mail.Dialer = smtp.NewDialer(cfg.SMTP)
	if opts.dryRun {
		dialer = noop.NewDialer(log)
	}

	log.Info("starting mail merge",
		slog.String("csv", opts.csvPath),
		slog.String("template", opts.tplPath),
		slog.Bool("dry_run", opts.dryRun),
		slog.String("delimiter", string(reader.Dialect().Delimiter)),
	)

	loop := dispatch.New(dialer, cfg.Dispatch(opts.skip, opts.limit),
		dispatch.WithOutput(stdout),
		dispatch.WithLogger(log),
		dispatch.WithMetrics(recorder),
	)

	sent, err := loop.Run(ctx, tpl, reader)
	fmt.Fprintf(stdout, "Emails sent: %d\n", sent)

	return sent, err
}
