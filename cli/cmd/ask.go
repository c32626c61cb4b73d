package cmd

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/askstream/adapter"
	"github.com/pithecene-io/askstream/adapter/redis"
	"github.com/pithecene-io/askstream/adapter/webhook"
	"github.com/pithecene-io/askstream/cli/config"
	"github.com/pithecene-io/askstream/cli/render"
	"github.com/pithecene-io/askstream/client"
	"github.com/pithecene-io/askstream/log"
	"github.com/pithecene-io/askstream/metrics"
	"github.com/pithecene-io/askstream/resolve"
	"github.com/pithecene-io/askstream/runtime"
	"github.com/pithecene-io/askstream/store"
	"github.com/pithecene-io/askstream/transcript"
	"github.com/pithecene-io/askstream/types"
)

// exitUsage is returned for invalid flags or configuration.
const exitUsage = 2

// AskCommand returns the ask command.
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a question and stream the answer",
		ArgsUsage: "<question>",
		Flags: append(OutputFlags(),
			ConfigFlag,
			&cli.StringFlag{
				Name:  "api-base",
				Usage: "Server base URL (default: config, $ASKSTREAM_API_BASE, http://localhost:8000)",
			},
			&cli.StringFlag{
				Name:    "kb",
				Aliases: []string{"knowledge-base"},
				Usage:   "Knowledge base id to route the question to",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "Path of a document to upload with the question",
			},
			&cli.StringSliceFlag{
				Name:  "header",
				Usage: "Extra request header as 'Name: value' (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall stream deadline (0 = none)",
			},
			&cli.DurationFlag{
				Name:  "fetch-timeout",
				Usage: "Per-attachment download timeout",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Save received attachments to storage",
			},
			&cli.StringFlag{
				Name:  "storage-backend",
				Usage: "Attachment storage backend: fs, s3 or memory",
			},
			&cli.StringFlag{
				Name:  "storage-path",
				Usage: "Attachment storage path (fs: directory, s3: bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "storage-region",
				Usage: "AWS region for S3 storage (optional, uses default chain)",
			},
			&cli.StringFlag{
				Name:  "storage-endpoint",
				Usage: "Custom S3 endpoint (MinIO, R2)",
			},
			&cli.BoolFlag{
				Name:  "storage-s3-path-style",
				Usage: "Use path-style S3 addressing",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print stream counters to stderr",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress transcript output",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
		),
		Action: askAction,
	}
}

func askAction(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return cli.Exit("a question is required", exitUsage)
	}

	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	level, err := log.ParseLevel(firstNonEmpty(c.String("log-level"), cfg.LogLevel))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	logger := log.NewLoggerWithWriter(c.App.ErrWriter, level)
	defer func() { _ = logger.Sync() }()

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	kbID := firstNonEmpty(c.String("kb"), cfg.KnowledgeBase)
	if kbID != "" {
		kb, ok := cfg.FindKnowledgeBase(kbID)
		if !ok {
			return cli.Exit(fmt.Sprintf("unknown knowledge base %q (see 'askstream kb')", kbID), exitUsage)
		}
		kbID = kb.ID
	}

	headers, err := parseHeaders(c.StringSlice("header"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	apiBase := cfg.ResolveAPIBase(c.String("api-base"))
	cl, err := client.New(client.Config{APIBase: apiBase, Headers: headers})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	req := client.Request{Question: question, KnowledgeBase: kbID}
	if path := c.String("file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open upload: %v", err), exitUsage)
		}
		defer func() { _ = f.Close() }()
		req.File = &client.Upload{
			Name:    filepath.Base(path),
			MIME:    mime.TypeByExtension(filepath.Ext(path)),
			Content: f,
		}
	}

	var saver *store.Saver
	collector := metrics.NewCollector()
	refs := resolve.NewRefs()
	if c.Bool("save") {
		factory, err := store.NewFactory(c.Context, storageConfig(c, cfg.Storage))
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid storage config: %v", err), exitUsage)
		}
		saver = store.NewSaver(factory, refs, logger, collector)
	}

	pub, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), exitUsage)
	}
	if pub != nil {
		defer func() { _ = pub.Close() }()
	}

	tr := transcript.New(refs, logger)
	engine := runtime.NewEngine(runtime.Config{
		Transcript: tr,
		Resolver: resolve.New(resolve.Config{
			APIBase: apiBase,
			Timeout: durationOr(c, "fetch-timeout", cfg.FetchTimeout.Duration),
		}, refs),
		Logger:    logger,
		Collector: collector,
		Adapter:   pub,
	})

	tr.Append(types.NewUserText(question))
	session := engine.NewSession(runtime.SessionOptions{KnowledgeBase: kbID})

	ctx := c.Context
	if timeout := durationOr(c, "timeout", cfg.Timeout.Duration); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// First SIGINT/SIGTERM aborts the stream; the partial transcript is still printed
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		if _, ok := <-sigCh; ok {
			session.Abort()
		}
	}()

	outcome, err := session.Start(ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return cl.Ask(ctx, req)
	})
	if outcome == nil {
		return fmt.Errorf("ask: %w", err)
	}

	view := render.TranscriptView{Messages: tr.Messages(), Outcome: outcome}
	if saver != nil {
		saved, err := saver.SaveAll(context.WithoutCancel(ctx), session.ID, view.Messages)
		for _, s := range saved {
			view.Saved = append(view.Saved, s.Path)
		}
		if err != nil {
			logger.Warn("some attachments were not saved", map[string]any{"error": err.Error()})
		}
	}

	if !c.Bool("quiet") {
		if err := r.Transcript(view); err != nil {
			return fmt.Errorf("render transcript: %w", err)
		}
	}
	if c.Bool("stats") {
		stats := render.NewRendererWithWriter(statsFormat(r), c.Bool("no-color"), c.App.ErrWriter)
		if err := stats.Render(collector.Snapshot()); err != nil {
			return fmt.Errorf("render stats: %w", err)
		}
	}

	tr.Clear()
	return cli.Exit("", outcome.ExitCode())
}

// DefaultSaveDir is the fs storage root used when --save is given
// without any storage settings.
const DefaultSaveDir = "askstream-files"

// storageConfig layers storage flags over config file values.
func storageConfig(c *cli.Context, fromFile config.StorageConfig) store.BackendConfig {
	bc := fromFile.BackendConfig()
	if v := c.String("storage-backend"); v != "" {
		bc.Backend = v
	}
	if v := c.String("storage-path"); v != "" {
		bc.Path = v
	}
	if v := c.String("storage-region"); v != "" {
		bc.Region = v
	}
	if v := c.String("storage-endpoint"); v != "" {
		bc.Endpoint = v
	}
	if c.IsSet("storage-s3-path-style") {
		bc.UsePathStyle = c.Bool("storage-s3-path-style")
	}
	if bc.Backend == "" && bc.Path == "" {
		bc.Path = DefaultSaveDir
	}
	return bc
}

// buildAdapter creates the configured notification adapter, or nil when
// none is configured.
func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	switch ac.Type {
	case "":
		return nil, nil
	case config.AdapterWebhook:
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		return webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	case config.AdapterRedis:
		retries := redis.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		codec, err := redis.ParseCodec(ac.Codec)
		if err != nil {
			return nil, err
		}
		return redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Codec:   codec,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --header %q (want 'Name: value')", v)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// statsFormat keeps structured output structured; text becomes a table.
func statsFormat(r *render.Renderer) render.Format {
	if r.Structured() {
		return r.Format()
	}
	return render.FormatTable
}

func durationOr(c *cli.Context, flag string, fallback time.Duration) time.Duration {
	if c.IsSet(flag) {
		return c.Duration(flag)
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
