package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/ridge/must/v2"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"google.golang.org/api/option"

	"github.com/ironsheep/form-annotator-mcp/internal/config"
	"github.com/ironsheep/form-annotator-mcp/internal/detection"
	"github.com/ironsheep/form-annotator-mcp/internal/labeling"
	"github.com/ironsheep/form-annotator-mcp/internal/layout"
	"github.com/ironsheep/form-annotator-mcp/internal/ocr"
	"github.com/ironsheep/form-annotator-mcp/internal/orientation"
	"github.com/ironsheep/form-annotator-mcp/internal/pipeline"
	"github.com/ironsheep/form-annotator-mcp/internal/render"
	"github.com/ironsheep/form-annotator-mcp/internal/server"
	"github.com/ironsheep/form-annotator-mcp/internal/session"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const sweepInterval = time.Minute

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("form-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		printUsage()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "form-mcp: %v\n", err)
		os.Exit(2)
	}

	// stdout carries the MCP protocol; logs go to stderr.
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(cfg.LogrusLevel())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
	}).Debug("starting form MCP server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	labeler, closeLabeler := newLabeler(ctx, cfg, log)
	defer closeLabeler()

	engine := ocr.NewEngine(cfg.OCRLanguages, log)
	selector := newSelector(cfg, engine, log)

	srv := server.New(server.Deps{
		Analyzer: newAnalyzer(cfg, engine, selector, labeler, log),
		Selector: selector,
		Sessions: session.NewStore(cfg.SessionTTL),
	}, server.Options{
		Version:       Version,
		IoUThreshold:  cfg.IoUThreshold,
		LineTolerance: cfg.LineTolerance,
		SweepInterval: sweepInterval,
	}, log)

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("server error")
	}
}

func newSelector(cfg *config.Config, engine *ocr.Engine, log logrus.FieldLogger) *orientation.Selector {
	return orientation.NewSelector(engine, orientation.Options{
		FlipMargin:   cfg.FlipMargin,
		MaxDimension: cfg.MaxDimension,
		Parallel:     cfg.ParallelOrientation,
	}, log)
}

func newAnalyzer(cfg *config.Config, engine *ocr.Engine, selector *orientation.Selector, labeler labeling.Labeler, log logrus.FieldLogger) *pipeline.Analyzer {
	ropts := render.DefaultOptions()
	ropts.FontPaths = append(append([]string{}, cfg.FontPaths...), render.DefaultFontPaths...)
	ropts.MinFontSize = cfg.MinFontSize
	ropts.Padding = cfg.Padding
	ropts.InkColor = cfg.InkColor

	// Validated by config.Load.
	dir, _ := layout.ParseDirection(cfg.DefaultDirection)

	return pipeline.NewAnalyzer(pipeline.Deps{
		Selector:   selector,
		Filter:     &detection.FillFilter{Reader: engine, MinConfidence: cfg.FillConfidence, Log: log},
		Detector:   detection.NewHeuristicDetector(),
		Directions: engine,
		Labeler:    labeler,
		Renderer:   render.New(ropts, log),
	}, pipeline.Options{
		IoUThreshold:     cfg.IoUThreshold,
		LineTolerance:    cfg.LineTolerance,
		DefaultDirection: dir,
		LabelTimeout:     cfg.LabelTimeout,
	}, log)
}

// newLabeler builds the configured labeling backend and a func releasing
// it. The labeler is nil when none is configured.
func newLabeler(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (labeling.Labeler, func()) {
	opts := labeling.Options{
		Retries: uint64(cfg.LabelRetries),
		Backoff: cfg.LabelBackoff,
	}

	switch cfg.ResolvedLabeler() {
	case config.LabelerGemini:
		opts.Model = cfg.GeminiModel
		client := must.OK1(genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey)))
		log.WithField("model", opts.Model).Info("labeling with Gemini")
		return labeling.NewGemini(client, opts, log), func() { _ = client.Close() }
	case config.LabelerOpenAI:
		opts.Model = cfg.OpenAIModel
		log.WithField("model", opts.Model).Info("labeling with OpenAI")
		return labeling.NewOpenAI(openai.NewClient(cfg.OpenAIAPIKey), opts, log), func() {}
	default:
		log.Info("no labeling service configured; label fields with form_label")
		return nil, func() {}
	}
}

func printUsage() {
	fmt.Println("form-mcp - MCP server that detects, labels and fills form fields")
	fmt.Println()
	fmt.Println("Usage: form-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v                Print version information")
	fmt.Println("  --help, -h                   Print this help message")
	fmt.Println("  --log-level LEVEL            debug, info, warn or error (default info)")
	fmt.Println("  --labeler NAME               auto, gemini, openai or none (default auto)")
	fmt.Println("  --default-direction DIR      rtl or ltr when the page gives no hint (default rtl)")
	fmt.Println("  --ocr-languages LANGS        Tesseract languages (default ara+eng)")
	fmt.Println("  --font-paths LIST            Extra TTF fonts, comma separated")
	fmt.Println("                               Arabic needs a font such as Amiri or Noto Naskh")
	fmt.Println("                               Arabic; the built-in font has Latin glyphs only")
	fmt.Println("  --session-ttl DURATION       Idle time before a session expires (default 1h)")
	fmt.Println()
	fmt.Println("Every option can also be set as a FORM_MCP_* environment variable,")
	fmt.Println("e.g. FORM_MCP_LOG_LEVEL=debug, or in a .env file. API keys are read from")
	fmt.Println("GEMINI_API_KEY and OPENAI_API_KEY.")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client.")
}
