// Package config loads server settings from flags, FORM_MCP_* environment
// variables and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "FORM_MCP"

// Labeler backends.
const (
	LabelerAuto   = "auto"
	LabelerGemini = "gemini"
	LabelerOpenAI = "openai"
	LabelerNone   = "none"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all server settings.
type Config struct {
	LogLevel string

	// Detection and layout
	IoUThreshold     float64
	FillConfidence   float64
	LineTolerance    float64
	DefaultDirection string

	// Orientation
	FlipMargin          float64
	MaxDimension        int
	ParallelOrientation bool

	// OCR
	OCRLanguages string

	// Rendering
	FontPaths   []string
	MinFontSize float64
	Padding     float64
	InkColor    string

	// Sessions
	SessionTTL time.Duration

	// Labeling
	Labeler      string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	LabelRetries int
	LabelBackoff time.Duration
	LabelTimeout time.Duration
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:            "info",
		IoUThreshold:        0.4,
		FillConfidence:      0.6,
		LineTolerance:       0.25,
		DefaultDirection:    "rtl",
		FlipMargin:          2.0,
		MaxDimension:        2000,
		ParallelOrientation: false,
		OCRLanguages:        "ara+eng",
		MinFontSize:         8,
		Padding:             4,
		InkColor:            "#000000",
		SessionTTL:          time.Hour,
		Labeler:             LabelerAuto,
		GeminiModel:         "gemini-1.5-flash",
		OpenAIModel:         "gpt-4o",
		LabelRetries:        3,
		LabelBackoff:        2 * time.Second,
		LabelTimeout:        2 * time.Minute,
	}
}

// Load reads settings from args (without the program name), the
// environment and ./.env.
func Load(args []string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	v := viper.New()
	flags := pflag.NewFlagSet("form-mcp", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)

	setupViperEnvironment(v, cfg)
	defineFlags(flags, cfg)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	populateFromViper(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads ./.env when present. A missing file is not an error.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to read .env: %w", err)
}

func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", cfg.LogLevel)
	v.SetDefault("iou-threshold", cfg.IoUThreshold)
	v.SetDefault("fill-confidence", cfg.FillConfidence)
	v.SetDefault("line-tolerance", cfg.LineTolerance)
	v.SetDefault("default-direction", cfg.DefaultDirection)
	v.SetDefault("flip-margin", cfg.FlipMargin)
	v.SetDefault("max-dimension", cfg.MaxDimension)
	v.SetDefault("parallel-orientation", cfg.ParallelOrientation)
	v.SetDefault("ocr-languages", cfg.OCRLanguages)
	v.SetDefault("font-paths", "")
	v.SetDefault("min-font-size", cfg.MinFontSize)
	v.SetDefault("padding", cfg.Padding)
	v.SetDefault("ink-color", cfg.InkColor)
	v.SetDefault("session-ttl", cfg.SessionTTL)
	v.SetDefault("labeler", cfg.Labeler)
	v.SetDefault("gemini-model", cfg.GeminiModel)
	v.SetDefault("openai-model", cfg.OpenAIModel)
	v.SetDefault("label-retries", cfg.LabelRetries)
	v.SetDefault("label-backoff", cfg.LabelBackoff)
	v.SetDefault("label-timeout", cfg.LabelTimeout)

	// API keys are also read under their customary unprefixed names.
	_ = v.BindEnv("gemini-api-key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("openai-api-key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
}

func defineFlags(flags *pflag.FlagSet, cfg *Config) {
	flags.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.Float64("iou-threshold", cfg.IoUThreshold, "IoU above which overlapping detections are merged")
	flags.Float64("fill-confidence", cfg.FillConfidence, "OCR confidence (0-1) at which a region counts as already filled")
	flags.Float64("line-tolerance", cfg.LineTolerance, "Same-line tolerance as a fraction of summed field heights")
	flags.String("default-direction", cfg.DefaultDirection, "Reading direction when none is given or detected (rtl, ltr)")
	flags.Float64("flip-margin", cfg.FlipMargin, "Score margin 180° must win by over 0°")
	flags.Int("max-dimension", cfg.MaxDimension, "Longest side of the corrected page in pixels")
	flags.Bool("parallel-orientation", cfg.ParallelOrientation, "Score orientation candidates concurrently")
	flags.String("ocr-languages", cfg.OCRLanguages, "Tesseract languages, '+' separated")
	flags.String("font-paths", "", "Comma-separated TTF fonts to try before the built-in list")
	flags.Float64("min-font-size", cfg.MinFontSize, "Smallest font size used when fitting text")
	flags.Float64("padding", cfg.Padding, "Inset in pixels between a field border and its content")
	flags.String("ink-color", cfg.InkColor, "Hex colour for rendered text and ticks")
	flags.Duration("session-ttl", cfg.SessionTTL, "Idle time after which a session expires")
	flags.String("labeler", cfg.Labeler, "Labeling backend (auto, gemini, openai, none)")
	flags.String("gemini-api-key", "", "Gemini API key")
	flags.String("gemini-model", cfg.GeminiModel, "Gemini model")
	flags.String("openai-api-key", "", "OpenAI API key")
	flags.String("openai-model", cfg.OpenAIModel, "OpenAI model")
	flags.Int("label-retries", cfg.LabelRetries, "Retries for failed labeling requests")
	flags.Duration("label-backoff", cfg.LabelBackoff, "Wait between labeling retries")
	flags.Duration("label-timeout", cfg.LabelTimeout, "Deadline for one labeling call, retries included")
}

func populateFromViper(v *viper.Viper, cfg *Config) {
	cfg.LogLevel = v.GetString("log-level")
	cfg.IoUThreshold = v.GetFloat64("iou-threshold")
	cfg.FillConfidence = v.GetFloat64("fill-confidence")
	cfg.LineTolerance = v.GetFloat64("line-tolerance")
	cfg.DefaultDirection = strings.ToLower(v.GetString("default-direction"))
	cfg.FlipMargin = v.GetFloat64("flip-margin")
	cfg.MaxDimension = v.GetInt("max-dimension")
	cfg.ParallelOrientation = v.GetBool("parallel-orientation")
	cfg.OCRLanguages = v.GetString("ocr-languages")
	cfg.FontPaths = splitList(v.GetString("font-paths"))
	cfg.MinFontSize = v.GetFloat64("min-font-size")
	cfg.Padding = v.GetFloat64("padding")
	cfg.InkColor = v.GetString("ink-color")
	cfg.SessionTTL = v.GetDuration("session-ttl")
	cfg.Labeler = strings.ToLower(v.GetString("labeler"))
	cfg.GeminiAPIKey = v.GetString("gemini-api-key")
	cfg.GeminiModel = v.GetString("gemini-model")
	cfg.OpenAIAPIKey = v.GetString("openai-api-key")
	cfg.OpenAIModel = v.GetString("openai-model")
	cfg.LabelRetries = v.GetInt("label-retries")
	cfg.LabelBackoff = v.GetDuration("label-backoff")
	cfg.LabelTimeout = v.GetDuration("label-timeout")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold >= 1 {
		return fmt.Errorf("%w: iou-threshold must be in (0, 1)", ErrInvalid)
	}
	if c.FillConfidence < 0 || c.FillConfidence > 1 {
		return fmt.Errorf("%w: fill-confidence must be in [0, 1]", ErrInvalid)
	}
	if c.LineTolerance <= 0 {
		return fmt.Errorf("%w: line-tolerance must be positive", ErrInvalid)
	}
	if c.DefaultDirection != "rtl" && c.DefaultDirection != "ltr" {
		return fmt.Errorf("%w: default-direction must be rtl or ltr", ErrInvalid)
	}
	if c.FlipMargin < 0 {
		return fmt.Errorf("%w: flip-margin cannot be negative", ErrInvalid)
	}
	if c.MaxDimension < 100 {
		return fmt.Errorf("%w: max-dimension must be at least 100", ErrInvalid)
	}
	if c.MinFontSize <= 0 {
		return fmt.Errorf("%w: min-font-size must be positive", ErrInvalid)
	}
	if c.Padding < 0 {
		return fmt.Errorf("%w: padding cannot be negative", ErrInvalid)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%w: session-ttl must be positive", ErrInvalid)
	}
	if c.LabelRetries < 0 {
		return fmt.Errorf("%w: label-retries cannot be negative", ErrInvalid)
	}
	if c.LabelTimeout <= 0 {
		return fmt.Errorf("%w: label-timeout must be positive", ErrInvalid)
	}

	switch c.Labeler {
	case LabelerAuto, LabelerNone:
	case LabelerGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: labeler gemini needs a Gemini API key", ErrInvalid)
		}
	case LabelerOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: labeler openai needs an OpenAI API key", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown labeler %q", ErrInvalid, c.Labeler)
	}
	return nil
}

// LogrusLevel returns the parsed log level, falling back to info.
func (c *Config) LogrusLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// ResolvedLabeler turns "auto" into a concrete backend: Gemini when its key
// is set, then OpenAI, otherwise none.
func (c *Config) ResolvedLabeler() string {
	if c.Labeler != LabelerAuto {
		return c.Labeler
	}
	switch {
	case c.GeminiAPIKey != "":
		return LabelerGemini
	case c.OpenAIAPIKey != "":
		return LabelerOpenAI
	default:
		return LabelerNone
	}
}
