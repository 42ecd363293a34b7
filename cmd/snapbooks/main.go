package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/sync/errgroup"

	"github.com/IamSmokeY/SnapBooks/internal/api"
	"github.com/IamSmokeY/SnapBooks/internal/channel/telegram"
	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/gst"
	"github.com/IamSmokeY/SnapBooks/internal/invoice"
	"github.com/IamSmokeY/SnapBooks/internal/ledger"
	"github.com/IamSmokeY/SnapBooks/internal/metrics"
	"github.com/IamSmokeY/SnapBooks/internal/pipeline"
	"github.com/IamSmokeY/SnapBooks/internal/render"
	"github.com/IamSmokeY/SnapBooks/internal/scanning"
	"github.com/IamSmokeY/SnapBooks/internal/session"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("SnapBooks stopped", "error", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until the server or bot stops. Returning
// instead of exiting lets the deferred Close calls run on every error path.
func run(args []string) error {
	fs := ff.NewFlagSet("snapbooks")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "snapbooks.db", "Database file path")
		storagePath = fs.StringLong("storage", "./invoices", "Directory for generated PDF and XML files")
		publicURL   = fs.StringLong("public-url", "http://localhost:8080/files", "Base URL the stored files are served under")

		businessName    = fs.StringLong("business-name", "SnapBooks Demo Traders", "Business name printed on documents and used as the Tally company")
		businessAddress = fs.StringLong("business-address", "", "Business address printed on documents")
		businessGSTIN   = fs.StringLong("business-gstin", "", "Business GSTIN")
		businessState   = fs.StringLong("business-state", "Maharashtra", "Home state deciding intrastate vs interstate tax")

		scannerType  = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		geminiRPM    = fs.IntLong("gemini-rpm", 15, "Client side Gemini request limit per minute (0 disables)")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		breakerTrips = fs.IntLong("breaker-failures", 5, "Consecutive service failures before the extraction breaker opens")

		timeout           = fs.DurationLong("timeout", pipeline.DefaultTimeout, "Deadline for a whole conversion run")
		extractionTimeout = fs.DurationLong("extraction-timeout", pipeline.DefaultExtractionTimeout, "Deadline for one extraction attempt")
		maxAttempts       = fs.IntLong("max-attempts", 2, "Extraction attempts for transient service errors")
		minConfidence     = fs.Float64Long("min-confidence", pipeline.DefaultMinConfidence, "Reject extractions below this confidence")
		chromePath        = fs.StringLong("chrome-path", "", "Chrome/Chromium executable (empty searches PATH)")

		telegramToken = fs.StringLong("telegram-token", "", "Telegram bot token (empty disables the bot)")
		telegramUsers = fs.StringLong("telegram-allow", "", "Comma separated Telegram user IDs allowed to use the bot (empty allows all)")

		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat   = fs.StringLong("log-format", "json", "Log format: json or text")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("SNAPBOOKS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		if errors.Is(err, ff.ErrHelp) {
			return err
		}
		return fmt.Errorf("parsing flags: %w", err)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		return nil
	}

	slog.SetDefault(newLogger(os.Stdout, *logLevel, *logFormat))
	slog.Info("Starting SnapBooks", "version", version)

	allowList, err := parseUserIDs(*telegramUsers)
	if err != nil {
		return fmt.Errorf("invalid Telegram allow list: %w", err)
	}
	threshold, err := breakerThreshold(*breakerTrips)
	if err != nil {
		return err
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := invoice.NewBoltDB(*dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	// Initialize extractor based on type
	var extractor scanning.Extractor
	switch *scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		extractor, err = scanning.NewGemini(apiKey, *geminiModel, *geminiRPM)
		if err != nil {
			return fmt.Errorf("initializing Gemini: %w", err)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			return fmt.Errorf("initializing Ollama: %w", err)
		}
	default:
		return fmt.Errorf("invalid scanner type %q: valid types are gemini and ollama", *scannerType)
	}
	extractor = scanning.NewBreaker(extractor, scanning.BreakerSettings{
		Name:             *scannerType,
		FailureThreshold: threshold,
	})
	defer extractor.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := invoice.NewLocalStorage(*storagePath, *publicURL)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	repo := invoice.NewRepository(db, store)

	business := document.Business{
		Name:    *businessName,
		Address: *businessAddress,
		GSTIN:   *businessGSTIN,
		State:   *businessState,
	}
	pdf, err := render.NewGenerator(business, render.NewChromeRenderer(*chromePath, 0))
	if err != nil {
		return fmt.Errorf("initializing PDF generator: %w", err)
	}

	m := metrics.New()

	cfg := pipeline.DefaultConfig()
	cfg.Timeout = *timeout
	cfg.ExtractionTimeout = *extractionTimeout
	cfg.Retry.MaxAttempts = *maxAttempts
	cfg.MinConfidence = *minConfidence

	p := pipeline.New(extractor, gst.NewEngine(*businessState), pdf, ledger.NewGenerator(*businessName), cfg,
		pipeline.WithPersister(repo),
		pipeline.WithRecorder(m),
	)

	// Initialize server
	basicAuth := api.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := api.NewServer(p, repo, basicAuth,
		api.WithPreviewer(pdf),
		api.WithMetrics(m.Handler(), m),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf(":%d", *port)
	g.Go(func() error {
		return server.Start(ctx, addr)
	})
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if *telegramToken != "" {
		botAPI, err := telegram.Connect(*telegramToken)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("initializing Telegram bot: %w", err)
		}
		bot := telegram.NewBot(telegram.Config{Token: *telegramToken, AllowList: allowList},
			botAPI, p, session.NewStore(session.DefaultTTL), telegram.WithObserver(m))
		g.Go(func() error {
			return telegram.Poll(ctx, botAPI, bot)
		})
	} else {
		slog.Info("Telegram bot disabled (no token)")
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("Shut down")
	return nil
}

// breakerThreshold converts the --breaker-failures flag. A breaker needs at
// least one failure to trip, and negative values must not wrap around.
func breakerThreshold(n int) (uint32, error) {
	if n < 1 || int64(n) > math.MaxUint32 {
		return 0, fmt.Errorf("--breaker-failures must be between 1 and %d, got %d", uint32(math.MaxUint32), n)
	}
	return uint32(n), nil
}

func parseUserIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("user ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
