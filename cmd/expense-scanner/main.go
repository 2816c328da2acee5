package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/wenqian/expense-scanner/internal/expense"
	"github.com/wenqian/expense-scanner/internal/pipeline"
	"github.com/wenqian/expense-scanner/internal/recognize"
	"github.com/wenqian/expense-scanner/internal/segment"
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

	fs := ff.NewFlagSet("expense-scanner")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "expense-scanner.db", "Database file path")
		recognizerType = fs.StringLong("recognizer", "tesseract", "Recognizer type: 'tesseract', 'gemini' or 'ollama'")
		languages      = fs.StringLong("languages", "chi_sim+eng", "Tesseract language data, joined with '+'")
		workers        = fs.IntLong("workers", pipeline.DefaultMaxWorkers, "Maximum concurrent recognition workers")
		targetHeight   = fs.IntLong("target-height", 4000, "Nominal chunk height in pixels for image segmentation")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl)")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize store
	slog.Info("Initializing record store...")
	store, err := expense.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize record store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Pick the recognizer backend; the pool creates one recognizer per worker
	var factory recognize.Factory
	switch *recognizerType {
	case "tesseract":
		langs := strings.Split(*languages, "+")
		slog.Info("Using Tesseract recognizer", "languages", langs)
		factory = recognize.TesseractFactory(langs...)
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Using Gemini recognizer", "model", *geminiModel)
		factory = recognize.GeminiFactory(apiKey, *geminiModel)
	case "ollama":
		slog.Info("Using Ollama recognizer", "url", *ollamaURL, "model", *ollamaModel)
		factory = recognize.OllamaFactory(*ollamaURL, *ollamaModel)
	default:
		slog.Error("Invalid recognizer type", "type", *recognizerType, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}

	splitter := segment.DefaultSplitter()
	splitter.TargetHeight = *targetHeight

	service := expense.NewService(store, splitter, pipeline.NewPool(*workers), factory)

	basicAuth := expense.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := expense.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
