package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ingenia-edu/ingeniabot/internal/api"
	"github.com/ingenia-edu/ingeniabot/internal/app"
	"github.com/ingenia-edu/ingeniabot/internal/flow"
	"github.com/ingenia-edu/ingeniabot/internal/genai"
	"github.com/ingenia-edu/ingeniabot/internal/lockfile"
	"github.com/ingenia-edu/ingeniabot/internal/messaging"
	"github.com/ingenia-edu/ingeniabot/internal/reminder"
	"github.com/ingenia-edu/ingeniabot/internal/scheduler"
	"github.com/ingenia-edu/ingeniabot/internal/store"
	"github.com/ingenia-edu/ingeniabot/internal/timeout"
	"github.com/ingenia-edu/ingeniabot/internal/twiliowhatsapp"
	"github.com/ingenia-edu/ingeniabot/internal/util"
	"github.com/ingenia-edu/ingeniabot/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for IngeniaBot state data
	DefaultStateDir = "/var/lib/ingeniabot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "ingeniabot.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Only one instance may run against the same state directory.
	lock := lockfile.New(*flags.stateDir)
	if !lock.Acquire() {
		slog.Error("Another IngeniaBot instance appears to be running", "state_dir", *flags.stateDir)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(flags); err != nil {
		slog.Error("IngeniaBot failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("IngeniaBot exited successfully")
}

// run bootstraps every module and blocks until shutdown.
func run(flags Flags) error {
	st, err := store.NewStore(buildStoreOptions(flags)...)
	if err != nil {
		return err
	}
	defer st.Close()

	var ai genai.Completer
	if *flags.openaiKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		verifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if verr := client.Verify(verifyCtx); verr != nil {
			slog.Warn("OpenAI credential check failed; free-text answers may degrade", "error", verr)
		}
		cancel()
		ai = client
	} else {
		slog.Warn("No OpenAI API key configured; free-text questions will be apologized away")
	}

	transport, err := buildTransport(flags)
	if err != nil {
		return err
	}

	timeouts := timeout.NewManager(st, transport, timeout.WithDelay(flags.timeoutDelay))

	dispatcherOpts := []flow.Option{flow.WithTimerCount(timeouts.ActiveCount)}
	if ai != nil {
		dispatcherOpts = append(dispatcherOpts, flow.WithCompleter(ai))
	}
	if *flags.adminPhone != "" {
		dispatcherOpts = append(dispatcherOpts, flow.WithAdminPhone(*flags.adminPhone))
	}
	dispatcher := flow.NewDispatcher(st, dispatcherOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := transport.Start(ctx); err != nil {
		return err
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	poller := reminder.NewPoller(st, transport)
	if err := poller.Start(sched); err != nil {
		return err
	}

	apiOpts := []api.Option{}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if twilioSvc, ok := transport.(*messaging.TwilioService); ok {
		apiOpts = append(apiOpts, api.WithTwilioWebhook(twilioSvc.WebhookHandler))
	}
	server := api.NewServer(transport, apiOpts...)
	server.Start()

	application := app.New(transport, st, dispatcher, timeouts)

	slog.Info("IngeniaBot running", "transport", *flags.transport, "admin_set", *flags.adminPhone != "")
	err = application.Run(ctx)
	if err == context.Canceled {
		err = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		slog.Error("HTTP server shutdown failed", "error", serr)
	}
	application.Shutdown()
	return err
}

// buildTransport selects the WhatsApp transport implementation.
func buildTransport(flags Flags) (messaging.Service, error) {
	switch *flags.transport {
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	default:
		client, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	}
}

// Config holds environment configuration
type Config struct {
	WhatsAppDSN string
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	AdminPhone  string
	Transport   string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput     *string
	numeric      *bool
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	apiAddr      *string
	adminPhone   *string
	transport    *string
	timeoutDelay time.Duration
}

// initializeLogger sets up structured logging with the level taken from
// $LOG_LEVEL (debug when unset).
func initializeLogger() {
	level := slog.LevelDebug
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("INGENIABOT_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		AdminPhone:  os.Getenv("ADMIN_PHONE"),
		Transport:   os.Getenv("MESSAGING_BACKEND"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No INGENIABOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Transport == "" {
		config.Transport = "whatsapp"
	}

	// The whatsmeow session shares the main database unless overridden.
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, "whatsmeow.db")
	}

	slog.Debug("environment variables loaded",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"INGENIABOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"ADMIN_PHONE_SET", config.AdminPhone != "",
		"MESSAGING_BACKEND", config.Transport)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:   flag.String("qr-output", "", "path to write login QR code"),
		numeric:    flag.Bool("numeric-code", util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false), "use numeric login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for IngeniaBot data (overrides $INGENIABOT_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "database DSN for the record store (overrides $DATABASE_URL)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "HTTP server address (overrides $API_ADDR)"),
		adminPhone: flag.String("admin-phone", config.AdminPhone, "phone allowed to run admin diagnostics (overrides $ADMIN_PHONE)"),
		transport:  flag.String("transport", config.Transport, "message transport: whatsapp or twilio (overrides $MESSAGING_BACKEND)"),
	}

	flag.Parse()

	flags.timeoutDelay = time.Duration(util.ParseIntEnv("INACTIVITY_MINUTES", int(timeout.DefaultDelay/time.Minute))) * time.Minute

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"adminPhone_set", *flags.adminPhone != "",
		"transport", *flags.transport,
		"timeoutDelay", flags.timeoutDelay)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", *flags.stateDir)
		return err
	}
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		dbDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			slog.Error("Failed to create database directory", "error", err, "db_dir", dbDir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp client configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if dsn := os.Getenv("WHATSAPP_DB_DSN"); dsn != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(dsn))
	} else {
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
	}
	return waOpts
}

// buildStoreOptions constructs record store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}
