package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	strategycache "github.com/strategy-cache/strategy-cache"
	"github.com/strategy-cache/strategy-cache/store"
)

var (
	// CLI flags
	portFlag           int
	configFilenameFlag string
	generationFlag     string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&generationFlag, "generation", "", "Store generation tag (overrides config)")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "strategy-cache.db", "Store DB file name (use 'memory' for in-memory db)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	engineConfig := strategycache.Config{
		Logger: &log.Logger,
	}

	if configFilenameFlag != "" {
		config, err := getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
		engineConfig.Generation = config.Generation
		engineConfig.BypassHosts = config.BypassHosts
		engineConfig.FontHosts = config.FontHosts
		engineConfig.Manifest = config.Precache
	}
	if generationFlag != "" {
		engineConfig.Generation = generationFlag
	}

	// set up sqlite store
	dbFilename := dbFilenameFlag
	if dbFilename == "memory" {
		dbFilename = "file::memory:?cache=shared"
	}
	engineConfig.Store = store.NewSQLiteStore(dbFilename)

	engine := strategycache.CreateEngine(engineConfig)

	// install and activate before serving traffic
	ctx := context.Background()
	if _, err := engine.Handle(ctx, strategycache.Event{Kind: strategycache.EventInstall}); err != nil {
		log.Fatal().Err(err).Msg("Install failed")
	}
	if _, err := engine.Handle(ctx, strategycache.Event{Kind: strategycache.EventActivate}); err != nil {
		log.Fatal().Err(err).Msg("Activate failed")
	}

	router := chi.NewRouter()
	router.Post("/_strategy-cache/control", controlHandler(engine))
	router.Get("/_strategy-cache/events", eventsHandler(engine))
	router.Handle("/*", engine)

	log.Info().Msgf("Serving on port %v with generation '%s'", portFlag, engine.Lifecycle().Generation())
	err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), router)

	if err != nil {
		panic(err)
	}
}

// controlHandler accepts control messages as JSON payloads.
func controlHandler(engine *strategycache.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg strategycache.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "invalid message", http.StatusBadRequest)
			return
		}
		if _, err := engine.Handle(r.Context(), strategycache.Event{
			Kind:    strategycache.EventMessage,
			Message: msg,
		}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// eventsHandler long-polls for the next broadcast.
// Clients only see broadcasts sent while they are connected.
func eventsHandler(engine *strategycache.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages, cancel := engine.Control().Subscribe()
		defer cancel()
		select {
		case msg, ok := <-messages:
			if !ok {
				http.Error(w, "channel closed", http.StatusGone)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(msg)
		case <-r.Context().Done():
		}
	}
}
