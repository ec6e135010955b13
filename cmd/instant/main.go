package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/NuvandaPV/instant/internal/accounts"
	"github.com/NuvandaPV/instant/internal/chat"
	"github.com/NuvandaPV/instant/internal/config"
	"github.com/NuvandaPV/instant/internal/fileserver"
	"github.com/NuvandaPV/instant/internal/history"
	"github.com/NuvandaPV/instant/internal/hooks"
	"github.com/NuvandaPV/instant/internal/httpserver"
	"github.com/NuvandaPV/instant/internal/identity"
	"github.com/NuvandaPV/instant/internal/idgen"
	"github.com/NuvandaPV/instant/internal/logging"
	storagemongo "github.com/NuvandaPV/instant/internal/storage/mongo"
	"github.com/NuvandaPV/instant/internal/storage/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Println(err)
		return 1
	}

	debugLogger, accessLogger, closers, err := setupLogging(cfg)
	if err != nil {
		log.Println(err)
		return 1
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	if cfg.StartupCmd != "" {
		cmd := exec.Command("sh", "-c", cfg.StartupCmd)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			debugLogger.Errorf("startup command failed: %v", err)
			return 2
		}
	}

	codec, err := loadOrGenerateCodec(cfg.CookiesKeyfile, debugLogger)
	if err != nil {
		debugLogger.Errorf("%v", err)
		return 1
	}

	ids := idgen.New()
	group := chat.NewRoomGroup()
	distributor := chat.NewDistributor(group, ids)
	wireSinks(distributor, debugLogger)

	pipeline := fileserver.NewPipeline(cfg.HTTPMaxCacheAge)
	wireStaticAssets(pipeline, cfg)

	registry := buildHookRegistry(pipeline)

	srv := httpserver.New(registry, distributor, codec, !cfg.CookiesInsecure, debugLogger, accessLogger)

	router := mux.NewRouter()
	wireAccounts(router, codec, !cfg.CookiesInsecure, debugLogger)
	wireHistory(router, debugLogger)
	srv.Mount(router)

	httpSrv := &http.Server{Addr: cfg.Addr(), Handler: router}

	errCh := make(chan error, 1)
	go func() {
		debugLogger.Infof("listening on %s", cfg.Addr())
		errCh <- httpSrv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			debugLogger.Errorf("%v", err)
			return 3
		}
	case <-sig:
		shutdown(httpSrv, group, debugLogger)
	}
	return 0
}

// setupLogging opens the --debug-log/--http-log targets ("-" for
// stderr, otherwise a file opened for append) and wraps each in a
// logging.Logger gated at --log-level. Callers must close every
// returned io.Closer on exit.
func setupLogging(cfg *config.Config) (debugLogger, accessLogger *logging.Logger, closers []io.Closer, err error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	debugOut, debugCloser, err := logging.Open(cfg.DebugLog)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening --debug-log: %w", err)
	}
	if debugCloser != nil {
		closers = append(closers, debugCloser)
	}

	httpOut, httpCloser, err := logging.Open(cfg.HTTPLog)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening --http-log: %w", err)
	}
	if httpCloser != nil {
		closers = append(closers, httpCloser)
	}

	debugLogger = logging.New(log.New(debugOut, "instant: ", log.LstdFlags), level)
	accessLogger = logging.New(log.New(httpOut, "instant: ", log.LstdFlags), logging.LevelInfo)
	return debugLogger, accessLogger, closers, nil
}

// loadOrGenerateCodec loads the signing key from keyfile, or generates
// one and (if keyfile is non-empty) persists it there for reuse across
// restarts. An empty keyfile always generates an ephemeral key.
func loadOrGenerateCodec(keyfile string, logger *logging.Logger) (*identity.Codec, error) {
	if keyfile != "" {
		if data, err := os.ReadFile(keyfile); err == nil {
			return identity.NewCodec(data)
		}
	}

	key, err := identity.GenerateKey()
	if err != nil {
		return nil, err
	}
	if keyfile != "" {
		if err := os.WriteFile(keyfile, key, 0600); err != nil {
			logger.Warnf("failed to persist generated key to %s: %v", keyfile, err)
		}
	}
	return identity.NewCodec(key)
}

// roomNamePattern is the ROOM token from the external interfaces
// section: a letter, optionally followed by alphanumerics/_/- and
// ending in an alphanumeric.
const roomNamePattern = `[a-zA-Z](?:[a-zA-Z0-9_-]*[a-zA-Z0-9])?`

func wireStaticAssets(pipeline *fileserver.Pipeline, cfg *config.Config) {
	fs, err := fileserver.NewFilesystemProducer(cfg.Webroot, []string{`/pages/.*`, `/static/.*`})
	if err != nil {
		panic(err) // whitelist patterns are compile-time constants
	}
	pipeline.AddProducer(fs)

	synthetic := fileserver.NewSyntheticProducer()
	synthetic.Set("/static/version.js",
		[]byte(`this._instantVersion_ = {version:"1.0.0", revision:"unknown"};`))
	pipeline.AddProducer(synthetic)

	aliases := pipeline.Aliases()
	aliases.AddLiteral("/", "/pages/main.html")
	aliases.AddLiteral("/favicon.ico", "/static/logo-static_128x128.ico")
	aliases.AddRegex(regexp.MustCompile(`^/([a-zA-Z0-9_-]+)\.html$`), `/pages/\1.html`)
	aliases.AddRegex(regexp.MustCompile(`^/room/(`+roomNamePattern+`)/$`), `/static/room.html`)
}

func buildHookRegistry(pipeline *fileserver.Pipeline) *hooks.Registry {
	registry := hooks.NewRegistry()
	registry.Register(&hooks.FileAliasHook{Aliases: pipeline.Aliases()})
	registry.Register(&hooks.StaticFileHook{Pipeline: pipeline})

	redirects := hooks.NewRedirectHook()
	_ = redirects.Add(`/room/(`+roomNamePattern+`)`, `/room/\1/`, http.StatusMovedPermanently)
	registry.Register(redirects)

	ws := hooks.NewWebSocketHook()
	ws.AddExact("/api/ws", "")
	ws.AddCaptured(`/room/(` + roomNamePattern + `)/ws`)
	registry.Register(ws)

	registry.Register(hooks.NotFoundHook{})
	registry.Freeze()
	return registry
}

func wireSinks(distributor *chat.Distributor, logger *logging.Logger) {
	if dsn := os.Getenv("INSTANT_DATABASE_URL"); dsn != "" {
		store, err := postgres.Open(dsn)
		if err != nil {
			logger.Warnf("postgres unavailable, room history disabled: %v", err)
		} else {
			distributor.SetHistorySink(postgres.HistorySink{Store: store, Logger: logger})
		}
	}

	if uri := os.Getenv("INSTANT_MONGO_URI"); uri != "" {
		dbName := os.Getenv("INSTANT_MONGO_DB")
		if dbName == "" {
			dbName = "instant"
		}
		sink, err := storagemongo.Connect(uri, dbName)
		if err != nil {
			logger.Warnf("mongo unavailable, moderation reports disabled: %v", err)
		} else {
			distributor.SetReportSink(storagemongo.ReportSink{Sink: sink, Logger: logger})
		}
	}
}

func wireAccounts(router *mux.Router, codec *identity.Codec, cookieSecure bool, logger *logging.Logger) {
	dsn := os.Getenv("INSTANT_DATABASE_URL")
	if dsn == "" {
		return
	}
	store, err := postgres.Open(dsn)
	if err != nil {
		logger.Warnf("accounts API disabled, postgres unavailable: %v", err)
		return
	}
	svc := accounts.NewService(store, codec, cookieSecure, logger)
	router.HandleFunc("/api/register", svc.Register).Methods("POST")
	router.HandleFunc("/api/login", svc.Login).Methods("POST")
	router.HandleFunc("/api/logout", svc.Logout).Methods("POST")
}

// wireHistory mounts the operator-facing room history endpoint, active
// under the same condition as the accounts API: a reachable Postgres.
func wireHistory(router *mux.Router, logger *logging.Logger) {
	dsn := os.Getenv("INSTANT_DATABASE_URL")
	if dsn == "" {
		return
	}
	store, err := postgres.Open(dsn)
	if err != nil {
		logger.Warnf("history API disabled, postgres unavailable: %v", err)
		return
	}
	svc := history.NewService(store, logger)
	router.HandleFunc("/api/rooms/{room}/history", svc.Recent).Methods("GET")
}

// shutdown implements the server-shutdown semantics: close (1001) to
// every connected client, wait up to 5s, then sever whatever remains.
func shutdown(httpSrv *http.Server, group *chat.RoomGroup, logger *logging.Logger) {
	logger.Infof("shutting down")
	for _, c := range group.AllClients() {
		c.SetState(chat.StateClosing)
		_ = c.WriteControlClose(1001, "server shutting down")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		remaining := 0
		for _, c := range group.AllClients() {
			select {
			case <-c.Closed():
			default:
				remaining++
			}
		}
		if remaining == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, c := range group.AllClients() {
		c.Close()
		c.Underlying().Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
}
