package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akozma/mailcore/internal/api"
	"github.com/akozma/mailcore/internal/auth"
	"github.com/akozma/mailcore/internal/compose"
	"github.com/akozma/mailcore/internal/config"
	"github.com/akozma/mailcore/internal/crypto"
	"github.com/akozma/mailcore/internal/db"
	"github.com/akozma/mailcore/internal/imapcli"
	"github.com/akozma/mailcore/internal/newsletter"
	"github.com/akozma/mailcore/internal/ratelimit"
	"github.com/akozma/mailcore/internal/thread"
	"github.com/akozma/mailcore/internal/transport"
	ws "github.com/akozma/mailcore/internal/websocket"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	server := NewServer(cfg, pool)

	address := ":" + cfg.Port
	log.Printf("MailCore server starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer wires the engine together and returns the HTTP handler for the
// MailCore API.
func NewServer(cfg *config.Config, dbPool *pgxpool.Pool) http.Handler {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	store := db.NewStore(dbPool)
	resolver := thread.NewResolver(store)
	synchronizer := imapcli.NewSynchronizer(dbPool, resolver, encryptor)
	dispatcher := transport.NewDispatcher(transport.NewPool())
	composer := compose.NewComposer(store, dispatcher, synchronizer, encryptor)
	limiter := ratelimit.NewLimiterWithLimits(cfg.HourlySendLimit, cfg.DailySendLimit)
	hub := ws.NewHub(10)
	engine := newsletter.NewEngine(store, dispatcher, limiter, hub, encryptor)
	engine.SetPacing(cfg.NewsletterBatchSize, -1, -1)

	mailHandler := api.NewMailHandler(dbPool, composer, synchronizer)
	threadsHandler := api.NewThreadsHandler(dbPool, synchronizer, hub)
	newsletterHandler := api.NewNewsletterHandler(engine)
	maintenanceHandler := api.NewMaintenanceHandler(resolver)
	subscribersHandler := api.NewSubscribersHandler(dbPool)
	wsHandler := api.NewWebSocketHandler(store, hub)

	requireAuth := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAuth(store, h)
	}
	post := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h(w, r)
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	mux.Handle("/api/v1/mail/send", requireAuth(post(mailHandler.Send)))
	mux.Handle("/api/v1/mail/reply", requireAuth(post(mailHandler.Reply)))
	mux.Handle("/api/v1/mail/forward", requireAuth(post(mailHandler.Forward)))
	mux.Handle("/api/v1/threads", requireAuth(threadsHandler.GetThreads))

	// Handle /api/v1/threads/{threadId}.
	mux.Handle("/api/v1/threads/", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		threadID := strings.TrimPrefix(r.URL.Path, "/api/v1/threads/")
		if threadID == "" || strings.Contains(threadID, "/") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		threadsHandler.GetThread(w, r, threadID)
	}))
	mux.Handle("/api/v1/newsletter", requireAuth(post(newsletterHandler.Send)))
	mux.Handle("/api/v1/maintenance/rethread", requireAuth(post(maintenanceHandler.Rethread)))
	mux.Handle("/api/v1/subscribers", requireAuth(post(subscribersHandler.Subscribe)))

	// Unsubscribe is public: it is the target of the links embedded in
	// newsletter bodies.
	mux.HandleFunc("/unsubscribe", subscribersHandler.Unsubscribe)

	// WebSocket handler authenticates itself via query parameter (browsers
	// can't set headers on WebSocket connections).
	mux.Handle("/api/v1/ws", http.HandlerFunc(wsHandler.Handle))

	// Handle /api/v1/mail/{remoteId}/flags.
	mux.Handle("/api/v1/mail/", requireAuth(post(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/mail/")
		remoteID, op, found := strings.Cut(path, "/")
		if !found || op != "flags" || remoteID == "" {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		mailHandler.SetFlags(w, r, remoteID)
	})))

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "MailCore API is running")
}
