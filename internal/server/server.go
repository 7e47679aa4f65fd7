package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"medtrack/internal/adherence"
	"medtrack/internal/backup"
	"medtrack/internal/handler"
	"medtrack/internal/logging"
	"medtrack/internal/middleware"
	"medtrack/internal/push"
	"medtrack/internal/store"
	ws "medtrack/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	authH         *handler.AuthHandler
	medicationH   *handler.MedicationHandler
	journalH      *handler.JournalHandler
	pushH         *handler.PushHandler
	backupH       *handler.BackupHandler
	sessionStore  *store.SessionStore
	pushStore     *store.PushStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	pushService   *push.Service
	pushScheduler *push.Scheduler
	logger        *slog.Logger
}

func New(db *sql.DB, backupCfg backup.Config, pushCfg push.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logging.Component(logger, "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	medicationStore := store.NewMedicationStore(db)
	journalStore := store.NewJournalStore(db)
	pushStore := store.NewPushStore(db)
	settingsStore := store.NewSettingsStore(db)
	backupStore := store.NewBackupStore(db)

	toggler := adherence.NewToggler(medicationStore, logging.Component(logger, "adherence"))

	backupMgr := backup.NewManager(backupCfg, db, backupStore, settingsStore, logging.Component(logger, "backup"))

	// Push service and scheduler only run with a VAPID key pair configured.
	var pushSvc *push.Service
	var pushSched *push.Scheduler
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(pushCfg.VAPIDPublicKey, pushCfg.VAPIDPrivateKey, pushCfg.Subscriber)
		pushSched = push.NewScheduler(pushSvc, pushStore, medicationStore, logging.Component(logger, "push"))
	}

	return &Server{
		db:            db,
		hub:           hub,
		authH:         handler.NewAuthHandler(userStore, sessionStore, logging.Component(logger, "auth")),
		medicationH:   handler.NewMedicationHandler(medicationStore, toggler, hub, logging.Component(logger, "medication")),
		journalH:      handler.NewJournalHandler(journalStore, hub, logging.Component(logger, "journal")),
		pushH:         handler.NewPushHandler(pushSvc, pushStore, logging.Component(logger, "push_handler")),
		backupH:       handler.NewBackupHandler(backupMgr, backupStore, settingsStore, logging.Component(logger, "backup_handler")),
		sessionStore:  sessionStore,
		pushStore:     pushStore,
		rateLimiter:   middleware.NewRateLimiter(),
		backupManager: backupMgr,
		pushService:   pushSvc,
		pushScheduler: pushSched,
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// PushStore returns the push store for cleanup tasks.
func (s *Server) PushStore() *store.PushStore {
	return s.pushStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the dose reminder scheduler, nil when push is
// not configured.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes behind RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(logging.Component(s.logger, "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)

	// Medication API routes
	mux.HandleFunc("GET /api/medications", s.medicationH.List)
	mux.HandleFunc("POST /api/medications", s.medicationH.Create)
	mux.HandleFunc("PUT /api/medications/{id}", s.medicationH.Update)
	mux.HandleFunc("DELETE /api/medications/{id}", s.medicationH.Delete)
	mux.HandleFunc("GET /api/medications/day", s.medicationH.Day)
	mux.HandleFunc("GET /api/medications/calendar", s.medicationH.Calendar)
	mux.HandleFunc("POST /api/medications/{id}/toggle", s.medicationH.Toggle)
	mux.HandleFunc("GET /api/logs", s.medicationH.Logs)

	// Journal API routes
	mux.HandleFunc("GET /api/journal", s.journalH.List)
	mux.HandleFunc("POST /api/journal", s.journalH.Create)
	mux.HandleFunc("PUT /api/journal/{id}", s.journalH.Update)
	mux.HandleFunc("DELETE /api/journal/{id}", s.journalH.Delete)

	// Push notification API routes
	if s.pushService != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/preferences", s.pushH.GetPreferences)
		mux.HandleFunc("PUT /api/push/preferences", s.pushH.SetPreference)
	}

	// Backup API routes
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("GET /api/backups/status", s.backupH.Status)
	mux.HandleFunc("POST /api/backups/run", s.backupH.RunNow)
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)
	mux.HandleFunc("GET /api/backups/settings", s.backupH.GetSettings)
	mux.HandleFunc("PUT /api/backups/settings", s.backupH.UpdateSettings)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}
