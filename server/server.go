package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/landfill/clairkeys/cache"
	"github.com/landfill/clairkeys/config"
	"github.com/landfill/clairkeys/core/auth"
	"github.com/landfill/clairkeys/core/importer"
	"github.com/landfill/clairkeys/core/omr"
	"github.com/landfill/clairkeys/core/playback"
	"github.com/landfill/clairkeys/core/session"
	"github.com/landfill/clairkeys/db"
	"github.com/landfill/clairkeys/logger"
	"github.com/landfill/clairkeys/repository"
	"github.com/landfill/clairkeys/storage"
)

// Start wires every backend dependency together and runs the HTTP server
// until SIGINT/SIGTERM, then shuts down gracefully.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    cfg.LogMaxMB,
		MaxAge:     cfg.LogMaxAge,
		Compress:   true,
	})

	auth.Init(cfg.JWTSecret)

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
	}
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize database schema", logger.ErrorField(err))
	}
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect gorm", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	userRepo := repository.NewMySQLUserRepository(db.DB)
	sheetRepo := repository.NewGormSheetRepository(db.GormDB)
	sessions := session.NewManager(nil, playback.DefaultOptions())
	omrClient := omr.NewClient(cfg.OMRServiceURL)

	apiHandler := NewAPIHandler(userRepo, sheetRepo, sessions, omrClient, cfg)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if cfg.ImportWatchDir != "" {
		watcher, err := importer.NewWatcher(cfg.ImportWatchDir, sheetRepo)
		if err != nil {
			logger.Error("import watcher disabled", logger.ErrorField(err))
		} else {
			go watcher.Run(rootCtx)
		}
	}

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// auth
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)

	// sheet music
	router.HandleFunc("/api/sheets", apiHandler.AuthMiddleware(apiHandler.ListSheetsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/sheets", apiHandler.AuthMiddleware(apiHandler.UploadSheetHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/sheets/public", apiHandler.ListPublicSheetsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sheets/{id}", apiHandler.AuthMiddleware(apiHandler.GetSheetHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/sheets/{id}", apiHandler.AuthMiddleware(apiHandler.UpdateSheetHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/sheets/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteSheetHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/sheets/{id}/animation", apiHandler.AuthMiddleware(apiHandler.GetAnimationHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{job_id}", apiHandler.AuthMiddleware(apiHandler.JobStatusHandler)).Methods(http.MethodGet)

	// categories
	router.HandleFunc("/api/categories", apiHandler.AuthMiddleware(apiHandler.ListCategoriesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/categories", apiHandler.AuthMiddleware(apiHandler.CreateCategoryHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/categories/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteCategoryHandler)).Methods(http.MethodDelete)

	// playback sessions
	router.HandleFunc("/ws/playback", apiHandler.AuthMiddleware(apiHandler.PlaybackSocketHandler))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down")
	cancelRoot()
	sessions.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", logger.ErrorField(err))
	}
	logger.Info("server stopped")
}

// corsMiddleware allows the browser frontend to call the API from another
// origin. WebSocket upgrades are unaffected.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
