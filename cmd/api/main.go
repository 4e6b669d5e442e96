package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/canvass-coach/backend/internal/config"
	"github.com/zhouzirui/canvass-coach/backend/internal/handler"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/practice"
)

const idleSweepInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	scripts, err := loadScripts(cfg.Session.ScriptsFile)
	if err != nil {
		log.Fatalf("failed to load scripts: %v", err)
	}

	coaches, err := cfg.NewCoachProvider(ctx)
	if err != nil {
		log.Fatalf("failed to initialize coach: %v", err)
	}
	if coaches == nil {
		log.Println("教练反馈已关闭 (COACH_PROVIDER=none)")
	} else {
		log.Printf("coach provider initialized: %T", coaches)
	}

	practiceSvc := practice.NewService(scripts, coaches, cfg.Voice.Options())
	defer practiceSvc.Shutdown()

	go sweepIdle(ctx, practiceSvc, cfg.Session.IdleTimeout)

	router := handler.NewRouter(scripts, practiceSvc, cfg.Server.CORSOrigins)

	startServer(ctx, cfg.Server, router)
}

// loadScripts 合并内置脚本与 SCRIPTS_FILE 中的脚本，同 ID 时文件优先
func loadScripts(path string) (script.Store, error) {
	items := script.Seed()
	if path == "" {
		return script.NewMemoryStore(items), nil
	}

	loaded, err := script.LoadFile(path)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(items))
	for i, sc := range items {
		byID[sc.ID] = i
	}
	for _, sc := range loaded {
		if i, ok := byID[sc.ID]; ok {
			items[i] = sc
			continue
		}
		items = append(items, sc)
	}
	log.Printf("loaded %d scripts from %s", len(loaded), path)
	return script.NewMemoryStore(items), nil
}

func sweepIdle(ctx context.Context, svc *practice.Service, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.CloseIdle(timeout)
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("canvass coach backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
