// Command rfbd runs a standalone RFB (VNC) server: the TCP protocol
// engine, an optional WebSocket bridge for browser viewers, and an
// optional JWT-protected admin API, all sharing one framebuffer fed by
// a capture Source.
package main

import (
	"bufio"
	"context"
	"expvar"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/rjsadow/rfbd/internal/demo"
	"github.com/rjsadow/rfbd/internal/diagnostics"
	"github.com/rjsadow/rfbd/internal/rfb"
	"github.com/rjsadow/rfbd/internal/rfbadmin"
	"github.com/rjsadow/rfbd/internal/rfbconfig"
	"github.com/rjsadow/rfbd/internal/wsbridge"
)

var startTime = time.Now()

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	port := flag.Int("port", rfbconfig.DefaultPort, "TCP port to listen on for RFB clients")
	width := flag.Int("width", rfbconfig.DefaultWidth, "framebuffer width")
	height := flag.Int("height", rfbconfig.DefaultHeight, "framebuffer height")
	flag.Parse()

	cfg, err := rfbconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: failed to load configuration\n\n%s\n", err)
		os.Exit(1)
	}
	if isFlagSet("port") {
		cfg.Port = *port
	}
	if isFlagSet("width") {
		cfg.Width = *width
	}
	if isFlagSet("height") {
		cfg.Height = *height
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sink := demo.NewLoggingSink(logger)
	server := rfb.NewServer(rfb.Config{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Password:    cfg.Password,
		Name:        cfg.DesktopName,
		AcceptRate:  rate.Limit(cfg.AcceptRate),
		AcceptBurst: cfg.AcceptBurst,
		Logger:      logger,
		Sink:        sink,
	})

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		logger.Error("rfbd: failed to bind listener", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("rfbd: listening", "port", cfg.Port, "width", cfg.Width, "height", cfg.Height)

	go func() {
		if err := server.Serve(ctx, lis); err != nil {
			logger.Error("rfbd: server stopped", "error", err)
		}
	}()

	source := demo.NewPatternSource(cfg.Width, cfg.Height)
	go func() {
		if err := server.RunCapture(ctx, source, cfg.CaptureInterval); err != nil && ctx.Err() == nil {
			logger.Error("rfbd: capture task stopped", "error", err)
		}
	}()

	if cfg.WSPort != 0 {
		startWSBridge(ctx, cfg, logger)
	}
	if cfg.AdminPort != 0 {
		startAdminAPI(ctx, cfg, server, logger)
	}

	runInteractiveCLI(ctx, server, cfg, logger)

	cancel()
	_ = server.Stop()
}

func startWSBridge(ctx context.Context, cfg *rfbconfig.Config, logger *slog.Logger) {
	bridge := wsbridge.New(fmt.Sprintf("127.0.0.1:%d", cfg.Port), logger)
	mux := http.NewServeMux()
	mux.Handle("/", bridge)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.WSPort), Handler: mux}
	go func() {
		logger.Info("rfbd: websocket bridge listening", "port", cfg.WSPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rfbd: websocket bridge stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func startAdminAPI(ctx context.Context, cfg *rfbconfig.Config, server *rfb.Server, logger *slog.Logger) {
	passwordHash, err := rfbadmin.HashPassword(cfg.AdminPassword)
	if err != nil {
		logger.Error("rfbd: failed to hash admin password", "error", err)
		return
	}
	api, err := rfbadmin.New(rfbadmin.Config{
		Username:     cfg.AdminUsername,
		PasswordHash: passwordHash,
		JWTSecret:    cfg.JWTSecret,
	}, server, logger)
	if err != nil {
		logger.Error("rfbd: failed to start admin API", "error", err)
		return
	}

	mux := http.NewServeMux()
	api.Routes(mux)
	mux.Handle("/debug/vars", expvar.Handler())
	started := startTime
	collector := diagnostics.NewCollector(server, cfg, started)
	mux.HandleFunc("GET /admin/diagnostics.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		if err := collector.WriteTarGz(r.Context(), w); err != nil {
			logger.Error("rfbd: writing diagnostics bundle", "error", err)
		}
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.AdminPort), Handler: mux}
	go func() {
		logger.Info("rfbd: admin API listening", "port", cfg.AdminPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rfbd: admin API stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// runInteractiveCLI offers "status", "clients", and "quit" over stdin
// until ctx is cancelled or the operator quits.
func runInteractiveCLI(ctx context.Context, server *rfb.Server, cfg *rfbconfig.Config, logger *slog.Logger) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("rfbd ready. Commands: status, clients, quit")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "status":
				width, height := server.Dimensions()
				fmt.Printf("framebuffer %dx%d, %d client(s) connected\n", width, height, len(server.Sessions()))
			case "clients":
				for _, s := range server.Sessions() {
					fmt.Printf("  %s  %s  encodings=%v\n", s.ID, s.RemoteAddr, s.Encodings)
				}
			case "quit", "exit":
				return
			case "":
				// ignore blank lines
			default:
				fmt.Println("unknown command:", line)
			}
		}
	}
}

func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
