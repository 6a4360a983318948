package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"converter/internal/config"
	"converter/internal/daemon"
	"converter/internal/imagestore"
	"converter/internal/parsers"
	"converter/internal/parsers/chizhik"
	"converter/internal/parsers/fixprice"
	"converter/internal/parsers/perekrestok"
	"converter/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	must(err)

	fs := flag.NewFlagSet("converter-daemon", flag.ExitOnError)
	listen := fs.String("listen", cfg.DaemonListenAddr, "listen address")
	queueSize := fs.Int("queue-size", cfg.DaemonMaxQueueSize, "max queued tasks")
	_ = fs.Parse(os.Args[1:])

	reg := parsers.NewRegistry()
	reg.MustRegister(fixprice.New())
	reg.MustRegister(chizhik.New())
	reg.MustRegister(perekrestok.New())

	var opts []syncer.Option
	if strings.TrimSpace(cfg.StorageBaseURL) != "" {
		client, err := imagestore.NewClient(imagestore.Options{
			BaseURL: cfg.StorageBaseURL,
			Token:   cfg.StorageAPIToken,
			Timeout: time.Duration(cfg.StorageDeleteTimeoutSec) * time.Second,
			Strict:  cfg.StorageStrict,
		})
		must(err)
		opts = append(opts, syncer.WithImageDeleter(client))
	}

	queue := daemon.NewQueue(*queueSize, syncer.NewEngine(reg, opts...))
	server := daemon.NewServer(queue, cfg.DaemonAuthToken, daemon.Defaults{
		ReceiverDB: cfg.ReceiverDB,
		CatalogDB:  cfg.CatalogDB,
		ParserName: cfg.ParserName,
		BatchSize:  cfg.SyncBatchSize,
		MaxBatches: cfg.SyncMaxBatches,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	queue.Start(ctx)

	httpServer := &http.Server{Addr: *listen, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("converter daemon listening on %s parsers=%s\n", *listen, strings.Join(reg.Names(), ","))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		must(err)
	}

	queue.Wait()
	fmt.Println("converter daemon stopped")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
