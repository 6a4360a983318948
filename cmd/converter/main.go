package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"converter/internal/config"
	"converter/internal/export"
	"converter/internal/imagestore"
	"converter/internal/parsers"
	"converter/internal/parsers/chizhik"
	"converter/internal/parsers/fixprice"
	"converter/internal/parsers/perekrestok"
	"converter/internal/storage"
	"converter/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		receiver := fs.String("receiver", cfg.ReceiverDB, "receiver database path or DSN")
		catalog := fs.String("catalog", cfg.CatalogDB, "catalog database path or DSN")
		parser := fs.String("parser", cfg.ParserName, "parser name")
		batch := fs.Int("batch", cfg.SyncBatchSize, "batch size")
		maxBatches := fs.Int("max-batches", cfg.SyncMaxBatches, "stop after N batches, 0 runs to the end")
		_ = fs.Parse(os.Args[2:])
		must(cfg.Require("RECEIVER_DB", *receiver))
		must(cfg.Require("CATALOG_DB", *catalog))
		must(cfg.Require("PARSER_NAME", *parser))

		engine := syncer.NewEngine(newRegistry(), engineOptions(cfg)...)
		report, err := engine.Run(context.Background(), syncer.Job{
			ReceiverDB: *receiver,
			CatalogDB:  *catalog,
			ParserName: *parser,
			BatchSize:  *batch,
			MaxBatches: *maxBatches,
			OnBatch: func(r syncer.Report) {
				fmt.Printf("sync batch done batches=%d processed=%d failed=%d\n", r.Batches, r.Processed, r.Failed)
			},
		})
		must(err)
		fmt.Printf("sync complete parser=%s processed=%d failed=%d batches=%d\n",
			*parser, report.Processed, report.Failed, report.Batches)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		catalog := fs.String("catalog", cfg.CatalogDB, "catalog database path or DSN")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		must(cfg.Require("CATALOG_DB", *catalog))
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}

		store, err := storage.OpenCatalog(*catalog)
		must(err)
		defer store.Close()

		rows, err := store.ListProducts(context.Background())
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no products to export"))
		}
		must(export.ProductsToXLSX(rows, *out))
		fmt.Printf("exported %d products to %s\n", len(rows), *out)
	case "daemon":
		fmt.Println("the HTTP daemon lives in its own binary: converter-daemon")
		os.Exit(1)
	default:
		usage()
		os.Exit(1)
	}
}

func newRegistry() *parsers.Registry {
	reg := parsers.NewRegistry()
	reg.MustRegister(fixprice.New())
	reg.MustRegister(chizhik.New())
	reg.MustRegister(perekrestok.New())
	return reg
}

func engineOptions(cfg config.Config) []syncer.Option {
	if strings.TrimSpace(cfg.StorageBaseURL) == "" {
		return nil
	}
	client, err := imagestore.NewClient(imagestore.Options{
		BaseURL: cfg.StorageBaseURL,
		Token:   cfg.StorageAPIToken,
		Timeout: time.Duration(cfg.StorageDeleteTimeoutSec) * time.Second,
		Strict:  cfg.StorageStrict,
	})
	must(err)
	return []syncer.Option{syncer.WithImageDeleter(client)}
}

func usage() {
	fmt.Println("usage: converter <command>")
	fmt.Println("commands:")
	fmt.Println("  sync --receiver=... --catalog=... --parser=fixprice [--batch=200] [--max-batches=0]")
	fmt.Println("  export:xlsx --catalog=... --out=./out/products.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
