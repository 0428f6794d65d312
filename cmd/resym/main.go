// # cmd/resym/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"resym/internal/audit"
	"resym/internal/config"
	"resym/internal/engine"
	"resym/internal/parse"
	"resym/internal/plan"
	"resym/internal/watcher"
	"resym/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	configPath = flag.String("config", "./resym.toml", "Path to config file")
	file       = flag.String("file", "", "File containing the symbol to rename")
	symbol     = flag.String("symbol", "", "Name of the symbol to rename")
	offset     = flag.Int("offset", -1, "Byte offset of the symbol in -file, for disambiguation")
	to         = flag.String("to", "", "New name for the symbol")
	applyPlan  = flag.Bool("apply", false, "Write the rename to disk instead of previewing")
	watch      = flag.Bool("watch", false, "Keep running and re-analyze on file changes")
	history    = flag.Int("history", 0, "Print the N most recent plans from the audit log and exit")
	strict     = flag.Bool("strict", false, "Reject plans that carry warnings")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "1.0.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("resym v%s\n", VERSION)
		os.Exit(0)
	}

	// Setup logging. Logs go to stderr so preview diffs on stdout stay
	// machine-readable.
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		if *configPath == "./resym.toml" && os.IsNotExist(err) {
			cfg = config.Default()
		} else {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if flag.NArg() > 0 {
		cfg.ProjectRoot = flag.Arg(0)
	}
	if *strict {
		cfg.Rename.Strict = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *audit.Store
	if cfg.Audit.Path != "" {
		store, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			slog.Error("failed to open audit store", "path", cfg.Audit.Path, "error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	if *history > 0 {
		if err := printHistory(store, *history); err != nil {
			slog.Error("failed to read audit history", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if cfg.Metrics.Listen != "" {
		go serveMetrics(cfg.Metrics.Listen)
	}

	sup := worker.NewSupervisor(cfg.Worker.Command, cfg.Worker.MaxRestarts)
	client := worker.NewClient(sup, cfg.Worker)
	defer client.Close()

	cache, err := parse.NewCache(cfg.Cache.Capacity)
	if err != nil {
		slog.Error("failed to create parse cache", "error", err)
		os.Exit(1)
	}

	eng := engine.New(cfg, client, cache, store, logger)

	if *symbol != "" {
		if *to == "" {
			fmt.Fprintln(os.Stderr, "rename requires -to <new-name>")
			os.Exit(1)
		}
		if *file == "" {
			fmt.Fprintln(os.Stderr, "rename requires -file <path> naming the file that declares the symbol")
			os.Exit(1)
		}
		target := plan.Target{Path: *file, Name: *symbol, Offset: *offset}
		if err := runRename(ctx, eng, target, *to, *applyPlan); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		if !*watch {
			os.Exit(0)
		}
	}

	// Initial analysis so watch mode and plain invocations both report
	// project health up front.
	sess, err := eng.Analyze(ctx)
	if err != nil {
		slog.Error("analysis failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analysis complete",
		"files", len(sess.Snapshot.Files),
		"failed", len(sess.Failed))

	if !*watch {
		return
	}

	w, err := watcher.New(cfg, func(paths []string) {
		slog.Info("files changed, re-analyzing", "count", len(paths))
		sess, err := eng.Analyze(ctx)
		if err != nil {
			slog.Error("re-analysis failed", "error", err)
			return
		}
		slog.Info("analysis complete",
			"files", len(sess.Snapshot.Files),
			"failed", len(sess.Failed))
	})
	if err != nil {
		slog.Error("failed to start watcher", "error", err)
		os.Exit(1)
	}
	defer w.Close()
	if err := w.Watch(sess.Snapshot.Roots); err != nil {
		slog.Error("failed to watch roots", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
}

func runRename(ctx context.Context, eng *engine.Engine, target plan.Target, newName string, write bool) error {
	if !write {
		p, diff, err := eng.Preview(ctx, target, newName)
		if err != nil {
			if p != nil {
				printFindings(p)
			}
			return err
		}
		printFindings(p)
		fmt.Print(diff)
		return nil
	}

	p, res, err := eng.Rename(ctx, target, newName)
	if p != nil {
		printFindings(p)
	}
	if err != nil {
		if res != nil && len(res.Written) > 0 {
			fmt.Fprintf(os.Stderr, "partially applied: %d file(s) written before %s failed\n",
				len(res.Written), res.Failed)
		}
		return err
	}
	fmt.Printf("renamed %s to %s in %d file(s)\n", p.OldName, p.NewName, len(res.Written))
	return nil
}

func printFindings(p *plan.Plan) {
	for _, c := range p.Conflicts {
		fmt.Fprintf(os.Stderr, "conflict: %s:%d: %s\n", c.Path, c.Span.Start, c.Message)
	}
	for _, w := range p.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s: %s:%d: %s\n", w.Kind, w.Path, w.Span.Start, w.Message)
	}
	for _, m := range p.Mentions {
		fmt.Fprintf(os.Stderr, "mention (not edited): %s:%d in %s\n", m.Path, m.Span.Start, m.Class)
	}
}

func printHistory(store *audit.Store, limit int) error {
	if store == nil {
		return fmt.Errorf("audit log disabled: set audit.path in the config file")
	}
	entries, err := store.Recent(limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s  %s -> %s  [%s]  edits=%d warnings=%d conflicts=%d files=%d\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.OldName, e.NewName, e.State, e.Edits, e.Warnings, e.Conflicts, len(e.Files))
	}
	if len(entries) == 0 {
		fmt.Println("no recorded plans")
	}
	return nil
}

func serveMetrics(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("serving metrics", "listen", listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		slog.Error("metrics listener failed", "error", err)
	}
}
