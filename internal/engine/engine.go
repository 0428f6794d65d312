// Package engine ties the pipeline together: scan a snapshot, parse it
// through the worker (cached by content hash), analyze every file, resolve
// the import graph, and drive rename plans through validation, preview,
// application, and audit.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"resym/internal/analysis"
	"resym/internal/apply"
	"resym/internal/audit"
	"resym/internal/config"
	"resym/internal/core/errors"
	"resym/internal/imports"
	"resym/internal/parse"
	"resym/internal/plan"
	"resym/internal/project"
	"resym/internal/shared/observability"
	"resym/internal/worker"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Engine struct {
	cfg    *config.Config
	front  worker.Frontend
	cache  *parse.Cache
	audit  *audit.Store
	logger *slog.Logger
}

// New wires an engine. The audit store may be nil to disable recording.
func New(cfg *config.Config, front worker.Frontend, cache *parse.Cache, auditStore *audit.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, front: front, cache: cache, audit: auditStore, logger: logger}
}

// Session is one fully analyzed snapshot. Plans built from a session are
// valid until the underlying files change; the applier re-checks hashes.
type Session struct {
	Snapshot *project.Snapshot
	Graph    *imports.Graph
	Failed   []string
}

// Analyze scans and analyzes the whole project. Per-file failures are
// collected, not fatal; they surface as plan warnings.
func (e *Engine) Analyze(ctx context.Context) (*Session, error) {
	ctx, span := observability.Tracer.Start(ctx, "engine.Analyze")
	defer span.End()

	snap, err := project.Scan(e.cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "scan project")
	}

	files, failed := e.analyzeFiles(ctx, snap)

	start := time.Now()
	graph := imports.Resolve(files)
	observability.AnalysisDuration.WithLabelValues("resolve").Observe(time.Since(start).Seconds())
	for _, rerr := range graph.Errors {
		e.logger.Warn("resolution error", "error", rerr)
	}

	return &Session{Snapshot: snap, Graph: graph, Failed: failed}, nil
}

// analyzeFiles parses and analyzes every snapshot file on a bounded pool.
func (e *Engine) analyzeFiles(ctx context.Context, snap *project.Snapshot) ([]*analysis.File, []string) {
	type result struct {
		file *analysis.File
		path string
		err  error
	}

	parallelism := e.cfg.Worker.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	jobs := make(chan project.SourceFile)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				f, err := e.analyzeFile(ctx, snap, src)
				results <- result{file: f, path: src.Path, err: err}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, src := range snap.Files {
			select {
			case jobs <- src:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var files []*analysis.File
	var failed []string
	for r := range results {
		if r.err != nil {
			observability.FileAnalysisFailures.Inc()
			e.logger.Warn("analysis failed", "path", r.path, "error", r.err)
			failed = append(failed, r.path)
			continue
		}
		observability.FilesAnalyzed.Inc()
		files = append(files, r.file)
	}
	return files, failed
}

func (e *Engine) analyzeFile(ctx context.Context, snap *project.Snapshot, src project.SourceFile) (*analysis.File, error) {
	tree, ok := e.cache.Get(src.Hash)
	if !ok {
		start := time.Now()
		parsed, err := e.front.Parse(ctx, src.Path, src.Text)
		observability.AnalysisDuration.WithLabelValues("parse").Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		e.cache.Add(src.Hash, parsed)
		tree = parsed
	}

	module, err := imports.ModuleName(snap.RootOf(src.Path), src.Path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	f := analysis.BuildScopes(tree, src.Path)
	f.Module = module
	analysis.CollectReferences(f)
	analysis.DetectDynamic(f)
	observability.AnalysisDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	return f, nil
}

// PlanRename analyzes the project and builds a plan for one symbol.
func (e *Engine) PlanRename(ctx context.Context, target plan.Target, newName string) (*plan.Plan, *Session, error) {
	sess, err := e.Analyze(ctx)
	if err != nil {
		return nil, nil, err
	}
	p, err := e.planIn(sess, target, newName)
	if err != nil {
		return nil, nil, err
	}
	return p, sess, nil
}

func (e *Engine) planIn(sess *Session, target plan.Target, newName string) (*plan.Plan, error) {
	planner := plan.New(sess.Graph, plan.Options{
		Strict:              e.cfg.Rename.Strict,
		AttributeHeuristics: e.cfg.Rename.AttributeHeuristics,
		FailedFiles:         sess.Failed,
	})
	p, err := planner.Rename(target, newName)
	if err != nil {
		return nil, err
	}
	e.record(p)
	return p, nil
}

// Preview returns the unified diff a plan would apply.
func (e *Engine) Preview(ctx context.Context, target plan.Target, newName string) (*plan.Plan, string, error) {
	p, _, err := e.PlanRename(ctx, target, newName)
	if err != nil {
		return nil, "", err
	}
	if p.State != plan.StateReady {
		return p, "", nil
	}
	text, err := apply.Preview(p)
	if err != nil {
		return p, "", err
	}
	return p, text, nil
}

// Rename plans and applies in one step. A rejected plan is returned with
// a conflict error; a partial application marks the plan failed and
// reports what was written.
func (e *Engine) Rename(ctx context.Context, target plan.Target, newName string) (*plan.Plan, *apply.Result, error) {
	ctx, span := observability.Tracer.Start(ctx, "engine.Rename", trace.WithAttributes(
		attribute.String("rename.symbol", target.Name),
		attribute.String("rename.to", newName)))
	defer span.End()

	p, sess, err := e.PlanRename(ctx, target, newName)
	if err != nil {
		return nil, nil, err
	}
	if p.State != plan.StateReady {
		err := errors.Newf(errors.CodeConflict, "plan rejected with %d conflicts", len(p.Conflicts))
		return p, nil, errors.AddContext(err, errors.CtxSymbol, p.OldName)
	}

	res := apply.Apply(ctx, p, sess.Snapshot.Hashes())
	if res.Err != nil {
		p.State = plan.StateFailed
		e.record(p)
		return p, res, res.Err
	}
	p.State = plan.StateApplied
	e.record(p)
	e.logger.Info("rename applied",
		"plan", p.ID, "old", p.OldName, "new", p.NewName,
		"files", len(res.Written), "edits", len(p.Edits))
	return p, res, nil
}

func (e *Engine) record(p *plan.Plan) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(p); err != nil {
		e.logger.Warn("audit record failed", "plan", p.ID, "error", err)
	}
}
