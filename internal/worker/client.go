package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"resym/internal/config"
	"resym/internal/core/errors"
	"resym/internal/parse"
	"resym/internal/shared/observability"
)

// Frontend is the collaborator surface the analysis layer depends on.
type Frontend interface {
	Parse(ctx context.Context, path, text string) (*parse.Tree, error)
	Scopes(ctx context.Context, treeID int64) (*ScopesResult, error)
	References(ctx context.Context, treeID, bindingID int64) ([]ReferenceSketch, error)
	Rewrite(ctx context.Context, treeID int64, edits []Edit) (string, error)
}

// Client speaks the line-delimited protocol to a supervised collaborator.
// Requests may be pipelined; responses are matched to callers through the
// pending map. A request blocks its caller until the matching response
// arrives or the configured timeout fires; a timeout fails the request with
// a transport error and restarts the process. Restarting invalidates
// nothing in the parse cache, which is keyed by content hash.
type Client struct {
	source  processSource
	timeout time.Duration
	limiter *rate.Limiter

	mu      sync.Mutex
	sess    *Session
	nextID  int64
	pending map[int64]chan Response
}

func NewClient(sup *Supervisor, cfg config.Worker) *Client {
	c := &Client{
		source:  sup,
		timeout: cfg.RequestTimeout,
		pending: make(map[int64]chan Response),
	}
	if cfg.RateLimit.Enabled {
		perSecond := float64(cfg.RateLimit.RequestsPerMinute) / 60.0
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), cfg.RateLimit.Burst)
	}
	return c
}

func newClientWithSource(source processSource, timeout time.Duration) *Client {
	return &Client{
		source:  source,
		timeout: timeout,
		pending: make(map[int64]chan Response),
	}
}

func (c *Client) Parse(ctx context.Context, path, text string) (*parse.Tree, error) {
	resp, err := c.do(ctx, Request{Op: OpParse, Path: path, Text: text})
	if err != nil {
		return nil, err
	}
	return &parse.Tree{
		ID:          resp.TreeID,
		Path:        path,
		Text:        text,
		Root:        resp.Root,
		Tokens:      resp.Tokens,
		Diagnostics: resp.Diagnostics,
	}, nil
}

func (c *Client) Scopes(ctx context.Context, treeID int64) (*ScopesResult, error) {
	resp, err := c.do(ctx, Request{Op: OpScopes, TreeID: treeID})
	if err != nil {
		return nil, err
	}
	return &ScopesResult{Scopes: resp.Scopes, Bindings: resp.Bindings}, nil
}

func (c *Client) References(ctx context.Context, treeID, bindingID int64) ([]ReferenceSketch, error) {
	resp, err := c.do(ctx, Request{Op: OpReferences, TreeID: treeID, BindingID: bindingID})
	if err != nil {
		return nil, err
	}
	return resp.References, nil
}

func (c *Client) Rewrite(ctx context.Context, treeID int64, edits []Edit) (string, error) {
	resp, err := c.do(ctx, Request{Op: OpRewrite, TreeID: treeID, Edits: edits})
	if err != nil {
		return "", err
	}
	return resp.NewText, nil
}

// do sends one request and waits for its response. Idempotent operations
// are retried once after a transport failure and restart; rewrite is never
// auto-retried, to avoid double-applying edits.
func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	resp, err := c.call(ctx, req)
	if err != nil && errors.IsCode(err, errors.CodeTransport) && req.Op != OpRewrite {
		slog.Warn("retrying idempotent request after transport failure", "op", req.Op)
		resp, err = c.call(ctx, req)
	}
	if err != nil {
		observability.WorkerRequestErrors.WithLabelValues(req.Op).Inc()
	}
	return resp, err
}

func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, errors.Wrap(err, errors.CodeTransport, "request rate limit wait")
		}
	}

	start := time.Now()
	defer func() {
		observability.WorkerRequestDuration.WithLabelValues(req.Op).Observe(time.Since(start).Seconds())
	}()

	ch, err := c.send(&req)
	if err != nil {
		return Response{}, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, errors.New(errors.CodeTransport, "collaborator connection lost")
		}
		if resp.Status != StatusOK {
			// The exchange itself succeeded; an error response is an
			// operation failure and is never auto-retried.
			err := errors.Newf(errors.CodeInternal, "%s: %s", resp.ErrorCode, resp.Message)
			return Response{}, errors.AddContext(err, errors.CtxOperation, req.Op)
		}
		return resp, nil
	case <-timer.C:
		c.forget(req.ID)
		c.restart()
		return Response{}, errors.Newf(errors.CodeTransport, "request %d (%s) timed out after %s", req.ID, req.Op, c.timeout)
	case <-ctx.Done():
		c.forget(req.ID)
		return Response{}, errors.Wrap(ctx.Err(), errors.CodeTransport, "request canceled")
	}
}

// send registers the pending call and writes one request line, starting the
// collaborator session if needed. The assigned id is written back into req.
func (c *Client) send(req *Request) (chan Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		sess, err := c.source.Start()
		if err != nil {
			return nil, err
		}
		c.sess = sess
		go c.readLoop(sess)
	}

	c.nextID++
	req.ID = c.nextID
	ch := make(chan Response, 1)
	c.pending[req.ID] = ch

	line, err := json.Marshal(req)
	if err != nil {
		delete(c.pending, req.ID)
		return nil, errors.Wrap(err, errors.CodeInternal, "encode request")
	}
	line = append(line, '\n')
	if _, err := c.sess.Stdin.Write(line); err != nil {
		delete(c.pending, req.ID)
		c.teardownLocked()
		return nil, errors.Wrap(err, errors.CodeTransport, "write request")
	}
	return ch, nil
}

// readLoop delivers response lines to pending calls until the session's
// stdout closes or a line fails to decode. Any undecodable line is a
// protocol violation that poisons the whole session.
func (c *Client) readLoop(sess *Session) {
	scanner := bufio.NewScanner(sess.Stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			slog.Error("malformed response line from collaborator", "error", err)
			break
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if !ok {
			// Unsolicited responses are not part of the contract.
			slog.Warn("response with no pending request", "id", resp.ID)
			continue
		}
		ch <- resp
	}

	c.mu.Lock()
	if c.sess == sess {
		c.teardownLocked()
	}
	c.mu.Unlock()
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// restart tears down the current session; the next request respawns the
// collaborator via the supervisor.
func (c *Client) restart() {
	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
	if sup, ok := c.source.(*Supervisor); ok {
		sup.NoteRestart()
	}
}

// teardownLocked kills the session and fails every pending call. Callers
// hold c.mu.
func (c *Client) teardownLocked() {
	if c.sess != nil {
		c.sess.Kill()
		c.sess = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
}
