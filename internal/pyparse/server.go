package pyparse

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"resym/internal/parse"
	"resym/internal/worker"
)

// Server answers worker protocol requests over a line-delimited JSON
// stream, one object per line, correlated by id. It never emits
// unsolicited messages.
type Server struct {
	pool *Pool

	mu     sync.Mutex
	nextID int64
	trees  map[int64]*storedTree
}

type storedTree struct {
	text   string
	root   *parse.Node
	tokens []parse.Token
}

func NewServer() *Server {
	return &Server{
		pool:  NewPool(),
		trees: make(map[int64]*storedTree),
	}
}

// Serve reads requests until EOF. Responses for pipelined requests are
// written in completion order; the id ties them back to their request.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(bufio.NewReader(in))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	writer := bufio.NewWriter(out)
	encoder := json.NewEncoder(writer)
	var writeMu sync.Mutex

	respond := func(resp worker.Response) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := encoder.Encode(resp); err != nil {
			return err
		}
		return writer.Flush()
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var req worker.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			if err := respond(worker.Response{
				Status:    worker.StatusError,
				ErrorCode: worker.ErrBadRequest,
				Message:   fmt.Sprintf("malformed request line: %v", err),
			}); err != nil {
				return err
			}
			continue
		}

		if err := respond(s.handle(req)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handle(req worker.Request) worker.Response {
	switch req.Op {
	case worker.OpParse:
		return s.handleParse(req)
	case worker.OpScopes:
		return s.handleScopes(req)
	case worker.OpReferences:
		return s.handleReferences(req)
	case worker.OpRewrite:
		return s.handleRewrite(req)
	default:
		return errorResponse(req.ID, worker.ErrBadRequest, "unknown op %q", req.Op)
	}
}

func (s *Server) handleParse(req worker.Request) worker.Response {
	result := s.pool.ParseSource([]byte(req.Text))

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.trees[id] = &storedTree{text: req.Text, root: result.Root, tokens: result.Tokens}
	s.mu.Unlock()

	return worker.Response{
		ID:          req.ID,
		Status:      worker.StatusOK,
		TreeID:      id,
		Root:        result.Root,
		Tokens:      result.Tokens,
		Diagnostics: result.Diagnostics,
	}
}

func (s *Server) lookup(treeID int64) *storedTree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trees[treeID]
}

func (s *Server) handleScopes(req worker.Request) worker.Response {
	tree := s.lookup(req.TreeID)
	if tree == nil {
		return errorResponse(req.ID, worker.ErrUnknownTree, "tree %d not found", req.TreeID)
	}
	scopes, bindings := sketchScopes(tree)
	return worker.Response{ID: req.ID, Status: worker.StatusOK, Scopes: scopes, Bindings: bindings}
}

func (s *Server) handleReferences(req worker.Request) worker.Response {
	tree := s.lookup(req.TreeID)
	if tree == nil {
		return errorResponse(req.ID, worker.ErrUnknownTree, "tree %d not found", req.TreeID)
	}
	_, bindings := sketchScopes(tree)
	var target *worker.BindingSketch
	for i := range bindings {
		if bindings[i].ID == req.BindingID {
			target = &bindings[i]
			break
		}
	}
	if target == nil {
		return errorResponse(req.ID, worker.ErrBadRequest, "binding %d not found", req.BindingID)
	}

	var refs []worker.ReferenceSketch
	tree.root.Walk(func(n *parse.Node) bool {
		if n.Kind == "identifier" && tree.text[n.Span.Start:n.Span.End] == target.Name && n.Span != target.Span {
			refs = append(refs, worker.ReferenceSketch{Name: target.Name, Span: n.Span})
		}
		return true
	})
	return worker.Response{ID: req.ID, Status: worker.StatusOK, References: refs}
}

// handleRewrite applies span edits to the stored text, producing a
// minimal-diff rewrite rather than a full reprint. Edits must be disjoint
// and in bounds.
func (s *Server) handleRewrite(req worker.Request) worker.Response {
	tree := s.lookup(req.TreeID)
	if tree == nil {
		return errorResponse(req.ID, worker.ErrUnknownTree, "tree %d not found", req.TreeID)
	}

	edits := make([]worker.Edit, len(req.Edits))
	copy(edits, req.Edits)
	sort.Slice(edits, func(i, j int) bool { return edits[i].Span.Start > edits[j].Span.Start })

	text := tree.text
	prevStart := len(text) + 1
	for _, e := range edits {
		if e.Span.Start < 0 || e.Span.End > len(text) || e.Span.Start > e.Span.End {
			return errorResponse(req.ID, worker.ErrBadRequest, "edit span %s out of bounds", e.Span)
		}
		if e.Span.End > prevStart {
			return errorResponse(req.ID, worker.ErrBadRequest, "overlapping edit at %s", e.Span)
		}
		prevStart = e.Span.Start
		text = text[:e.Span.Start] + e.NewText + text[e.Span.End:]
	}

	return worker.Response{ID: req.ID, Status: worker.StatusOK, NewText: text}
}

func errorResponse(id int64, code, format string, args ...any) worker.Response {
	return worker.Response{
		ID:        id,
		Status:    worker.StatusError,
		ErrorCode: code,
		Message:   fmt.Sprintf(format, args...),
	}
}
