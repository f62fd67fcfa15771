// Package bridge exposes the orchestrator to a host process over
// newline-delimited JSON.
//
// The host writes one request per line:
//
//	{"id":"1","op":"spawn","instructions":"summarize","input":"...","timeoutMs":30000}
//	{"id":"2","op":"cancel","taskId":"..."}
//	{"id":"3","op":"list","status":"running"}
//
// Every request gets exactly one response line carrying the same id:
//
//	{"type":"response","id":"1","ok":true,"result":{"success":true,"taskId":"...","status":"completed","result":"..."}}
//
// A spawn is answered when its task reaches a terminal state; all other
// requests are answered immediately, so responses may arrive out of order.
// Between responses the bridge writes a line for every task change:
//
//	{"type":"task","task":{"id":"...","status":"running",...}}
//
// Lines for one task follow its transition order, and a spawn's terminal task
// line precedes its response. Lines for different tasks may interleave in any
// order.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"

	"github.com/dshills/delegate/internal/agent"
	"github.com/dshills/delegate/internal/event"
)

// MaxLineBytes bounds a single request line.
const MaxLineBytes = 4 * 1024 * 1024

// Server serves JSON-lines requests against an orchestrator.
type Server struct {
	orch   *agent.Orchestrator
	logger zerolog.Logger

	outMu sync.Mutex
	out   io.Writer

	inflight sync.WaitGroup
}

// New creates a bridge writing responses and task lines to out.
func New(orch *agent.Orchestrator, out io.Writer, logger zerolog.Logger) *Server {
	return &Server{
		orch:   orch,
		out:    out,
		logger: logger.With().Str("component", "bridge").Logger(),
	}
}

// Broadcast writes a task line. It makes Server usable as the
// orchestrator's broadcaster.
func (s *Server) Broadcast(task agent.Task) {
	s.write(taskMessage(task))
}

// Handle writes a task line for a bus event.
func (s *Server) Handle(_ context.Context, ev event.Event) error {
	s.Broadcast(ev.Task)
	return nil
}

// Serve reads requests from r until EOF or ctx ends, then waits for
// in-flight spawns to be answered. Cancelling ctx cancels those spawns.
func (s *Server) Serve(ctx context.Context, r io.Reader) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), MaxLineBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var err error
loop:
	for {
		select {
		case line := <-lines:
			if len(line) == 0 {
				continue
			}
			s.dispatch(ctx, line)
		case err = <-readErr:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	s.inflight.Wait()
	if err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, line []byte) {
	req, err := decodeRequest(line)
	if err != nil {
		s.logger.Warn().Err(err).Msg("bad request")
		s.write(errorResponse(req.ID, "", err))
		return
	}

	s.logger.Debug().Str("id", req.ID).Str("op", req.Op).Msg("request")

	switch req.Op {
	case OpSpawn:
		s.spawn(ctx, req)

	case OpCancel:
		if req.TaskID == "" {
			s.write(errorResponse(req.ID, "", ErrMissingTaskID))
			return
		}
		buf := response(req.ID, true)
		buf, _ = sjson.SetBytes(buf, "cancelled", s.orch.Cancel(req.TaskID))
		s.write(buf)

	case OpCancelAll:
		buf := response(req.ID, true)
		buf, _ = sjson.SetBytes(buf, "cancelled", s.orch.CancelAll())
		s.write(buf)

	case OpGet:
		if req.TaskID == "" {
			s.write(errorResponse(req.ID, "", ErrMissingTaskID))
			return
		}
		task, ok := s.orch.Get(req.TaskID)
		if !ok {
			s.write(errorResponse(req.ID, agent.CodeTaskNotFound, agent.ErrTaskNotFound))
			return
		}
		buf := response(req.ID, true)
		buf, _ = sjson.SetRawBytes(buf, "task", encodeTask(task))
		s.write(buf)

	case OpList:
		tasks := s.orch.List()
		if req.Status != "" {
			status, err := agent.ParseStatus(req.Status)
			if err != nil {
				s.write(errorResponse(req.ID, "", err))
				return
			}
			tasks = s.orch.ListByStatus(status)
		}
		buf := response(req.ID, true)
		buf, _ = sjson.SetRawBytes(buf, "tasks", encodeTasks(tasks))
		s.write(buf)

	case OpSummary:
		buf := response(req.ID, true)
		buf, _ = sjson.SetRawBytes(buf, "summary", encodeSummary(s.orch.Summary()))
		s.write(buf)

	case OpClearFinished:
		buf := response(req.ID, true)
		buf, _ = sjson.SetBytes(buf, "removed", s.orch.ClearFinished())
		s.write(buf)

	case OpClearAll:
		s.orch.ClearAll()
		s.write(response(req.ID, true))

	default:
		s.write(errorResponse(req.ID, "", fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)))
	}
}

// spawn admits the task now and answers when it finishes.
func (s *Server) spawn(ctx context.Context, req request) {
	_, done, err := s.orch.Start(ctx, agent.SpawnRequest{
		Instructions: req.Instructions,
		Input:        req.Input,
		Timeout:      req.Timeout,
	})
	if err != nil {
		var aerr *agent.Error
		code := agent.ErrorCode("")
		if errors.As(err, &aerr) {
			code = aerr.Code
		}
		buf := errorResponse(req.ID, code, err)
		buf, _ = sjson.SetRawBytes(buf, "result", encodeResult(agent.Result{Code: code, Error: messageOf(err)}))
		s.write(buf)
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		res := <-done
		buf := response(req.ID, res.Success)
		buf, _ = sjson.SetRawBytes(buf, "result", encodeResult(res))
		s.write(buf)
	}()
}

func messageOf(err error) string {
	var aerr *agent.Error
	if errors.As(err, &aerr) {
		return aerr.Message
	}
	return err.Error()
}

// write emits one line. Lines from concurrent writers never interleave.
func (s *Server) write(line []byte) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	line = append(line, '\n')
	if _, err := s.out.Write(line); err != nil {
		s.logger.Error().Err(err).Msg("write failed")
	}
}
