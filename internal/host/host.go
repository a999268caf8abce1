// Package host implements a browser native-messaging host. The browser
// extension sends read and stop requests over stdin; replies go to stdout.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/session"
	"github.com/dgnsrekt/readaloud/internal/synth"
)

// Actions understood by the host.
const (
	ActionReadText = "readText"
	ActionStop     = "stop"
)

// Request is a message from the extension.
type Request struct {
	Action string `json:"action"`
	synth.ReadRequest
}

// Response is a reply to the extension: either Success or Error is set.
type Response struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handler runs read sessions. Tickets are taken in message order so the
// newest request wins however the read goroutines are scheduled.
type Handler interface {
	Ticket() session.Ticket
	HandleTicket(ctx context.Context, t session.Ticket, req synth.ReadRequest) (session.Result, error)
	Stop()
}

// Host serves one native-messaging connection.
type Host struct {
	in      io.Reader
	out     io.Writer
	handler Handler

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// New creates a host reading requests from in and writing replies to out.
func New(in io.Reader, out io.Writer, handler Handler) *Host {
	return &Host{in: in, out: out, handler: handler}
}

// Serve processes messages until the browser closes the stream or ctx is
// cancelled. Read requests run concurrently so a stop can interrupt them;
// Serve waits for them before returning.
func (h *Host) Serve(ctx context.Context) error {
	defer h.wg.Wait()

	for {
		msg, err := ReadMessage(h.in)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			log.Debug("Browser closed the connection")
			return nil
		case errors.Is(err, ErrMessageTooLarge):
			log.Warn("Rejecting message", "error", err)
			h.reply(Response{Error: err.Error()})
			continue
		default:
			return fmt.Errorf("failed to read message: %w", err)
		}

		if ctx.Err() != nil {
			return nil
		}
		h.dispatch(ctx, msg)
	}
}

func (h *Host) dispatch(ctx context.Context, msg []byte) {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		log.Warn("Invalid message", "error", err)
		h.reply(Response{Error: fmt.Sprintf("invalid message: %v", err)})
		return
	}

	log.Debug("Received message", "action", req.Action, "engine", req.Engine, "chars", len(req.Text))

	switch req.Action {
	case ActionReadText:
		ticket := h.handler.Ticket()
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.read(ctx, ticket, req.ReadRequest)
		}()

	case ActionStop:
		h.handler.Stop()
		h.reply(Response{Success: true})

	default:
		h.reply(Response{Error: fmt.Sprintf("Unknown action: %s", req.Action)})
	}
}

func (h *Host) read(ctx context.Context, ticket session.Ticket, req synth.ReadRequest) {
	res, err := h.handler.HandleTicket(ctx, ticket, req)
	if err != nil {
		if errors.Is(err, session.ErrPreempted) {
			log.Debug("Read request preempted")
		} else {
			log.Error("Read request failed", "error", err)
		}
		h.reply(Response{Error: err.Error()})
		return
	}

	if len(res.Skipped) > 0 {
		log.Warn("Some chunks could not be played", "skipped", len(res.Skipped), "queued", res.Chunks)
	}
	h.reply(Response{Success: true})
}

func (h *Host) reply(resp Response) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := WriteMessage(h.out, resp); err != nil {
		log.Error("Failed to write reply", "error", err)
	}
}
