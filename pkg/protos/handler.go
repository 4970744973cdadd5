package protos

import (
	"fmt"
	"net"

	"lockkv/pkg/engine"
)

// Logger is the minimal structured-logging surface Handler uses; a nil
// Logger makes it a no-op.
type Logger interface {
	Warnw(msg string, keysAndValues ...interface{})
}

// Handler drives one connection's command loop against a shared Engine.
type Handler struct {
	engine  *engine.Engine
	session *Session
	logger  Logger
}

func NewHandler(e *engine.Engine, logger Logger) *Handler {
	return &Handler{
		engine:  e,
		session: NewSession(),
		logger:  logger,
	}
}

// Handle runs the request/response loop for conn until it errors or
// closes. Every command produces exactly one response, even on error.
func (h *Handler) Handle(conn net.Conn) {
	defer h.cleanup()

	for {
		req, err := ParseCommand(conn)
		var resp *Command
		if err != nil {
			if h.logger != nil {
				h.logger.Warnw("failed to parse command", "err", err)
			}
			return
		}

		resp, err = h.Execute(req)
		if err != nil {
			resp = NewErrorCommand(err)
		}
		if err := resp.Send(conn); err != nil {
			if h.logger != nil {
				h.logger.Warnw("failed to send response", "err", err)
			}
			return
		}
	}
}

// cleanup aborts any transaction left open when the connection drops,
// so its locks don't linger.
func (h *Handler) cleanup() {
	if tx := h.session.GetTxn(); tx != nil {
		h.engine.Abort(tx)
		h.session.SetTxn(nil)
	}
}

// Execute runs one command against the session's transaction, opening
// an implicit single-command transaction (auto-committed on success,
// aborted on failure) if none is already open.
func (h *Handler) Execute(req *Command) (resp *Command, err error) {
	isLocalTxn := h.session.GetTxn() == nil && req.Type != Begin
	if isLocalTxn {
		tx, err := h.engine.Begin()
		if err != nil {
			return nil, err
		}
		h.session.SetTxn(tx)
	}

	resp = &Command{Type: None}
	tx := h.session.GetTxn()

	switch req.Type {
	case Get:
		if len(req.Payload) < 1 {
			err = fmt.Errorf("GET requires a key")
			break
		}
		var v []byte
		v, err = h.engine.Get(tx, req.Payload[0])
		if err == nil {
			resp.Type = String
			resp.Payload = []string{string(v)}
		}

	case Put:
		if len(req.Payload) < 2 {
			err = fmt.Errorf("PUT requires a key and a value")
			break
		}
		err = h.engine.Put(tx, req.Payload[0], []byte(req.Payload[1]))

	case Begin:
		newTx, beginErr := h.engine.Begin()
		if beginErr != nil {
			err = beginErr
			break
		}
		h.session.SetTxn(newTx)

	case Commit:
		err = h.engine.Commit(tx)
		h.session.SetTxn(nil)

	case Abort:
		h.engine.Abort(tx)
		h.session.SetTxn(nil)

	default:
		err = fmt.Errorf("invalid command type: type=%v", req.Type)
	}

	if isLocalTxn {
		if err == nil {
			err = h.engine.Commit(tx)
		} else {
			h.engine.Abort(tx)
		}
		h.session.SetTxn(nil)
	}
	return resp, err
}
