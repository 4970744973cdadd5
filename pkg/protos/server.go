package protos

import (
	"fmt"
	"net"

	"lockkv/pkg/engine"
)

// Server accepts TCP connections and dispatches each to its own Handler
// against a shared Engine.
type Server struct {
	Hostname string
	Port     string
	Listener net.Listener
	Engine   *engine.Engine
	Logger   Logger
}

func NewServer(hostname, port string, e *engine.Engine, logger Logger) *Server {
	return &Server{
		Hostname: hostname,
		Port:     port,
		Engine:   e,
		Logger:   logger,
	}
}

func (s *Server) Run() (err error) {
	addr := fmt.Sprintf("%s:%s", s.Hostname, s.Port)
	s.Listener, err = net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			return err
		}

		handler := NewHandler(s.Engine, s.Logger)
		go handler.Handle(conn)
	}
}

func (s *Server) Close() error {
	if s.Listener == nil {
		return nil
	}
	return s.Listener.Close()
}
