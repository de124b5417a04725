package rpc

import (
	"fmt"
	"net"
	"net/rpc"

	"github.com/wfunc/swarmserver/logger"
	"github.com/wfunc/swarmserver/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// Matchmaker exposes registry queries over net/rpc for internal tools.
type Matchmaker struct {
	matchService *services.MatchService
}

// NewMatchmaker creates the RPC-facing matchmaker service.
func NewMatchmaker(ms *services.MatchService) *Matchmaker {
	return &Matchmaker{matchService: ms}
}

type FindArgs struct{}

type FindReply struct {
	RoomCode string
	Found    bool
}

// Find returns a joinable room code, if any.
func (m *Matchmaker) Find(args *FindArgs, reply *FindReply) error {
	code, ok := m.matchService.FindOpenRoom()
	reply.RoomCode = code
	reply.Found = ok
	return nil
}

type InfoArgs struct {
	RoomCode string
}

type InfoReply struct {
	RoomCode    string
	PlayerCount int
	Status      string
	UpdatedAt   int64
}

// Info returns the registry entry for a room code.
func (m *Matchmaker) Info(args *InfoArgs, reply *InfoReply) error {
	entry, ok := m.matchService.RoomInfo(args.RoomCode)
	if !ok {
		return fmt.Errorf("room %s not registered", args.RoomCode)
	}
	reply.RoomCode = entry.RoomCode
	reply.PlayerCount = entry.PlayerCount
	reply.Status = entry.Status
	reply.UpdatedAt = entry.UpdatedAt.UnixMilli()
	return nil
}
