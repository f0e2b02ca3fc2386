package saverpc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/banshee-data/vionav/internal/monitoring"
)

// Saver is the part of the app the RPC needs. It returns the folder the map
// was written to.
type Saver interface {
	SaveMap() (string, error)
}

// Service implements the MapSaver gRPC service.
type Service struct {
	saver Saver
}

// NewService wraps a Saver.
func NewService(saver Saver) *Service {
	return &Service{saver: saver}
}

// SaveMap triggers a map save.
func (s *Service) SaveMap(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	folder, err := s.saver.SaveMap()
	if err != nil {
		monitoring.Warnf("saverpc: save failed: %v", err)
		return nil, status.Errorf(codes.FailedPrecondition, "save failed: %v", err)
	}
	monitoring.Logf("saverpc: map saved to %s", folder)
	return &emptypb.Empty{}, nil
}

// Server hosts the gRPC service on a listener.
type Server struct {
	grpc *grpc.Server
	addr string
}

// Listen binds the address and starts serving in the background.
func Listen(addr string, saver Saver) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	gs := grpc.NewServer()
	RegisterMapSaverServer(gs, NewService(saver))

	go func() {
		if err := gs.Serve(lis); err != nil {
			monitoring.Warnf("saverpc: serve ended: %v", err)
		}
	}()
	monitoring.Logf("saverpc: listening on %s", lis.Addr())
	return &Server{grpc: gs, addr: lis.Addr().String()}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
