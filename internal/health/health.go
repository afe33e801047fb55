// Package health exposes the planner's readiness over the standard gRPC
// health checking protocol, for supervisors and container probes.
package health

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/banshee-data/highway-planner/internal/monitoring"
)

// Service is the health service name the planner reports under. The empty
// service name reports the same status.
const Service = "planner"

// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc     *grpc.Server
	health   *grpchealth.Server
	listener net.Listener
}

// Start listens on addr and serves health checks in the background. The
// initial status is NOT_SERVING.
func Start(addr string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s := &Server{
		grpc:     grpc.NewServer(),
		health:   grpchealth.NewServer(),
		listener: lis,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)

	go func() {
		if err := s.grpc.Serve(lis); err != nil {
			monitoring.Opsf("health server stopped: %v", err)
		}
	}()
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// SetServing flips the reported status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}

// Stop reports NOT_SERVING to watchers and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Check asks the health server at addr for the planner's status.
func Check(ctx context.Context, addr string) (*healthpb.HealthCheckResponse, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		return nil, fmt.Errorf("health check %s: %w", addr, err)
	}
	return resp, nil
}

// FormatResponse renders resp as JSON for command-line output.
func FormatResponse(resp *healthpb.HealthCheckResponse) (string, error) {
	data, err := protojson.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
