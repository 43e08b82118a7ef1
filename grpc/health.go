package grpc

import (
	"net"

	log "github.com/sirupsen/logrus"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the relay endpoint.
const ServiceName = "relay"

type HealthServer struct {
	server *grpc.Server
	health *health.Server
	lis    net.Listener
}

// StartHealth serves the standard gRPC health protocol on port. An empty port
// disables it and returns nil; all methods are safe on a nil *HealthServer.
func StartHealth(port string) (*HealthServer, error) {
	if port == "" {
		log.Info("No grpc port configured, health service disabled")
		return nil, nil
	}

	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, err
	}

	return serveHealth(lis), nil
}

func serveHealth(lis net.Listener) *HealthServer {
	hs := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		lis:    lis,
	}
	healthpb.RegisterHealthServer(hs.server, hs.health)
	hs.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		log.Info("gRPC health service listening on ", lis.Addr())
		if err := hs.server.Serve(lis); err != nil {
			log.WithError(err).Error("gRPC health service stopped")
		}
	}()

	return hs
}

func (hs *HealthServer) Addr() string {
	if hs == nil {
		return ""
	}
	return hs.lis.Addr().String()
}

// Draining flips every service to NOT_SERVING so load balancers stop routing
// before the HTTP listener closes.
func (hs *HealthServer) Draining() {
	if hs == nil {
		return
	}
	hs.health.Shutdown()
}

func (hs *HealthServer) Stop() {
	if hs == nil {
		return
	}
	hs.health.Shutdown()
	hs.server.GracefulStop()
}
