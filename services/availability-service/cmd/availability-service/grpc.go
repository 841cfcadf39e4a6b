package main

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/config"
	"github.com/md-rashed-zaman/slotkeeper/libs/grpcx"
	"github.com/md-rashed-zaman/slotkeeper/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// startGrpcServer exposes grpc.health.v1 for the overall server ("") and for
// the named service. Both track the same dependency checks as /readyz.
func startGrpcServer(ctx context.Context, logger *slog.Logger, service string, checks []runtime.ReadyCheck) error {
	port, err := config.Port("GRPC_PORT", "9097")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcx.UnaryServerRequestIDInterceptor(),
			grpcx.UnaryServerLogInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	every := config.Duration("GRPC_HEALTH_INTERVAL", 10*time.Second)
	go watchHealth(ctx, logger, hs, service, checks, every)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	return nil
}

func watchHealth(ctx context.Context, logger *slog.Logger, hs *health.Server, service string, checks []runtime.ReadyCheck, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		status := healthpb.HealthCheckResponse_SERVING
		if failures := runtime.RunChecks(ctx, checks); len(failures) > 0 {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if last != status {
				logger.Warn("grpc health degraded", "failures", strings.Join(failures, "; "))
			}
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(service, status)
		last = status

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
