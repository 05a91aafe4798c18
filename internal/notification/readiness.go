package notification

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// WaitForServing polls the task server's gRPC health service until it
// reports SERVING or ctx ends.
func WaitForServing(ctx context.Context, conn grpc.ClientConnInterface, interval time.Duration, logger logrus.FieldLogger) error {
	client := healthpb.NewHealthClient(conn)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{})
		cancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return nil
		}
		logger.WithError(err).Info("task server not ready yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
