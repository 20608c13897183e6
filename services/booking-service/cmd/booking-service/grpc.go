package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/shopbook/libs/grpcx"
)

// startGrpcServer serves grpc.health.v1 until ctx is cancelled.
func startGrpcServer(ctx context.Context, logger *slog.Logger, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer(logger, []string{"booking"})

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		srv.Drain()
	}()

	return nil
}
