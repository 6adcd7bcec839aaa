// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package remote

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"math"
	"os"

	"qlnotebook/cli/internal/engine"
	"qlnotebook/cli/internal/metrics"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// QueryEngineServer is the service implemented by Server.
type QueryEngineServer interface {
	CompileAndRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*QueryEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodName, Handler: compileAndRunHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qlnotebook/engine",
}

func compileAndRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryEngineServer).CompileAndRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QueryEngineServer).CompileAndRun(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server serves a local engine to remote clients.
type Server struct {
	Engine engine.Engine
	// Token, when set, must be presented by every caller.
	Token  string
	Logger *slog.Logger
}

// Register adds the service to s.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

// CompileAndRun evaluates one request with the local engine.
func (s *Server) CompileAndRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	if err := s.authorize(ctx); err != nil {
		metrics.RemoteRequests.WithLabelValues("unauthenticated").Inc()
		return nil, err
	}
	q, err := decodeQuery(req)
	if err != nil {
		metrics.RemoteRequests.WithLabelValues("invalid").Inc()
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.Engine.CompileAndRun(ctx, q, nil)
	if err != nil {
		if ctx.Err() != nil {
			metrics.RemoteRequests.WithLabelValues("cancelled").Inc()
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		metrics.RemoteRequests.WithLabelValues("error").Inc()
		logger.Error("remote evaluation failed", "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}

	r := response{Type: res.Type, Message: res.Message}
	if res.Type == engine.Success {
		r.Results, err = os.ReadFile(res.ResultsPath)
		if err != nil {
			metrics.RemoteRequests.WithLabelValues("error").Inc()
			return nil, status.Error(codes.Internal, "read results: "+err.Error())
		}
		_ = os.Remove(res.ResultsPath)
	}
	metrics.RemoteRequests.WithLabelValues(res.Type.String()).Inc()
	logger.Debug("remote evaluation served", "cells", len(q.Source), "type", res.Type.String())
	return encodeResponse(r)
}

func (s *Server) authorize(ctx context.Context) error {
	if s.Token == "" {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	for _, v := range md.Get("authorization") {
		if subtle.ConstantTimeCompare([]byte(v), []byte("Bearer "+s.Token)) == 1 {
			return nil
		}
	}
	return status.Error(codes.Unauthenticated, "missing or invalid bearer token")
}
