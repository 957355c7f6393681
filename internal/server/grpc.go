package server

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/view"
)

// TelemetryServiceName is the gRPC service carrying dashboard reads and
// spammer commands. Its messages are protobuf well-known types.
const TelemetryServiceName = "spamwatch.v1.Telemetry"

// Full method names of the telemetry service.
const (
	MethodGetSnapshot  = "/" + TelemetryServiceName + "/GetSnapshot"
	MethodStartSpammer = "/" + TelemetryServiceName + "/StartSpammer"
	MethodStopSpammer  = "/" + TelemetryServiceName + "/StopSpammer"
)

// TelemetryServer is the server API of the telemetry service.
type TelemetryServer interface {
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	StartSpammer(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	StopSpammer(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

var telemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: TelemetryServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetSnapshot",
			Handler: unaryHandler(MethodGetSnapshot, func(s TelemetryServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.GetSnapshot(ctx, in)
			}),
		},
		{
			MethodName: "StartSpammer",
			Handler: unaryHandler(MethodStartSpammer, func(s TelemetryServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.StartSpammer(ctx, in)
			}),
		},
		{
			MethodName: "StopSpammer",
			Handler: unaryHandler(MethodStopSpammer, func(s TelemetryServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.StopSpammer(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "spamwatch/v1/telemetry.proto",
}

// unaryHandler adapts a typed method to grpc.MethodDesc's handler shape.
func unaryHandler(
	fullMethod string,
	call func(TelemetryServer, context.Context, *emptypb.Empty) (any, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		ts := srv.(TelemetryServer)
		if interceptor == nil {
			return call(ts, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(ts, ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GetSnapshot returns the dashboard snapshot as a protobuf Struct with the
// same field names as GET /v1/snapshot.
func (s *Server) GetSnapshot(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	data, err := json.Marshal(view.Build(s.src, s.now()))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding snapshot: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding snapshot: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding snapshot: %v", err)
	}
	return out, nil
}

func (s *Server) StartSpammer(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return s.grpcRequest("start", s.ctl.RequestStart)
}

func (s *Server) StopSpammer(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return s.grpcRequest("stop", s.ctl.RequestStop)
}

func (s *Server) grpcRequest(name string, send func() error) (*emptypb.Empty, error) {
	if s.src.ConnStatus() != model.Connected {
		return nil, status.Error(codes.Unavailable, "spammer not connected")
	}
	if err := send(); err != nil {
		return nil, status.Errorf(codes.Internal, "forwarding %s: %v", name, err)
	}
	return &emptypb.Empty{}, nil
}

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the telemetry service, the health service and reflection, and returns the
// server ready to serve.
func NewGRPCServer(s *Server, hs *health.Server, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(s.logger),
			LoggingInterceptor(s.logger),
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&telemetryServiceDesc, s)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}

