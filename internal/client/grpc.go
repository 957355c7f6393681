package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names of the spamwatch telemetry service.
const (
	grpcGetSnapshot  = "/spamwatch.v1.Telemetry/GetSnapshot"
	grpcStartSpammer = "/spamwatch.v1.Telemetry/StartSpammer"
	grpcStopSpammer  = "/spamwatch.v1.Telemetry/StopSpammer"
)

// GRPCClient talks to the gRPC surface of a spamwatch server: the standard
// health service and the telemetry service.
type GRPCClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	token  string
}

// NewGRPCClient connects to the given gRPC address. When token is non-empty
// it is sent as a bearer token on every call.
func NewGRPCClient(addr, token string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		token:  token,
	}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Check returns the serving status of service ("" for the server overall).
func (c *GRPCClient) Check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error) {
	return c.health.Check(c.outgoing(ctx), &healthpb.HealthCheckRequest{Service: service})
}

// Snapshot returns the dashboard snapshot as a protobuf Struct.
func (c *GRPCClient) Snapshot(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), grpcGetSnapshot, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) Start(ctx context.Context) error {
	return c.conn.Invoke(c.outgoing(ctx), grpcStartSpammer, &emptypb.Empty{}, new(emptypb.Empty))
}

func (c *GRPCClient) Stop(ctx context.Context) error {
	return c.conn.Invoke(c.outgoing(ctx), grpcStopSpammer, &emptypb.Empty{}, new(emptypb.Empty))
}

func (c *GRPCClient) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}
