// Package grpc holds client plumbing shared by engine gRPC callers.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Target is an engine endpoint together with the health service that must
// report SERVING before the connection is handed out.
type Target struct {
	Addr string
	// Service is the health service name. Empty checks the server as a whole.
	Service string
}

func (t Target) String() string {
	if t.Service == "" {
		return t.Addr
	}
	return t.Addr + "/" + t.Service
}

// Stage tells which step of Connect failed.
type Stage string

const (
	StageOpen   Stage = "open"
	StageHealth Stage = "health"
)

// ConnectError reports a failed Connect.
type ConnectError struct {
	Target Target
	Stage  Stage
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Target, e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ClientOptions returns the dial options engine clients share. Calls carry
// trace context through the otelgrpc stats handler.
func ClientOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Opener creates a client connection. gogrpc.NewClient satisfies it.
type Opener func(addr string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error)

// Connect opens a connection to target and waits up to timeout for its
// health service to serve. The connection is closed when Connect fails.
func Connect(ctx context.Context, target Target, timeout time.Duration, logf func(string, ...any), opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	return connect(ctx, gogrpc.NewClient, target, timeout, logf, opts)
}

func connect(ctx context.Context, open Opener, target Target, timeout time.Duration, logf func(string, ...any), opts []gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	if len(opts) == 0 {
		opts = ClientOptions()
	}
	conn, err := open(target.Addr, opts...)
	if err != nil {
		return nil, &ConnectError{Target: target, Stage: StageOpen, Err: err}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := AwaitServing(ctx, conn, target.Service, logf); err != nil {
		_ = conn.Close()
		return nil, &ConnectError{Target: target, Stage: StageHealth, Err: err}
	}
	return conn, nil
}

// AwaitServing blocks until service reports SERVING on conn or ctx ends. It
// follows the health Watch stream and falls back to polling Check when the
// server does not implement Watch.
func AwaitServing(ctx context.Context, conn gogrpc.ClientConnInterface, service string, logf func(string, ...any)) error {
	if conn == nil {
		return errors.New("no connection")
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	client := grpc_health_v1.NewHealthClient(conn)
	backoff := 100 * time.Millisecond
	for {
		err := watchServing(ctx, client, service, logf)
		if err == nil {
			return nil
		}
		if status.Code(err) == codes.Unimplemented {
			return pollServing(ctx, client, service, logf)
		}
		logf("health watch %q: %v", service, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("await %q serving: %w", service, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, time.Second)
	}
}

func watchServing(ctx context.Context, client grpc_health_v1.HealthClient, service string, logf func(string, ...any)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := client.Watch(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return err
	}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return errors.New("health stream closed")
		}
		if err != nil {
			return err
		}
		if resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		logf("health %q: %s", service, resp.GetStatus())
	}
}

func pollServing(ctx context.Context, client grpc_health_v1.HealthClient, service string, logf func(string, ...any)) error {
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		logf("health check %q: status %s err %v", service, resp.GetStatus(), err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("await %q serving: %w", service, ctx.Err())
		case <-tick.C:
		}
	}
}
