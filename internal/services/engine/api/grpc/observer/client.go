package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	platformgrpc "github.com/louisbranch/rulecore/internal/platform/grpc"
	"github.com/louisbranch/rulecore/internal/platform/timeouts"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/replication"
)

// Client calls the observer service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to the engine at addr once the observer service reports
// SERVING. The caller closes the returned connection.
func Dial(ctx context.Context, addr string, logf func(string, ...any), opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	return dial(ctx, addr, timeouts.GRPCDial, logf, opts...)
}

func dial(ctx context.Context, addr string, timeout time.Duration, logf func(string, ...any), opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	conn, err := platformgrpc.Connect(ctx, platformgrpc.Target{Addr: addr, Service: ServiceName}, timeout, logf, opts...)
	if err != nil {
		return nil, nil, err
	}
	return NewClient(conn), conn, nil
}

// Snapshot returns the marshaled bootstrap packet for observer.
func (c *Client) Snapshot(ctx context.Context, gameID string, observer replication.Observer, opts ...grpc.CallOption) ([]byte, error) {
	in, err := structpb.NewStruct(map[string]any{"game_id": gameID, "observer": string(observer)})
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, SnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Verify checks the stored history chain of gameID.
func (c *Client) Verify(ctx context.Context, gameID string, opts ...grpc.CallOption) (VerifyResult, error) {
	in, err := structpb.NewStruct(map[string]any{"game_id": gameID})
	if err != nil {
		return VerifyResult{}, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, VerifyMethod, in, out, opts...); err != nil {
		return VerifyResult{}, err
	}
	var res VerifyResult
	if err := json.Unmarshal(out.GetValue(), &res); err != nil {
		return VerifyResult{}, fmt.Errorf("decode verify result: %w", err)
	}
	return res, nil
}

// Watch opens a packet stream for observer.
func (c *Client) Watch(ctx context.Context, gameID string, observer replication.Observer, opts ...grpc.CallOption) (*Stream, error) {
	return c.open(ctx, 0, WatchMethod, map[string]any{"game_id": gameID, "observer": string(observer)}, opts)
}

// History opens a stream of JSON history entries with seq > afterSeq.
func (c *Client) History(ctx context.Context, gameID string, afterSeq uint64, pageSize int, opts ...grpc.CallOption) (*Stream, error) {
	return c.open(ctx, 1, HistoryMethod, map[string]any{"game_id": gameID, "after_seq": afterSeq, "page_size": pageSize}, opts)
}

func (c *Client) open(ctx context.Context, index int, method string, fields map[string]any, opts []grpc.CallOption) (*Stream, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[index], method, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &Stream{stream: stream}, nil
}

// Stream is a server stream of byte payloads.
type Stream struct {
	stream grpc.ClientStream
}

// Recv returns the next payload, or io.EOF once the server ends the stream.
func (s *Stream) Recv() ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := s.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}
