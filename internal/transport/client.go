package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client wraps the gRPC connection to an agentd process.
type Client struct {
	conn   *grpc.ClientConn
	client AgentServiceClient
}

// #endregion client-struct

// #region constructor
// NewClient connects to an AgentService at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		client: NewAgentServiceClient(conn),
	}, nil
}

// NewClientWithService creates a Client with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewClientWithService(svc AgentServiceClient) *Client {
	return &Client{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region calls
// Reset starts a new episode. A nil seed keeps the server's configured one.
func (c *Client) Reset(ctx context.Context, seed *uint64) (Status, error) {
	fields := map[string]interface{}{}
	if seed != nil {
		fields["seed"] = float64(*seed)
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return Status{}, fmt.Errorf("reset request: %w", err)
	}
	resp, err := c.client.Reset(ctx, in)
	if err != nil {
		return Status{}, fmt.Errorf("reset rpc: %w", err)
	}
	return statusFrom(resp), nil
}

// Step advances the remote episode by up to n steps.
func (c *Client) Step(ctx context.Context, n int) (StepReply, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"steps": n})
	if err != nil {
		return StepReply{}, fmt.Errorf("step request: %w", err)
	}
	resp, err := c.client.Step(ctx, in)
	if err != nil {
		return StepReply{}, fmt.Errorf("step rpc: %w", err)
	}
	return stepReplyFrom(resp), nil
}

// Inspect fetches the remote status.
func (c *Client) Inspect(ctx context.Context) (Status, error) {
	resp, err := c.client.Inspect(ctx, &structpb.Struct{})
	if err != nil {
		return Status{}, fmt.Errorf("inspect rpc: %w", err)
	}
	return statusFrom(resp), nil
}

// #endregion calls
