package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
// The AgentService carries structpb.Struct messages both ways, so no
// generated stubs are needed. Field names are documented on the Server.
const serviceName = "ree.AgentService"

const (
	methodReset   = "/" + serviceName + "/Reset"
	methodStep    = "/" + serviceName + "/Step"
	methodInspect = "/" + serviceName + "/Inspect"
)

// AgentServiceServer is the server side of ree.AgentService.
type AgentServiceServer interface {
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Inspect(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// AgentServiceClient is the client side of ree.AgentService.
type AgentServiceClient interface {
	Reset(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Step(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Inspect(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// ServiceDesc describes ree.AgentService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AgentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reset", Handler: unaryHandler(methodReset, AgentServiceServer.Reset)},
		{MethodName: "Step", Handler: unaryHandler(methodStep, AgentServiceServer.Step)},
		{MethodName: "Inspect", Handler: unaryHandler(methodInspect, AgentServiceServer.Inspect)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ree/agent_service",
}

// RegisterAgentServiceServer attaches srv to s.
func RegisterAgentServiceServer(s grpc.ServiceRegistrar, srv AgentServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type serverMethod func(AgentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call serverMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AgentServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AgentServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service-desc

// #region service-client
type agentServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAgentServiceClient returns a client bound to cc.
func NewAgentServiceClient(cc grpc.ClientConnInterface) AgentServiceClient {
	return &agentServiceClient{cc: cc}
}

func (c *agentServiceClient) Reset(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodReset, in, opts)
}

func (c *agentServiceClient) Step(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodStep, in, opts)
}

func (c *agentServiceClient) Inspect(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodInspect, in, opts)
}

func (c *agentServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion service-client
