package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// PaymentServiceName — полное имя gRPC-сервиса.
const PaymentServiceName = "payrecon.v1.PaymentService"

const (
	grpcMethodReconcile           = "/payrecon.v1.PaymentService/Reconcile"
	grpcMethodCreatePaymentIntent = "/payrecon.v1.PaymentService/CreatePaymentIntent"
	grpcMethodListProviderMethods = "/payrecon.v1.PaymentService/ListProviderMethods"
)

// PaymentServiceServer — серверная сторона payrecon.v1.PaymentService.
// Запросы и ответы передаются как google.protobuf.Struct.
type PaymentServiceServer interface {
	Reconcile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreatePaymentIntent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListProviderMethods(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// PaymentServiceDesc описывает сервис для grpc.Server.
var PaymentServiceDesc = grpc.ServiceDesc{
	ServiceName: PaymentServiceName,
	HandlerType: (*PaymentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Reconcile",
			Handler: unaryHandler(grpcMethodReconcile, func(s PaymentServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return s.Reconcile(ctx, req)
			}),
		},
		{
			MethodName: "CreatePaymentIntent",
			Handler: unaryHandler(grpcMethodCreatePaymentIntent, func(s PaymentServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return s.CreatePaymentIntent(ctx, req)
			}),
		},
		{
			MethodName: "ListProviderMethods",
			Handler: unaryHandler(grpcMethodListProviderMethods, func(s PaymentServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return s.ListProviderMethods(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payrecon/v1/payment_service",
}

// RegisterPaymentServiceServer регистрирует реализацию на сервере.
func RegisterPaymentServiceServer(s grpc.ServiceRegistrar, srv PaymentServiceServer) {
	s.RegisterService(&PaymentServiceDesc, srv)
}

type unaryCall func(PaymentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PaymentServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PaymentServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// PaymentServiceClient — клиент payrecon.v1.PaymentService.
type PaymentServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPaymentServiceClient создаёт клиента поверх соединения.
func NewPaymentServiceClient(cc grpc.ClientConnInterface) *PaymentServiceClient {
	return &PaymentServiceClient{cc: cc}
}

func (c *PaymentServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Reconcile вызывает сверку заказа провайдера.
func (c *PaymentServiceClient) Reconcile(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, grpcMethodReconcile, in, opts)
}

// CreatePaymentIntent создаёт платёжное намерение. Требует metadata idempotency-key.
func (c *PaymentServiceClient) CreatePaymentIntent(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, grpcMethodCreatePaymentIntent, in, opts)
}

// ListProviderMethods возвращает методы оплаты провайдера для заказа.
func (c *PaymentServiceClient) ListProviderMethods(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, grpcMethodListProviderMethods, in, opts)
}
