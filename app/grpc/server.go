package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/mapper"
	"github.com/vibast-solutions/ms-go-checkout/app/rotation"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const rotationServiceName = "checkout.RotationService"

type rotationStatusSource interface {
	RotationStatus(ctx context.Context) (*rotation.Status, error)
	RotationWindow() time.Duration
}

// RotationServiceServer exposes the read-only rotation queries to internal callers.
type RotationServiceServer interface {
	Health(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

type Server struct {
	checkout rotationStatusSource
}

func NewServer(checkoutService *service.CheckoutService) *Server {
	return &Server{checkout: checkoutService}
}

func (s *Server) Health(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"status": "ok"})
}

func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	l := loggerWithContext(ctx)

	item, err := s.checkout.RotationStatus(ctx)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAccount) {
			return nil, status.Error(codes.NotFound, "no active payment account")
		}
		l.WithError(err).Error("Rotation status failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	resp := mapper.RotationStatusToResponse(item, s.checkout.RotationWindow())
	out, err := structpb.NewStruct(map[string]interface{}{
		"account":        resp.Account,
		"accountOrder":   resp.AccountOrder,
		"slot":           resp.Slot,
		"totalSlots":     resp.TotalSlots,
		"nextRotation":   resp.NextRotation,
		"nextRotationMs": resp.NextRotationMs,
		"windowSeconds":  resp.WindowSeconds,
	})
	if err != nil {
		l.WithError(err).Error("Rotation status encoding failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

func RegisterRotationServiceServer(registrar grpc.ServiceRegistrar, srv RotationServiceServer) {
	registrar.RegisterService(&rotationServiceDesc, srv)
}

var rotationServiceDesc = grpc.ServiceDesc{
	ServiceName: rotationServiceName,
	HandlerType: (*RotationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: healthHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkout/rotation.proto",
}

func healthHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RotationServiceServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + rotationServiceName + "/Health"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RotationServiceServer).Health(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RotationServiceServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + rotationServiceName + "/GetStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RotationServiceServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
