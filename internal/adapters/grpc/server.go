package grpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/shopfront/auth-service/internal/application"
	"github.com/shopfront/auth-service/internal/domain"
)

const serviceName = "shopfront.auth.v1.AuthInternalService"

type AuthInternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPublicKeys(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// TokenAuthority is the slice of the application service sibling services rely on.
type TokenAuthority interface {
	DescribeToken(ctx context.Context, token string) (application.TokenValidation, error)
	PublicJWKs() ([]map[string]any, error)
}

type AuthInternalServer struct {
	authority TokenAuthority
}

func NewAuthInternalServer(authority TokenAuthority) *AuthInternalServer {
	return &AuthInternalServer{authority: authority}
}

// Register exposes the internal API without generated stubs; requests and
// responses travel as well-known protobuf types.
func Register(server grpc.ServiceRegistrar, svc AuthInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*AuthInternalService)(nil),
		Methods: []grpc.MethodDesc{
			unaryMethod("ValidateToken", svc.ValidateToken),
			unaryMethod("GetPublicKeys", svc.GetPublicKeys),
		},
		Metadata: "shopfront/auth/v1/auth_internal.proto",
	}, svc)
}

func unaryMethod[Req proto.Message](name string, call func(context.Context, Req) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			var zero Req
			req := zero.ProtoReflect().New().Interface().(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, req)
			}
			next := func(ctx context.Context, in any) (any, error) {
				typed, ok := in.(Req)
				if !ok {
					return nil, status.Error(codes.InvalidArgument, "invalid request type")
				}
				return call(ctx, typed)
			}
			return interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, next)
		},
	}
}

// ValidateToken answers Unauthenticated for any rejected token and Internal only
// when the session store itself failed.
func (s *AuthInternalServer) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := req.GetFields()["token"].GetStringValue()
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}

	validation, err := s.authority.DescribeToken(ctx, token)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrSessionRevoked),
		errors.Is(err, domain.ErrSessionExpired):
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	default:
		return nil, status.Error(codes.Internal, "token validation unavailable")
	}

	return structResponse(map[string]any{
		"valid":      true,
		"account_id": validation.AccountID,
		"email":      validation.Email,
		"role":       validation.Role,
		"session_id": validation.SessionID,
		"expires_at": validation.ExpiresAt.Unix(),
	})
}

func (s *AuthInternalServer) GetPublicKeys(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	keys, err := s.authority.PublicJWKs()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get keys: %v", err)
	}
	// structpb only converts []any.
	list := make([]any, len(keys))
	for i, k := range keys {
		list[i] = k
	}
	return structResponse(map[string]any{"keys": list})
}

func structResponse(fields map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

// LoggingInterceptor records one line per unary call with its status code.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "grpc", "layer", "adapter")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		level, outcome := slog.LevelInfo, "success"
		switch code {
		case codes.OK:
		case codes.Internal, codes.Unknown, codes.Unavailable:
			level, outcome = slog.LevelError, "failure"
		default:
			level, outcome = slog.LevelWarn, "failure"
		}
		logger.Log(ctx, level, "grpc call completed",
			"operation", info.FullMethod,
			"outcome", outcome,
			"grpc_code", code.String(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return resp, err
	}
}
