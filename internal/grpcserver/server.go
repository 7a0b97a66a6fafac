// Package grpcserver exposes the external gig gateway over gRPC.
//
// It delegates all logic to externalgig.Service and handles only the gRPC
// transport concerns: metadata authentication, error mapping, and
// conversion between google.protobuf.Struct messages and domain types.
// The service is described by hand, so no generated code is needed; any
// client can call it with Struct payloads.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"connecta/ingest-service/internal/externalgig"
	"connecta/ingest-service/internal/ingest"
	"connecta/ingest-service/internal/model"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "connecta.ingest.v1.ExternalGigs"

// ExternalGigsServer is the service contract.
type ExternalGigsServer interface {
	Upsert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExternalGigsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Upsert", Handler: unary("Upsert", ExternalGigsServer.Upsert)},
		{MethodName: "Delete", Handler: unary("Delete", ExternalGigsServer.Delete)},
		{MethodName: "List", Handler: unary("List", ExternalGigsServer.List)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "connecta/ingest/v1/external_gigs.proto",
}

func unary(method string, call func(ExternalGigsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ExternalGigsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ExternalGigsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ─── Server ──────────────────────────────────────────────────────────────────

// Server implements ExternalGigsServer.
type Server struct {
	svc *externalgig.Service
}

// NewServer constructs a Server backed by svc.
func NewServer(svc *externalgig.Service) *Server {
	return &Server{svc: svc}
}

// New returns a grpc.Server with the gateway service, the standard health
// service and API-key authentication on every gateway call.
func New(svc *externalgig.Service, auth *externalgig.Authenticator, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(AuthInterceptor(auth)))
	s := grpc.NewServer(opts...)

	s.RegisterService(&serviceDesc, NewServer(svc))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	return s
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// Upsert takes the same fields as the HTTP body and returns
// {outcome, gig}.
func (s *Server) Upsert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req externalgig.UpsertRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.svc.Upsert(ctx, &req)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(map[string]any{"outcome": res.Outcome, "gig": res.Gig})
}

// Delete takes {source, externalId} and returns {deleted}.
func (s *Server) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Source     string `json:"source"`
		ExternalID string `json:"externalId"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	deleted, err := s.svc.Delete(ctx, req.Source, req.ExternalID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(map[string]any{"deleted": deleted})
}

// List takes {source?, limit?} and returns {gigs, count}.
func (s *Server) List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Source string `json:"source"`
		Limit  int    `json:"limit"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must be positive")
	}

	gigs, err := s.svc.List(ctx, model.ListFilter{Source: req.Source, Limit: req.Limit})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(map[string]any{"gigs": gigs, "count": len(gigs)})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// AuthInterceptor requires a valid x-api-key (or bearer authorization)
// metadata value on every call to the gateway service.
func AuthInterceptor(auth *externalgig.Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		if err := auth.Check(credentialFromCtx(ctx)); err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ctx, req)
	}
}

func credentialFromCtx(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("x-api-key"); len(vals) > 0 && vals[0] != "" {
		return vals[0]
	}
	if vals := md.Get("authorization"); len(vals) > 0 {
		v := vals[0]
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:])
		}
	}
	return ""
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	var ve *ingest.ValidationError
	if errors.As(err, &ve) {
		return status.Error(codes.InvalidArgument, strings.Join(ve.Problems, "; "))
	}
	if errors.Is(err, externalgig.ErrUnauthorized) {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	slog.Error("grpc external gig call failed", "err", err)
	return status.Error(codes.Internal, "internal server error")
}

func fromStruct(in *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}
