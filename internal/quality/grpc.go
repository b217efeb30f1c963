package quality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the gRPC service exposed by RegisterServer.
	ServiceName = "promptboost.quality.v1.QualityGate"
	scoreMethod = "/" + ServiceName + "/Score"

	fieldOriginal    = "original_text"
	fieldGenerated   = "generated_text"
	fieldProbability = "probability"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errMissingProbability       = errors.New("score response missing probability")
)

// GRPCClientConfig holds configuration for the classifier client.
type GRPCClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCClientConfig returns default configuration.
func DefaultGRPCClientConfig(addr string) GRPCClientConfig {
	return GRPCClientConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GRPCGate calls a remote classifier over gRPC.
type GRPCGate struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// DialGRPC connects to the classifier and waits until the channel is ready.
func DialGRPC(cfg GRPCClientConfig, logger *slog.Logger) (*GRPCGate, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to quality classifier at %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("quality classifier at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to quality classifier", "address", cfg.Address)
	return NewGRPCGate(conn, logger), nil
}

// NewGRPCGate wraps an existing connection.
func NewGRPCGate(conn *grpc.ClientConn, logger *slog.Logger) *GRPCGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCGate{conn: conn, addr: conn.Target(), logger: logger}
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (g *GRPCGate) Close() {
	if g.conn != nil {
		if err := g.conn.Close(); err != nil {
			g.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Score implements Gate.
func (g *GRPCGate) Score(ctx context.Context, original, generated string) (float64, error) {
	req, err := structpb.NewStruct(map[string]any{
		fieldOriginal:  original,
		fieldGenerated: generated,
	})
	if err != nil {
		return 0, fmt.Errorf("build score request: %w", err)
	}

	resp := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, scoreMethod, req, resp); err != nil {
		return 0, fmt.Errorf("score via %s: %w", g.addr, err)
	}

	v, ok := resp.GetFields()[fieldProbability]
	if !ok {
		return 0, errMissingProbability
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, fmt.Errorf("%w: probability is not a number", errMissingProbability)
	}
	return v.GetNumberValue(), nil
}

// RegisterServer exposes gate as the QualityGate service on s.
func RegisterServer(s *grpc.Server, gate Gate) {
	s.RegisterService(&serviceDesc, gate)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Gate)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Score", Handler: scoreHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "promptboost/quality/v1/quality.proto",
}

func scoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return score(ctx, srv.(Gate), req.(*structpb.Struct))
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: scoreMethod}
	return interceptor(ctx, in, info, handler)
}

func score(ctx context.Context, gate Gate, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	original := fields[fieldOriginal].GetStringValue()
	generated := fields[fieldGenerated].GetStringValue()
	if original == "" {
		return nil, status.Error(codes.InvalidArgument, "original_text is required")
	}

	p, err := gate.Score(ctx, original, generated)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "score: %v", err)
	}
	return structpb.NewStruct(map[string]any{fieldProbability: p})
}
