package quality

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startBufServer(t *testing.T, gate Gate) *GRPCGate {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterServer(srv, gate)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	g := NewGRPCGate(conn, nil)
	t.Cleanup(g.Close)
	return g
}

func TestGRPCGate_RoundTrip(t *testing.T) {
	t.Parallel()
	var gotOriginal, gotGenerated string
	g := startBufServer(t, GateFunc(func(_ context.Context, original, generated string) (float64, error) {
		gotOriginal, gotGenerated = original, generated
		return 0.6, nil
	}))

	p, err := g.Score(context.Background(), "write a poem", "Write a sonnet about autumn")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p, 1e-9)
	assert.Equal(t, "write a poem", gotOriginal)
	assert.Equal(t, "Write a sonnet about autumn", gotGenerated)
}

func TestGRPCGate_ServerErrors(t *testing.T) {
	t.Parallel()
	g := startBufServer(t, GateFunc(func(context.Context, string, string) (float64, error) {
		return 0, errors.New("model not loaded")
	}))

	_, err := g.Score(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))

	_, err = g.Score(context.Background(), "", "b")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))
}

func TestStatic(t *testing.T) {
	t.Parallel()
	p, err := AlwaysAccept.Score(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
}

func TestHeuristic(t *testing.T) {
	t.Parallel()
	h := Heuristic{}
	ctx := context.Background()
	original := "write a poem about autumn"

	good, err := h.Score(ctx, original,
		"Write a rhyming poem about autumn in four stanzas. Describe falling leaves, cool air and "+
			"harvest colours. Use vivid imagery and think step-by-step about the structure before writing.")
	require.NoError(t, err)

	unchanged, err := h.Score(ctx, original, "Write a poem about autumn")
	require.NoError(t, err)

	answered, err := h.Score(ctx, original, "Sure! Here is a poem: Leaves fall slowly, gold and red, the trees go quiet overhead.")
	require.NoError(t, err)

	empty, err := h.Score(ctx, original, "   ")
	require.NoError(t, err)

	assert.Greater(t, good, 0.40)
	assert.Less(t, unchanged, 0.40)
	assert.Less(t, answered, 0.40)
	assert.Equal(t, 0.0, empty)
	for _, p := range []float64{good, unchanged, answered, empty} {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}
