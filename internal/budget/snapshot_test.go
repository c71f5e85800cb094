package budget

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/whisper/internal/storage/s3blob"
)

// fakeBlob is an in-memory Blob with generation semantics.
type fakeBlob struct {
	data       []byte
	generation int
	conflicts  int // number of puts to reject before accepting
}

func (b *fakeBlob) Get(_ context.Context, _ string) ([]byte, string, error) {
	if b.data == nil {
		return nil, "", s3blob.ErrNotFound
	}
	return b.data, fmt.Sprintf("gen-%d", b.generation), nil
}

func (b *fakeBlob) Put(_ context.Context, _ string, data []byte, generation string) (string, error) {
	if b.conflicts > 0 {
		b.conflicts--
		b.generation++
		return "", s3blob.ErrGenerationConflict
	}
	if b.data == nil {
		if generation != "" {
			return "", s3blob.ErrGenerationConflict
		}
	} else if generation != fmt.Sprintf("gen-%d", b.generation) {
		return "", s3blob.ErrGenerationConflict
	}
	b.data = data
	b.generation++
	return fmt.Sprintf("gen-%d", b.generation), nil
}

func TestReplicator_PushPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)
	dst := testStore(t)
	blob := &fakeBlob{}
	rep := NewReplicator(blob, "", zerolog.Nop())

	require.NoError(t, src.RecordCall(ctx, "perplexity", "2026-08-14", 150))
	require.NoError(t, src.RecordCall(ctx, "perplexity", "2026-08-13", 75))
	require.NoError(t, src.RecordCall(ctx, "tradier", "2026-08-14", 0))

	require.NoError(t, rep.Push(ctx, src))
	require.NoError(t, rep.Pull(ctx, dst))

	calls, cents, err := dst.Usage(ctx, "perplexity", "2026-08-14")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(150), cents)

	month, err := dst.MonthCost(ctx, "perplexity", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, int64(225), month)
}

func TestReplicator_PullKeepsHigherLocalCounters(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)
	dst := testStore(t)
	blob := &fakeBlob{}
	rep := NewReplicator(blob, "", zerolog.Nop())

	require.NoError(t, src.RecordCall(ctx, "perplexity", "2026-08-14", 100))
	require.NoError(t, rep.Push(ctx, src))

	// Local store has already metered more than the snapshot.
	for i := 0; i < 3; i++ {
		require.NoError(t, dst.RecordCall(ctx, "perplexity", "2026-08-14", 100))
	}
	require.NoError(t, rep.Pull(ctx, dst))

	calls, cents, err := dst.Usage(ctx, "perplexity", "2026-08-14")
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "merge must not shrink local counters")
	assert.Equal(t, int64(300), cents)
}

func TestReplicator_PushRetriesOneConflict(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)
	require.NoError(t, src.RecordCall(ctx, "perplexity", "2026-08-14", 50))

	blob := &fakeBlob{data: []byte("old"), conflicts: 1}
	rep := NewReplicator(blob, "", zerolog.Nop())

	require.NoError(t, rep.Push(ctx, src))
}

func TestReplicator_PullMissingSnapshotIsNoop(t *testing.T) {
	ctx := context.Background()
	dst := testStore(t)
	rep := NewReplicator(&fakeBlob{}, "", zerolog.Nop())

	require.NoError(t, rep.Pull(ctx, dst))
	calls, _, err := dst.Usage(ctx, "perplexity", "2026-08-14")
	require.NoError(t, err)
	assert.Zero(t, calls)
}
