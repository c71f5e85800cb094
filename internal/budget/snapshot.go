package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/whisper/internal/storage/s3blob"
)

// UsageRow is one (service, day) counter pair in a snapshot.
type UsageRow struct {
	Service   string `msgpack:"service"`
	Day       string `msgpack:"day"`
	Calls     int    `msgpack:"calls"`
	CostCents int64  `msgpack:"cost_cents"`
}

// snapshot is the replicated blob payload.
type snapshot struct {
	TakenAt time.Time  `msgpack:"taken_at"`
	Rows    []UsageRow `msgpack:"rows"`
}

// SnapshotStore is the slice of the budget store the replicator needs.
type SnapshotStore interface {
	Rows(ctx context.Context) ([]UsageRow, error)
	Merge(ctx context.Context, rows []UsageRow) error
}

// Blob is the replicated blob surface (implemented by s3blob.Store).
type Blob interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
	Put(ctx context.Context, key string, data []byte, generation string) (string, error)
}

// Replicator mirrors the budget counters into a blob so a reprovisioned
// host resumes metering instead of starting the month at zero.
type Replicator struct {
	blob Blob
	key  string
	log  zerolog.Logger
	now  func() time.Time
}

// NewReplicator creates a budget snapshot replicator.
func NewReplicator(blob Blob, key string, log zerolog.Logger) *Replicator {
	if key == "" {
		key = "budget/usage.msgpack"
	}
	return &Replicator{
		blob: blob,
		key:  key,
		log:  log.With().Str("service", "budget_replicator").Logger(),
		now:  time.Now,
	}
}

// Push uploads the current counters. The put is conditional on the
// generation read beforehand; one losing race is retried against the
// fresh generation, a second loss is surfaced.
func (r *Replicator) Push(ctx context.Context, store SnapshotStore) error {
	rows, err := store.Rows(ctx)
	if err != nil {
		return fmt.Errorf("read budget rows: %w", err)
	}

	data, err := msgpack.Marshal(snapshot{TakenAt: r.now().UTC(), Rows: rows})
	if err != nil {
		return fmt.Errorf("encode budget snapshot: %w", err)
	}

	generation := ""
	if _, gen, err := r.blob.Get(ctx, r.key); err == nil {
		generation = gen
	} else if !errors.Is(err, s3blob.ErrNotFound) {
		return fmt.Errorf("read budget snapshot generation: %w", err)
	}

	for attempt := 0; ; attempt++ {
		_, err := r.blob.Put(ctx, r.key, data, generation)
		if err == nil {
			r.log.Debug().Int("rows", len(rows)).Msg("budget snapshot pushed")
			return nil
		}
		if !errors.Is(err, s3blob.ErrGenerationConflict) || attempt > 0 {
			return err
		}
		if _, generation, err = r.blob.Get(ctx, r.key); err != nil {
			return fmt.Errorf("reread budget snapshot generation: %w", err)
		}
	}
}

// Pull merges the replicated counters into the local store. Merging
// takes the max of each counter pair, so a pull after partial local
// usage never undercounts. A missing blob is a no-op.
func (r *Replicator) Pull(ctx context.Context, store SnapshotStore) error {
	data, _, err := r.blob.Get(ctx, r.key)
	if errors.Is(err, s3blob.ErrNotFound) {
		r.log.Debug().Msg("no budget snapshot to pull")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch budget snapshot: %w", err)
	}

	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode budget snapshot: %w", err)
	}

	if err := store.Merge(ctx, snap.Rows); err != nil {
		return fmt.Errorf("merge budget snapshot: %w", err)
	}
	r.log.Info().
		Int("rows", len(snap.Rows)).
		Time("taken_at", snap.TakenAt).
		Msg("budget snapshot merged")
	return nil
}
