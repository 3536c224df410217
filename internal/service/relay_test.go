package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcg-cloud/payments-service/internal/domain"
	"github.com/fcg-cloud/payments-service/internal/repository"
	"github.com/fcg-cloud/payments-service/internal/testutil"
)

type capturingPublisher struct {
	mu        sync.Mutex
	bodies    [][]byte
	keys      []string
	failFirst bool
}

func (p *capturingPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFirst {
		p.failFirst = false
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, routingKey)
	p.bodies = append(p.bodies, payload)
	return nil
}

func newTestRelay(db *sql.DB, pub Publisher) *EventRelay {
	return NewEventRelay(
		repository.NewRelayOutboxRepository(db),
		pub,
		db,
		slog.Default(),
		time.Second,
		10,
	)
}

func seedEvents(t *testing.T, store *repository.EventStore, db *sql.DB, count int) []domain.Event {
	t.Helper()
	ctx := context.Background()

	var out []domain.Event
	for i := 0; i < count; i++ {
		tx, err := db.Begin()
		require.NoError(t, err)
		e, err := store.Append(ctx, tx, uuid.New(), domain.EventTypePaymentRequested, json.RawMessage(`{"amount":"10.00"}`), nil)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		out = append(out, *e)
	}
	return out
}

func TestEventRelay_PublishesPendingInSeqOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	store := repository.NewEventStore(db)

	seeded := seedEvents(t, store, db, 3)

	pub := &capturingPublisher{}
	relay := newTestRelay(db, pub)

	require.NoError(t, relay.relayOnce(ctx))
	require.Len(t, pub.bodies, 3)

	for i, body := range pub.bodies {
		var env relayEnvelope
		require.NoError(t, json.Unmarshal(body, &env))
		assert.Equal(t, seeded[i].EventID.String(), env.EventID)
		assert.Equal(t, seeded[i].Version, env.Version)
		assert.Equal(t, string(seeded[i].EventType), pub.keys[i])
	}

	// nothing pending: a second pass publishes nothing
	require.NoError(t, relay.relayOnce(ctx))
	assert.Len(t, pub.bodies, 3)
}

func TestEventRelay_PublishFailureRedeliversBatchInOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	store := repository.NewEventStore(db)

	seeded := seedEvents(t, store, db, 2)

	pub := &capturingPublisher{failFirst: true}
	relay := newTestRelay(db, pub)

	// first pass fails on the first event: the batch rolls back unpublished
	require.Error(t, relay.relayOnce(ctx))
	assert.Empty(t, pub.bodies)

	// next pass redelivers from the start, in order
	require.NoError(t, relay.relayOnce(ctx))
	require.Len(t, pub.bodies, 2)

	var env relayEnvelope
	require.NoError(t, json.Unmarshal(pub.bodies[0], &env))
	assert.Equal(t, seeded[0].EventID.String(), env.EventID)
	require.NoError(t, json.Unmarshal(pub.bodies[1], &env))
	assert.Equal(t, seeded[1].EventID.String(), env.EventID)
}

// A writer that takes a low seq but commits after a later writer must not be
// skipped: its outbox row is still pending when it becomes visible, and the
// next pass delivers it.
func TestEventRelay_LateCommitIsNotSkipped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	store := repository.NewEventStore(db)

	pub := &capturingPublisher{}
	relay := newTestRelay(db, pub)

	slowTx, err := db.Begin()
	require.NoError(t, err)
	slow, err := store.Append(ctx, slowTx, uuid.New(), domain.EventTypePaymentRequested, json.RawMessage(`{"amount":"10.00"}`), nil)
	require.NoError(t, err)

	fastTx, err := db.Begin()
	require.NoError(t, err)
	fast, err := store.Append(ctx, fastTx, uuid.New(), domain.EventTypePaymentSucceeded, json.RawMessage(`{"amount":"10.00"}`), nil)
	require.NoError(t, err)
	require.NoError(t, fastTx.Commit())
	require.Greater(t, fast.Seq, slow.Seq)

	// only the committed event is visible to this pass
	require.NoError(t, relay.relayOnce(ctx))
	require.Len(t, pub.bodies, 1)

	var env relayEnvelope
	require.NoError(t, json.Unmarshal(pub.bodies[0], &env))
	assert.Equal(t, fast.EventID.String(), env.EventID)

	require.NoError(t, slowTx.Commit())

	require.NoError(t, relay.relayOnce(ctx))
	require.Len(t, pub.bodies, 2)
	require.NoError(t, json.Unmarshal(pub.bodies[1], &env))
	assert.Equal(t, slow.EventID.String(), env.EventID)
}
