package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playora/lounge-reservation/internal/model"
	"github.com/playora/lounge-reservation/internal/repository"
)

type queueFixture struct {
	svc          *QueueService
	resSvc       *ReservationService
	activities   *fakeActivityStore
	units        *fakeUnitStore
	reservations *fakeReservationStore
	sessions     *fakeSessionStore
	queue        *fakeQueueStore
	locker       *fakeLocker
	events       *fakePublisher
	now          time.Time
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	f := &queueFixture{
		activities: newFakeActivityStore(&model.Activity{
			ID: 1, Name: "Karting track", PricingMode: model.PricingPerMinute,
			RateCents: 10, MinDurationMin: 15, IsActive: true,
		}),
		units: newFakeUnitStore(
			&model.Unit{ID: 1, ActivityID: 1, Name: "Lane 1", Status: model.UnitOccupied},
			&model.Unit{ID: 2, ActivityID: 1, Name: "Lane 2", Status: model.UnitOccupied},
		),
		reservations: newFakeReservationStore(),
		sessions:     newFakeSessionStore(),
		queue:        newFakeQueueStore(),
		locker:       newFakeLocker(),
		events:       &fakePublisher{},
		now:          offPeak,
	}
	cfg := testBookingConfig()
	f.svc = NewQueueService(f.activities, f.units, f.reservations, f.sessions,
		f.queue, f.locker, f.events, cfg)
	f.svc.now = func() time.Time { return f.now }
	f.resSvc = NewReservationService(f.activities, f.units, f.reservations, f.sessions,
		f.queue, f.locker, f.events, cfg)
	f.resSvc.now = func() time.Time { return f.now }
	return f
}

// pendingReservation seeds a hold directly; queue tests do not exercise
// the booking lock path for setup.
func (f *queueFixture) pendingReservation(t *testing.T, name string) *model.Reservation {
	t.Helper()
	rec := &model.Reservation{
		ActivityID: 1, UnitID: 1,
		StartsAt: f.now.Add(2 * time.Hour), EndsAt: f.now.Add(3 * time.Hour),
		DurationMin: 60, AmountCents: 600,
		Status: model.ReservationPendingPayment, CustomerName: name,
		HoldExpiresAt: f.now.Add(15 * time.Minute),
	}
	require.NoError(t, f.reservations.Create(context.Background(), rec))
	return rec
}

func TestJoinAssignsDensePositions(t *testing.T) {
	f := newQueueFixture(t)

	var entries []*model.WaitingQueueEntry
	for _, name := range []string{"A", "B", "C"} {
		rec := f.pendingReservation(t, name)
		e, err := f.svc.Join(context.Background(), rec.ID)
		require.NoError(t, err)
		entries = append(entries, e)
	}

	assert.Equal(t, uint32(1), entries[0].Position)
	assert.Equal(t, uint32(2), entries[1].Position)
	assert.Equal(t, uint32(3), entries[2].Position)
}

func TestJoinIsIdempotentPerReservation(t *testing.T) {
	f := newQueueFixture(t)
	rec := f.pendingReservation(t, "A")

	first, err := f.svc.Join(context.Background(), rec.ID)
	require.NoError(t, err)
	second, err := f.svc.Join(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	waiting, err := f.svc.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, waiting, 1)
}

func TestJoinRejectsConfirmedReservation(t *testing.T) {
	f := newQueueFixture(t)
	rec := f.pendingReservation(t, "A")
	require.NoError(t, f.reservations.Confirm(context.Background(), rec.ID, "pay", f.now))

	_, err := f.svc.Join(context.Background(), rec.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidState)
}

func TestLeaveRecompactsPositions(t *testing.T) {
	f := newQueueFixture(t)
	var entries []*model.WaitingQueueEntry
	for _, name := range []string{"A", "B", "C"} {
		rec := f.pendingReservation(t, name)
		e, err := f.svc.Join(context.Background(), rec.ID)
		require.NoError(t, err)
		entries = append(entries, e)
	}

	require.NoError(t, f.svc.Leave(context.Background(), entries[0].ID))

	waiting, err := f.svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, uint32(1), waiting[0].Position)
	assert.Equal(t, entries[1].ReservationID, waiting[0].ReservationID)
	assert.Equal(t, uint32(2), waiting[1].Position)
}

func TestProcessQueuePromotesHeadOntoFreeUnit(t *testing.T) {
	f := newQueueFixture(t)
	recA := f.pendingReservation(t, "A")
	recB := f.pendingReservation(t, "B")
	_, err := f.svc.Join(context.Background(), recA.ID)
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), recB.ID)
	require.NoError(t, err)

	require.NoError(t, f.units.UpdateStatus(context.Background(), 2, model.UnitAvailable))
	f.svc.ProcessQueue(context.Background(), 1)

	// Head entry A got the lane; B moved up to position 1.
	gotA, err := f.reservations.GetByID(context.Background(), recA.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPaymentConfirmed, gotA.Status)
	assert.Equal(t, uint64(2), gotA.UnitID)
	assert.Equal(t, f.now, gotA.StartsAt)

	sess, err := f.sessions.GetLiveByReservation(context.Background(), recA.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, sess.Status)
	assert.Equal(t, model.PaymentUnsettled, sess.PaymentStatus)

	unit, err := f.units.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, model.UnitOccupied, unit.Status)

	waiting, err := f.svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, recB.ID, waiting[0].ReservationID)
	assert.Equal(t, uint32(1), waiting[0].Position)
	assert.Zero(t, f.locker.heldCount())
}

func TestProcessQueuePromotesUntilUnitsRunOut(t *testing.T) {
	f := newQueueFixture(t)
	for _, name := range []string{"A", "B", "C"} {
		rec := f.pendingReservation(t, name)
		_, err := f.svc.Join(context.Background(), rec.ID)
		require.NoError(t, err)
	}

	require.NoError(t, f.units.UpdateStatus(context.Background(), 1, model.UnitAvailable))
	require.NoError(t, f.units.UpdateStatus(context.Background(), 2, model.UnitAvailable))
	f.svc.ProcessQueue(context.Background(), 1)

	waiting, err := f.svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, uint32(1), waiting[0].Position)
}

func TestProcessQueueSkipsStaleEntries(t *testing.T) {
	f := newQueueFixture(t)
	recA := f.pendingReservation(t, "A")
	recB := f.pendingReservation(t, "B")
	_, err := f.svc.Join(context.Background(), recA.ID)
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), recB.ID)
	require.NoError(t, err)

	// A's hold expired while waiting.
	require.NoError(t, f.reservations.UpdateStatus(context.Background(), recA.ID, model.ReservationExpired))
	require.NoError(t, f.units.UpdateStatus(context.Background(), 2, model.UnitAvailable))

	f.svc.ProcessQueue(context.Background(), 1)

	// A was dropped, B promoted.
	_, err = f.sessions.GetLiveByReservation(context.Background(), recB.ID)
	assert.NoError(t, err)
	waiting, err := f.svc.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, waiting)
}

func TestProcessQueueNoOpWithoutFreeUnits(t *testing.T) {
	f := newQueueFixture(t)
	rec := f.pendingReservation(t, "A")
	_, err := f.svc.Join(context.Background(), rec.ID)
	require.NoError(t, err)

	f.svc.ProcessQueue(context.Background(), 1)

	got, err := f.reservations.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPendingPayment, got.Status)
}

func TestProcessQueueNoOpOnEmptyQueue(t *testing.T) {
	f := newQueueFixture(t)
	require.NoError(t, f.units.UpdateStatus(context.Background(), 1, model.UnitAvailable))

	f.svc.ProcessQueue(context.Background(), 1)
	f.svc.ProcessQueue(context.Background(), 1)

	assert.Zero(t, f.locker.acquires)
}

// Two replicas sweep the queue at once, their clocks one second apart.
// The promotion lock key carries no timestamp, so the promoters still
// serialize on the unit and the head entry lands on it exactly once.
func TestProcessQueueConcurrentReplicasPromoteOnce(t *testing.T) {
	f := newQueueFixture(t)
	rec := f.pendingReservation(t, "A")
	_, err := f.svc.Join(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NoError(t, f.units.UpdateStatus(context.Background(), 2, model.UnitAvailable))

	other := NewQueueService(f.activities, f.units, f.reservations, f.sessions,
		f.queue, f.locker, f.events, testBookingConfig())
	other.now = func() time.Time { return f.now.Add(time.Second) }

	start := make(chan struct{})
	done := make(chan struct{}, 2)
	for _, svc := range []*QueueService{f.svc, other} {
		go func(svc *QueueService) {
			<-start
			svc.ProcessQueue(context.Background(), 1)
			done <- struct{}{}
		}(svc)
	}
	close(start)
	<-done
	<-done

	onUnit := 0
	f.sessions.mu.Lock()
	for _, sess := range f.sessions.sessions {
		if sess.UnitID == 2 && sess.NonTerminal() {
			onUnit++
		}
	}
	f.sessions.mu.Unlock()
	assert.Equal(t, 1, onUnit, "one live session per unit")

	got, err := f.reservations.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPaymentConfirmed, got.Status)
	assert.Zero(t, f.locker.heldCount())
}

// The promotion lock must not embed the clock: a held unit lock blocks
// a promoter regardless of when it reads the time.
func TestPromoteLockKeyIsTimeIndependent(t *testing.T) {
	f := newQueueFixture(t)
	rec := f.pendingReservation(t, "A")
	_, err := f.svc.Join(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NoError(t, f.units.UpdateStatus(context.Background(), 2, model.UnitAvailable))

	f.locker.held[promoteLockKey(2)] = "other-replica"
	f.svc.ProcessQueue(context.Background(), 1)
	got, err := f.reservations.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPendingPayment, got.Status)

	// A later pass with a moved clock still contends on the same key.
	f.now = f.now.Add(time.Minute)
	f.svc.ProcessQueue(context.Background(), 1)
	got, err = f.reservations.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPendingPayment, got.Status)

	delete(f.locker.held, promoteLockKey(2))
	f.svc.ProcessQueue(context.Background(), 1)
	got, err = f.reservations.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPaymentConfirmed, got.Status)
}

func TestProcessQueueStopsOnLockContention(t *testing.T) {
	f := newQueueFixture(t)
	rec := f.pendingReservation(t, "A")
	_, err := f.svc.Join(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NoError(t, f.units.UpdateStatus(context.Background(), 2, model.UnitAvailable))

	f.locker.failNext = true
	f.svc.ProcessQueue(context.Background(), 1)

	// Nothing promoted; the next pass retries.
	got, err := f.reservations.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPendingPayment, got.Status)

	f.svc.ProcessQueue(context.Background(), 1)
	got, err = f.reservations.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPaymentConfirmed, got.Status)
}
