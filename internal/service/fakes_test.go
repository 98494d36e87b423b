package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/playora/lounge-reservation/internal/model"
	"github.com/playora/lounge-reservation/internal/repository"
)

// In-memory store fakes.  They mirror the repository semantics closely
// enough for the engine tests: sentinel errors, overlap queries and the
// dense queue positions all behave like the MySQL layer.

type fakeActivityStore struct {
	mu         sync.Mutex
	activities map[uint64]*model.Activity
}

func newFakeActivityStore(list ...*model.Activity) *fakeActivityStore {
	s := &fakeActivityStore{activities: make(map[uint64]*model.Activity)}
	for _, a := range list {
		s.activities[a.ID] = a
	}
	return s
}

func (s *fakeActivityStore) GetByID(_ context.Context, id uint64) (*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, repository.ErrActivityNotFound
	}
	cp := *a
	return &cp, nil
}

type fakeUnitStore struct {
	mu    sync.Mutex
	units map[uint64]*model.Unit
}

func newFakeUnitStore(list ...*model.Unit) *fakeUnitStore {
	s := &fakeUnitStore{units: make(map[uint64]*model.Unit)}
	for _, u := range list {
		s.units[u.ID] = u
	}
	return s
}

func (s *fakeUnitStore) GetByID(_ context.Context, id uint64) (*model.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return nil, repository.ErrUnitNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUnitStore) FirstAvailable(_ context.Context, activityID uint64) (*model.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.Unit
	for _, u := range s.units {
		if u.ActivityID != activityID || u.Status != model.UnitAvailable {
			continue
		}
		if best == nil || u.ID < best.ID {
			best = u
		}
	}
	if best == nil {
		return nil, repository.ErrUnitNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *fakeUnitStore) UpdateStatus(_ context.Context, id uint64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return repository.ErrUnitNotFound
	}
	u.Status = status
	return nil
}

type fakeReservationStore struct {
	mu           sync.Mutex
	nextID       uint64
	reservations map[uint64]*model.Reservation

	// sessions backs ListConfirmedWithoutSession, which is a join in
	// the SQL layer.  Fixtures that exercise the orphan repair set it.
	sessions *fakeSessionStore
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{nextID: 1, reservations: make(map[uint64]*model.Reservation)}
}

func (s *fakeReservationStore) Create(_ context.Context, rec *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	cp := *rec
	s.reservations[rec.ID] = &cp
	return nil
}

func (s *fakeReservationStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeReservationStore) CountOverlapping(_ context.Context, unitID uint64, start, end time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.reservations {
		if r.UnitID != unitID {
			continue
		}
		blocking := r.InFlight() || r.Status == model.ReservationPaymentConfirmed
		if blocking && r.StartsAt.Before(end) && r.EndsAt.After(start) {
			n++
		}
	}
	return n, nil
}

func (s *fakeReservationStore) UpdateStatus(_ context.Context, id uint64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return repository.ErrReservationNotFound
	}
	r.Status = status
	return nil
}

func (s *fakeReservationStore) Confirm(_ context.Context, id uint64, paymentRef string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return repository.ErrReservationNotFound
	}
	if !r.InFlight() {
		return fmt.Errorf("%w: reservation is not confirmable", repository.ErrInvalidState)
	}
	r.Status = model.ReservationPaymentConfirmed
	r.ConfirmedAt = &at
	if paymentRef != "" {
		r.PaymentRef = &paymentRef
	}
	return nil
}

func (s *fakeReservationStore) ListConfirmedWithoutSession(_ context.Context) ([]*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Reservation
	for _, r := range s.reservations {
		if r.Status != model.ReservationPaymentConfirmed {
			continue
		}
		if s.sessions != nil && s.sessions.hasForReservation(r.ID) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeReservationStore) Reassign(_ context.Context, id, unitID uint64, start, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return repository.ErrReservationNotFound
	}
	r.UnitID = unitID
	r.StartsAt = start
	r.EndsAt = end
	return nil
}

func (s *fakeReservationStore) ListHoldExpired(_ context.Context, now time.Time) ([]*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Reservation
	for _, r := range s.reservations {
		if r.HoldExpired(now) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeSessionStore struct {
	mu         sync.Mutex
	nextID     uint64
	sessions   map[uint64]*model.Session
	pauses     []*model.SessionPause
	failCreate bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{nextID: 1, sessions: make(map[uint64]*model.Session)}
}

func (s *fakeSessionStore) Create(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		s.failCreate = false
		return fmt.Errorf("insert session: connection reset")
	}
	sess.ID = s.nextID
	s.nextID++
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *fakeSessionStore) GetByID(_ context.Context, id uint64) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeSessionStore) Update(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return repository.ErrSessionNotFound
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// hasForReservation reports whether any session row, terminal or not,
// references the reservation.  Mirrors the NOT EXISTS join backing the
// orphan-repair query.
func (s *fakeSessionStore) hasForReservation(reservationID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ReservationID != nil && *sess.ReservationID == reservationID {
			return true
		}
	}
	return false
}

func (s *fakeSessionStore) GetLiveByReservation(_ context.Context, reservationID uint64) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ReservationID != nil && *sess.ReservationID == reservationID && sess.NonTerminal() {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (s *fakeSessionStore) CountOverlapping(_ context.Context, unitID uint64, start, end time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.UnitID == unitID && sess.NonTerminal() &&
			sess.StartsAt.Before(end) && sess.EndsAt.After(start) {
			n++
		}
	}
	return n, nil
}

func (s *fakeSessionStore) ListStartDue(_ context.Context, now time.Time) ([]*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Session
	for _, sess := range s.sessions {
		if sess.Status == model.SessionScheduled && !now.Before(sess.StartsAt) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) ListEndDue(_ context.Context, now time.Time) ([]*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Session
	for _, sess := range s.sessions {
		if sess.NonTerminal() && !now.Before(sess.EndsAt) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) ListNonTerminal(_ context.Context) ([]*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Session
	for _, sess := range s.sessions {
		if sess.NonTerminal() {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) ListEndingSoon(_ context.Context, now time.Time, horizon time.Duration) ([]*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Session
	for _, sess := range s.sessions {
		if sess.Status == model.SessionActive && sess.EndingSoonWarnedAt == nil &&
			sess.EndsAt.After(now) && !sess.EndsAt.After(now.Add(horizon)) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) AppendPause(_ context.Context, p *model.SessionPause) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.ID = uint64(len(s.pauses) + 1)
	s.pauses = append(s.pauses, &cp)
	return nil
}

func (s *fakeSessionStore) ListPauses(_ context.Context, sessionID uint64) ([]*model.SessionPause, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SessionPause
	for _, p := range s.pauses {
		if p.SessionID == sessionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeQueueStore struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]*model.WaitingQueueEntry
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{nextID: 1, entries: make(map[uint64]*model.WaitingQueueEntry)}
}

func (s *fakeQueueStore) Append(_ context.Context, e *model.WaitingQueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := uint32(0)
	for _, x := range s.entries {
		if x.ActivityID == e.ActivityID && x.Status == model.QueueWaiting && x.Position > max {
			max = x.Position
		}
	}
	e.ID = s.nextID
	s.nextID++
	e.Position = max + 1
	e.Status = model.QueueWaiting
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *fakeQueueStore) GetByID(_ context.Context, id uint64) (*model.WaitingQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, repository.ErrQueueEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeQueueStore) FindWaitingByReservation(_ context.Context, reservationID uint64) (*model.WaitingQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ReservationID == reservationID && e.Status == model.QueueWaiting {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repository.ErrQueueEntryNotFound
}

func (s *fakeQueueStore) ListWaiting(_ context.Context, activityID uint64) ([]*model.WaitingQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.WaitingQueueEntry
	for _, e := range s.entries {
		if e.ActivityID == activityID && e.Status == model.QueueWaiting {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *fakeQueueStore) MarkAssigned(_ context.Context, id, sessionID uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return repository.ErrQueueEntryNotFound
	}
	e.Status = model.QueueAssigned
	e.SessionID = &sessionID
	e.AssignedAt = &at
	return nil
}

func (s *fakeQueueStore) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return repository.ErrQueueEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *fakeQueueStore) Compact(_ context.Context, activityID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var waiting []*model.WaitingQueueEntry
	for _, e := range s.entries {
		if e.ActivityID == activityID && e.Status == model.QueueWaiting {
			waiting = append(waiting, e)
		}
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].Position < waiting[j].Position })
	for i, e := range waiting {
		e.Position = uint32(i + 1)
	}
	return nil
}

// fakeLocker is an in-process lock table.  held maps key to owner.
type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	acquires int
	releases int
	failNext bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) Acquire(_ context.Context, key, owner string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.failNext {
		l.failNext = false
		return false, nil
	}
	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = owner
	return true, nil
}

func (l *fakeLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	delete(l.held, key)
	return nil
}

func (l *fakeLocker) heldCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// fakePublisher records published events for assertions.
type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *fakePublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}
