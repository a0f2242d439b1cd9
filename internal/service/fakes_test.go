package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/repository"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/pagination"
)

// fakeStore is an in-memory stand-in for Postgres. fakeTx serialises units of
// work and restores the previous state when one fails.
type fakeStore struct {
	mu            sync.Mutex
	sessions      map[string]models.ClassSession
	bookings      map[string]models.Booking
	trainers      map[string]models.Trainer
	trainees      map[string]bool
	locks         []string
	listCalls     int
	failIncrement bool
	seq           int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: map[string]models.ClassSession{},
		bookings: map[string]models.Booking{},
		trainers: map[string]models.Trainer{},
		trainees: map[string]bool{},
	}
}

type fakeSnapshot struct {
	sessions map[string]models.ClassSession
	bookings map[string]models.Booking
}

func (f *fakeStore) snapshot() fakeSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := fakeSnapshot{sessions: map[string]models.ClassSession{}, bookings: map[string]models.Booking{}}
	for k, v := range f.sessions {
		snap.sessions[k] = v
	}
	for k, v := range f.bookings {
		snap.bookings[k] = v
	}
	return snap
}

func (f *fakeStore) restore(snap fakeSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = snap.sessions
	f.bookings = snap.bookings
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s0000-0000-4000-8000-%012d", prefix, f.seq)
}

func (f *fakeStore) addTrainer(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trainers[id] = models.Trainer{ID: id, Email: id + "@example.com", FullName: name}
}

func (f *fakeStore) addTrainee(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trainees[email] = true
}

func (f *fakeStore) seed(session models.ClassSession) models.ClassSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID == "" {
		session.ID = f.nextID("5e55")
	}
	session.CreatedAt = time.Now().Add(time.Duration(f.seq) * time.Millisecond)
	f.sessions[session.ID] = session
	return session
}

func (f *fakeStore) seedBooking(sessionID, email string) models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	booking := models.Booking{ID: f.nextID("b00c"), SessionID: sessionID, TraineeEmail: email}
	f.bookings[booking.ID] = booking
	session := f.sessions[sessionID]
	session.SeatCount++
	f.sessions[sessionID] = session
	return booking
}

func (f *fakeStore) session(id string) models.ClassSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeStore) bookingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookings)
}

type fakeTx struct {
	mu    sync.Mutex
	store *fakeStore
}

func (t *fakeTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.store.snapshot()
	if err := fn(nil); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

func (t *fakeTx) Lock(ctx context.Context, exec sqlx.ExtContext, scope string, keys ...string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, key := range sorted {
		t.store.locks = append(t.store.locks, scope+":"+key)
	}
	return nil
}

type fakeSessions struct{ *fakeStore }

func (f fakeSessions) List(ctx context.Context, filter models.SessionFilter, params pagination.Params) ([]models.ClassSession, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var matched []models.ClassSession
	for _, session := range f.sessions {
		if filter.Date != "" && session.Date != filter.Date {
			continue
		}
		if filter.TrainerID != "" && (session.TrainerID == nil || *session.TrainerID != filter.TrainerID) {
			continue
		}
		matched = append(matched, session)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if params.Offset >= total {
		return []models.ClassSession{}, total, nil
	}
	end := min(params.Offset+params.Limit, total)
	return matched[params.Offset:end], total, nil
}

func (f fakeSessions) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &session, nil
}

func (f fakeSessions) CountByDate(ctx context.Context, exec sqlx.ExtContext, date string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, session := range f.sessions {
		if session.Date == date {
			count++
		}
	}
	return count, nil
}

func (f fakeSessions) ListByTrainerOnDate(ctx context.Context, exec sqlx.ExtContext, trainerID, date, excludeID string) ([]models.ClassSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClassSession
	for _, session := range f.sessions {
		if session.ID != excludeID && session.Date == date && session.TrainerID != nil && *session.TrainerID == trainerID {
			out = append(out, session)
		}
	}
	return out, nil
}

func (f fakeSessions) ListByTrainer(ctx context.Context, trainerID string) ([]models.ClassSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClassSession
	for _, session := range f.sessions {
		if session.TrainerID != nil && *session.TrainerID == trainerID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (f fakeSessions) ListBookedByTrainee(ctx context.Context, exec sqlx.ExtContext, traineeEmail, date, excludeID string) ([]models.ClassSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClassSession
	for _, booking := range f.bookings {
		if booking.TraineeEmail != traineeEmail || booking.SessionID == excludeID {
			continue
		}
		if session, ok := f.sessions[booking.SessionID]; ok && session.Date == date {
			out = append(out, session)
		}
	}
	return out, nil
}

func (f fakeSessions) Create(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session.ID = f.nextID("5e55")
	session.CreatedAt = time.Now().Add(time.Duration(f.seq) * time.Millisecond)
	session.UpdatedAt = session.CreatedAt
	f.sessions[session.ID] = *session
	return nil
}

func (f fakeSessions) Update(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[session.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Date = session.Date
	stored.StartTime = session.StartTime
	stored.EndTime = session.EndTime
	stored.TrainerID = session.TrainerID
	f.sessions[session.ID] = stored
	return nil
}

func (f fakeSessions) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f fakeSessions) IncrementSeats(ctx context.Context, exec sqlx.ExtContext, id string, maxSeats int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := f.sessions[id]
	if f.failIncrement || session.SeatCount >= maxSeats {
		return false, nil
	}
	session.SeatCount++
	f.sessions[id] = session
	return true, nil
}

func (f fakeSessions) DecrementSeats(ctx context.Context, exec sqlx.ExtContext, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := f.sessions[id]
	session.SeatCount = max(session.SeatCount-1, 0)
	f.sessions[id] = session
	return nil
}

type fakeBookings struct{ *fakeStore }

func (f fakeBookings) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	booking, ok := f.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &booking, nil
}

func (f fakeBookings) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.bookings {
		if existing.SessionID == booking.SessionID && existing.TraineeEmail == booking.TraineeEmail {
			return repository.ErrDuplicateBooking
		}
	}
	booking.ID = f.nextID("b00c")
	booking.CreatedAt = time.Now()
	f.bookings[booking.ID] = *booking
	return nil
}

func (f fakeBookings) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bookings, id)
	return nil
}

func (f fakeBookings) ListByTrainee(ctx context.Context, traineeEmail string) ([]models.BookingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.BookingDetail
	for _, booking := range f.bookings {
		if booking.TraineeEmail == traineeEmail {
			out = append(out, models.BookingDetail{Booking: booking, Session: f.sessions[booking.SessionID]})
		}
	}
	return out, nil
}

func (f fakeBookings) CountBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, booking := range f.bookings {
		if booking.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

func (f fakeBookings) ListTraineesBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var emails []string
	for _, booking := range f.bookings {
		if booking.SessionID == sessionID {
			emails = append(emails, booking.TraineeEmail)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

type fakePeople struct{ *fakeStore }

func (f fakePeople) FindByID(ctx context.Context, id string) (*models.Trainer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	trainer, ok := f.trainers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &trainer, nil
}

func (f fakePeople) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trainees[email], nil
}

// memoryCache is a CacheRepository backed by a map of JSON-free values.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]interface{}
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]interface{}{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	page, ok := dest.(*sessionPage)
	if !ok {
		return fmt.Errorf("unexpected cache destination %T", dest)
	}
	*page = value.(sessionPage)
	return nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := len(m.entries)
	m.entries = map[string]interface{}{}
	return removed, nil
}

func (m *memoryCache) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
