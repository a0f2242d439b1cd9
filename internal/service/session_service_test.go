package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/pagination"
)

const (
	testDate    = "2025-06-01"
	trainerID   = "6f1c2a52-6f7e-4d1b-9b7a-0c1d2e3f4a5b"
	otherCoach  = "0a9b8c7d-6e5f-4a3b-9c2d-1e0f9a8b7c6d"
	unknownUUID = "11111111-2222-4333-8444-555555555555"
)

func newTestSessionService(t *testing.T) (*SessionService, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	store.addTrainer(trainerID, "Alex Coach")
	store.addTrainer(otherCoach, "Sam Coach")
	svc := NewSessionService(&fakeTx{store: store}, fakeSessions{store}, fakeBookings{store}, fakePeople{store}, nil, nil,
		SessionServiceConfig{Policy: scheduling.DefaultPolicy()}, nil, nil)
	return svc, store
}

func seedSession(store *fakeStore, date, start string, trainer string) models.ClassSession {
	begin := scheduling.MustParseClock(start)
	session := models.ClassSession{Date: date, StartTime: begin, EndTime: begin + 120}
	if trainer != "" {
		id := trainer
		session.TrainerID = &id
	}
	return store.seed(session)
}

func assertAppError(t *testing.T, err error, target *appErrors.Error) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, target)
	return appErrors.FromError(err)
}

func TestSessionServiceCreate(t *testing.T) {
	svc, store := newTestSessionService(t)

	session, err := svc.Create(context.Background(), models.CreateSessionRequest{Date: testDate, StartTime: "11:00 AM"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "11:00 AM", session.StartTime.String())
	assert.Equal(t, "01:00 PM", session.EndTime.String())
	assert.Nil(t, session.TrainerID)
	assert.Zero(t, session.SeatCount)
	assert.Contains(t, store.locks, "session-date:"+testDate)
}

func TestSessionServiceCreateTimeHandling(t *testing.T) {
	svc, _ := newTestSessionService(t)
	ctx := context.Background()

	late, err := svc.Create(ctx, models.CreateSessionRequest{Date: testDate, StartTime: "10:00 pm"})
	require.NoError(t, err)
	assert.Equal(t, scheduling.Clock(scheduling.MinutesPerDay), late.EndTime)

	_, err = svc.Create(ctx, models.CreateSessionRequest{Date: testDate, StartTime: "25:00"})
	assertAppError(t, err, appErrors.ErrInvalidTimeFormat)

	_, err = svc.Create(ctx, models.CreateSessionRequest{Date: testDate, StartTime: "10:30 PM"})
	appErr := assertAppError(t, err, appErrors.ErrValidation)
	assert.Contains(t, appErr.Message, "midnight")

	_, err = svc.Create(ctx, models.CreateSessionRequest{Date: "06/01/2025", StartTime: "10:00 AM"})
	assertAppError(t, err, appErrors.ErrValidation)
}

func TestSessionServiceCreateDailyCap(t *testing.T) {
	svc, store := newTestSessionService(t)
	for _, start := range []string{"06:00 AM", "08:00 AM", "10:00 AM", "12:00 PM", "02:00 PM"} {
		seedSession(store, testDate, start, "")
	}

	_, err := svc.Create(context.Background(), models.CreateSessionRequest{Date: testDate, StartTime: "04:00 PM"})
	assertAppError(t, err, appErrors.ErrCapacityExceeded)

	_, err = svc.Create(context.Background(), models.CreateSessionRequest{Date: "2025-06-02", StartTime: "04:00 PM"})
	assert.NoError(t, err)
}

func TestSessionServiceAssignTrainer(t *testing.T) {
	svc, store := newTestSessionService(t)
	ctx := context.Background()
	busy := seedSession(store, testDate, "10:00 AM", trainerID)
	touching := seedSession(store, testDate, "12:00 PM", "")
	overlapping := seedSession(store, testDate, "11:00 AM", "")

	assigned, err := svc.AssignTrainer(ctx, touching.ID, models.AssignTrainerRequest{TrainerID: trainerID})
	require.NoError(t, err)
	require.NotNil(t, assigned.TrainerID)
	assert.Equal(t, trainerID, *assigned.TrainerID)
	assert.Contains(t, store.locks, "trainer:"+trainerID)

	_, err = svc.AssignTrainer(ctx, overlapping.ID, models.AssignTrainerRequest{TrainerID: trainerID})
	appErr := assertAppError(t, err, appErrors.ErrScheduleConflict)
	conflict, ok := appErr.Details.(models.ScheduleConflict)
	require.True(t, ok)
	assert.Contains(t, []string{busy.ID, touching.ID}, conflict.SessionID)
	assert.Equal(t, models.ConflictTrainer, conflict.Subject)
	assert.Nil(t, store.session(overlapping.ID).TrainerID)

	_, err = svc.AssignTrainer(ctx, overlapping.ID, models.AssignTrainerRequest{TrainerID: unknownUUID})
	assertAppError(t, err, appErrors.ErrNotFound)

	_, err = svc.AssignTrainer(ctx, "missing", models.AssignTrainerRequest{TrainerID: otherCoach})
	assertAppError(t, err, appErrors.ErrNotFound)

	_, err = svc.AssignTrainer(ctx, overlapping.ID, models.AssignTrainerRequest{TrainerID: "not-a-uuid"})
	assertAppError(t, err, appErrors.ErrValidation)
}

func TestSessionServiceReassignSameTrainerIsNotSelfConflict(t *testing.T) {
	svc, store := newTestSessionService(t)
	session := seedSession(store, testDate, "10:00 AM", trainerID)

	_, err := svc.AssignTrainer(context.Background(), session.ID, models.AssignTrainerRequest{TrainerID: trainerID})
	assert.NoError(t, err)
}

func TestSessionServiceUpdate(t *testing.T) {
	svc, store := newTestSessionService(t)
	ctx := context.Background()
	seedSession(store, testDate, "08:00 AM", trainerID)
	session := seedSession(store, testDate, "02:00 PM", trainerID)

	start := "01:00 PM"
	updated, err := svc.Update(ctx, session.ID, models.UpdateSessionRequest{StartTime: &start})
	require.NoError(t, err)
	assert.Equal(t, "03:00 PM", updated.EndTime.String())
	assert.Equal(t, testDate, updated.Date)

	clash := "09:00 AM"
	_, err = svc.Update(ctx, session.ID, models.UpdateSessionRequest{StartTime: &clash})
	assertAppError(t, err, appErrors.ErrScheduleConflict)
	assert.Equal(t, "01:00 PM", store.session(session.ID).StartTime.String())

	coach := otherCoach
	updated, err = svc.Update(ctx, session.ID, models.UpdateSessionRequest{StartTime: &clash, TrainerID: &coach})
	require.NoError(t, err)
	assert.Equal(t, otherCoach, *updated.TrainerID)

	_, err = svc.Update(ctx, "missing", models.UpdateSessionRequest{StartTime: &start})
	assertAppError(t, err, appErrors.ErrNotFound)

	bad := "13:00"
	_, err = svc.Update(ctx, session.ID, models.UpdateSessionRequest{StartTime: &bad})
	assertAppError(t, err, appErrors.ErrInvalidTimeFormat)
}

func TestSessionServiceUpdateDateRespectsDailyCap(t *testing.T) {
	svc, store := newTestSessionService(t)
	full := "2025-06-02"
	for _, start := range []string{"06:00 AM", "08:00 AM", "10:00 AM", "12:00 PM", "02:00 PM"} {
		seedSession(store, full, start, "")
	}
	session := seedSession(store, testDate, "06:00 PM", "")

	_, err := svc.Update(context.Background(), session.ID, models.UpdateSessionRequest{Date: &full})
	assertAppError(t, err, appErrors.ErrCapacityExceeded)
	assert.Equal(t, testDate, store.session(session.ID).Date)
}

func TestSessionServiceUpdateRechecksBookedTrainees(t *testing.T) {
	svc, store := newTestSessionService(t)
	morning := seedSession(store, testDate, "09:00 AM", "")
	evening := seedSession(store, testDate, "05:00 PM", "")
	store.seedBooking(morning.ID, "kim@example.com")
	store.seedBooking(evening.ID, "kim@example.com")

	moved := "10:00 AM"
	_, err := svc.Update(context.Background(), evening.ID, models.UpdateSessionRequest{StartTime: &moved})
	appErr := assertAppError(t, err, appErrors.ErrScheduleConflict)
	conflict := appErr.Details.(models.ScheduleConflict)
	assert.Equal(t, models.ConflictTrainee, conflict.Subject)
	assert.Equal(t, morning.ID, conflict.SessionID)
	assert.Contains(t, store.locks, "trainee:kim@example.com")

	later := "11:00 AM"
	_, err = svc.Update(context.Background(), evening.ID, models.UpdateSessionRequest{StartTime: &later})
	assert.NoError(t, err)
}

func TestSessionServiceDelete(t *testing.T) {
	svc, store := newTestSessionService(t)
	ctx := context.Background()
	booked := seedSession(store, testDate, "09:00 AM", "")
	empty := seedSession(store, testDate, "01:00 PM", "")
	store.seedBooking(booked.ID, "kim@example.com")

	_, err := svc.Delete(ctx, booked.ID)
	assertAppError(t, err, appErrors.ErrSessionHasBookings)

	deleted, err := svc.Delete(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, empty.ID, deleted.ID)

	_, err = svc.Delete(ctx, empty.ID)
	assertAppError(t, err, appErrors.ErrNotFound)
}

func TestSessionServiceListCachesUntilWrite(t *testing.T) {
	store := newFakeStore()
	cache := newMemoryCache()
	svc := NewSessionService(&fakeTx{store: store}, fakeSessions{store}, fakeBookings{store}, fakePeople{store},
		NewCacheService(cache, nil, 0, nil, true), nil, SessionServiceConfig{}, nil, nil)
	ctx := context.Background()
	seedSession(store, testDate, "09:00 AM", "")
	seedSession(store, testDate, "01:00 PM", "")

	items, page, err := svc.List(ctx, models.SessionFilter{Date: testDate}, pagination.Options{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, &models.Pagination{Page: 1, Limit: 1, Total: 2}, page)

	_, _, err = svc.List(ctx, models.SessionFilter{Date: testDate}, pagination.Options{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)
	assert.Equal(t, 1, cache.size())

	_, err = svc.Create(ctx, models.CreateSessionRequest{Date: testDate, StartTime: "05:00 PM"})
	require.NoError(t, err)
	assert.Zero(t, cache.size())

	_, page, err = svc.List(ctx, models.SessionFilter{Date: testDate}, pagination.Options{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, store.listCalls)
}

func TestSessionServiceListEmptyPage(t *testing.T) {
	svc, _ := newTestSessionService(t)

	items, page, err := svc.List(context.Background(), models.SessionFilter{}, pagination.Options{Page: 3})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, pagination.DefaultLimit, page.Limit)
}

func TestSessionServiceListRejectsMalformedFilters(t *testing.T) {
	svc, store := newTestSessionService(t)
	ctx := context.Background()
	seedSession(store, testDate, "09:00 AM", trainerID)

	_, _, err := svc.List(ctx, models.SessionFilter{Date: "06/01/2025"}, pagination.Options{})
	assertAppError(t, err, appErrors.ErrValidation)

	items, page, err := svc.List(ctx, models.SessionFilter{TrainerID: "abc"}, pagination.Options{})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Zero(t, page.Total)
	assert.Zero(t, store.listCalls)

	items, _, err = svc.List(ctx, models.SessionFilter{TrainerID: trainerID}, pagination.Options{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSessionServiceTrainerScheduleAndExport(t *testing.T) {
	svc, store := newTestSessionService(t)
	ctx := context.Background()
	seedSession(store, "2025-06-02", "09:00 AM", trainerID)
	first := seedSession(store, testDate, "01:00 PM", trainerID)
	seedSession(store, testDate, "09:00 AM", otherCoach)
	store.seedBooking(first.ID, "kim@example.com")

	sessions, err := svc.ListForTrainer(ctx, trainerID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)

	_, err = svc.ListForTrainer(ctx, unknownUUID)
	assertAppError(t, err, appErrors.ErrNotFound)

	file, err := svc.ExportTrainerSchedule(ctx, trainerID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))
	lines := strings.Split(strings.TrimSpace(string(file.Payload)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Date,Start,End,Booked,Available", lines[0])
	assert.Equal(t, "2025-06-01,01:00 PM,03:00 PM,1,9", lines[1])

	pdf, err := svc.ExportTrainerSchedule(ctx, trainerID, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)

	_, err = svc.ExportTrainerSchedule(ctx, trainerID, "xlsx")
	assertAppError(t, err, appErrors.ErrValidation)
}
