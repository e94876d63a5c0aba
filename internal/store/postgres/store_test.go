package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/suite"

	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
)

type StoreTestSuite struct {
	suite.Suite
	PgxMock pgxmock.PgxPoolIface
	store   *Store
}

func (s *StoreTestSuite) SetupTest() {
	pool, err := pgxmock.NewPool()
	if err != nil {
		s.T().Fatalf("failed to create pgxmock pool: %v", err)
	}
	s.PgxMock = pool
	s.store = NewStore(pool, Options{})
}

func (s *StoreTestSuite) TearDownTest() {
	s.PgxMock.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) TestTick() {
	now := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		setupMock func()
		want      int
		expectErr bool
	}{
		{
			name: "begin error",
			setupMock: func() {
				s.PgxMock.ExpectBegin().WillReturnError(fmt.Errorf("begin error"))
			},
			expectErr: true,
		},
		{
			name: "select due error",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery("FOR UPDATE OF r SKIP LOCKED").
					WithArgs(now, 100).
					WillReturnError(fmt.Errorf("select error"))
				s.PgxMock.ExpectRollback()
			},
			expectErr: true,
		},
		{
			name: "nothing due",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery("FOR UPDATE OF r SKIP LOCKED").
					WithArgs(now, 100).
					WillReturnRows(pgxmock.NewRows([]string{"id", "ticket_id", "venue_id"}))
				s.PgxMock.ExpectCommit()
			},
			want: 0,
		},
		{
			name: "promotes due rows and skips lost races",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				rows := pgxmock.NewRows([]string{"id", "ticket_id", "venue_id"}).
					AddRow(int64(1), int64(10), int64(1)).
					AddRow(int64(2), int64(11), int64(1))
				s.PgxMock.ExpectQuery("FOR UPDATE OF r SKIP LOCKED").
					WithArgs(now, 100).
					WillReturnRows(rows)
				s.PgxMock.ExpectExec("UPDATE requests SET status = 'REQUESTED'").
					WithArgs(int64(1), now).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				s.PgxMock.ExpectExec("pg_advisory_xact_lock").
					WithArgs(eventLogLockKey).
					WillReturnResult(pgxmock.NewResult("SELECT", 1))
				s.PgxMock.ExpectQuery("INSERT INTO status_events").
					WithArgs(int64(10), int64(1), int64(1), "SCHEDULED", "REQUESTED", "Auto-triggered from schedule", now).
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(50)))
				s.PgxMock.ExpectExec("UPDATE requests SET status = 'REQUESTED'").
					WithArgs(int64(2), now).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				s.PgxMock.ExpectCommit()
			},
			want: 1,
		},
		{
			name: "commit error",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery("FOR UPDATE OF r SKIP LOCKED").
					WithArgs(now, 100).
					WillReturnRows(pgxmock.NewRows([]string{"id", "ticket_id", "venue_id"}))
				s.PgxMock.ExpectCommit().WillReturnError(fmt.Errorf("commit error"))
				s.PgxMock.ExpectRollback()
			},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			tc.setupMock()
			got, err := s.store.Tick(context.Background(), now, 0)
			if tc.expectErr {
				s.Error(err)
			} else {
				s.NoError(err)
				s.Equal(tc.want, got)
			}
			s.NoError(s.PgxMock.ExpectationsWereMet())
		})
	}
}

func (s *StoreTestSuite) TestTransitionRejected() {
	testCases := []struct {
		name      string
		setupMock func()
		target    models.Status
		wantErr   error
	}{
		{
			name: "request missing",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery("FOR UPDATE OF r").
					WithArgs(int64(9)).
					WillReturnError(pgx.ErrNoRows)
				s.PgxMock.ExpectRollback()
			},
			target:  models.StatusRetrieving,
			wantErr: store.ErrRequestNotFound,
		},
		{
			name: "terminal request",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery("FOR UPDATE OF r").
					WithArgs(int64(9)).
					WillReturnRows(pgxmock.NewRows([]string{"status", "ticket_id", "venue_id"}).AddRow("PICKED_UP", int64(3), int64(1)))
				s.PgxMock.ExpectRollback()
			},
			target:  models.StatusReady,
			wantErr: store.ErrInvalidTransition,
		},
		{
			name: "lost the race",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery("FOR UPDATE OF r").
					WithArgs(int64(9)).
					WillReturnRows(pgxmock.NewRows([]string{"status", "ticket_id", "venue_id"}).AddRow("REQUESTED", int64(3), int64(1)))
				s.PgxMock.ExpectExec("UPDATE requests SET status").
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				s.PgxMock.ExpectRollback()
			},
			target:  models.StatusRetrieving,
			wantErr: store.ErrInvalidTransition,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			tc.setupMock()
			_, err := s.store.Transition(context.Background(), store.TransitionInput{RequestID: 9, Target: tc.target})
			s.ErrorIs(err, tc.wantErr)
			s.NoError(s.PgxMock.ExpectationsWereMet())
		})
	}
}

func (s *StoreTestSuite) TestTransitionLocksEventLogBeforeInsert() {
	s.PgxMock.ExpectBegin()
	s.PgxMock.ExpectQuery("FOR UPDATE OF r").
		WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"status", "ticket_id", "venue_id"}).AddRow("REQUESTED", int64(3), int64(1)))
	s.PgxMock.ExpectExec("UPDATE requests SET status").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	s.PgxMock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(eventLogLockKey).
		WillReturnError(fmt.Errorf("lock timeout"))
	s.PgxMock.ExpectRollback()

	_, err := s.store.Transition(context.Background(), store.TransitionInput{RequestID: 9, Target: models.StatusRetrieving})
	s.ErrorContains(err, "lock event log")
	s.NoError(s.PgxMock.ExpectationsWereMet())
}

func (s *StoreTestSuite) TestGetSession() {
	s.PgxMock.ExpectQuery("FROM sessions").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err := s.store.GetSession(context.Background(), "missing")
	s.ErrorIs(err, store.ErrSessionNotFound)

	expires := time.Now().Add(time.Hour)
	s.PgxMock.ExpectQuery("FROM sessions").
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "user_id", "venue_id", "role", "expires_at"}).
			AddRow("sess-1", "valet-7", int64(1), "VALET", expires))
	session, err := s.store.GetSession(context.Background(), "sess-1")
	s.NoError(err)
	s.Equal("valet-7", session.UserID)
	s.Equal(models.RoleValet, session.Role)
	s.NoError(s.PgxMock.ExpectationsWereMet())
}

func (s *StoreTestSuite) TestQueueByExit() {
	s.PgxMock.ExpectQuery("GROUP BY r.exit_id").
		WithArgs(int64(1), []string{"SCHEDULED", "REQUESTED", "ASSIGNED", "RETRIEVING", "READY"}).
		WillReturnRows(pgxmock.NewRows([]string{"exit_id", "count", "scheduled"}).
			AddRow(int64(1), int64(4), int64(1)).
			AddRow(int64(2), int64(1), int64(0)))

	queue, err := s.store.QueueByExit(context.Background(), 1)
	s.NoError(err)
	s.Equal([]store.ExitQueue{{ExitID: 1, Count: 4, Scheduled: 1}, {ExitID: 2, Count: 1}}, queue)
	s.NoError(s.PgxMock.ExpectationsWereMet())
}

func (s *StoreTestSuite) TestRecordTipRejectsNonPositive() {
	_, err := s.store.RecordTip(context.Background(), store.RecordTipInput{RequestID: 1, AmountCents: -5})
	s.ErrorIs(err, store.ErrInvalidTip)
	s.NoError(s.PgxMock.ExpectationsWereMet())
}

func (s *StoreTestSuite) TestUpdateCarDetailsMissingTicket() {
	s.PgxMock.ExpectExec("UPDATE tickets SET car_number").
		WithArgs(int64(4), "ABC123", "Blue sedan").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	_, err := s.store.UpdateCarDetails(context.Background(), store.UpdateCarInput{TicketID: 4, CarNumber: " ABC123 ", VehicleDescription: "Blue sedan"})
	s.ErrorIs(err, store.ErrNotFound)
	s.NoError(s.PgxMock.ExpectationsWereMet())
}
