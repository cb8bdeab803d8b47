package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekklesia/commhub/internal/auth"
	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/service/attendance"
	"github.com/ekklesia/commhub/internal/service/communication"
	"github.com/ekklesia/commhub/internal/service/contact"
	"github.com/ekklesia/commhub/internal/service/scenario"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var (
	contactCols = []string{"id", "name", "phone", "status", "opt_out_sms", "opt_out_whatsapp", "tags", "metadata", "created_at", "updated_at"}
	commCols    = []string{"id", "message_type", "recipient_group", "tag_filter", "subject", "message", "scheduled_at",
		"status", "sent_count", "failed_count", "cost", "provider", "sent_at", "metadata", "created_by", "created_at", "updated_at"}
	taskCols = []string{"id", "scenario_id", "contact_id", "phone", "name", "is_completed", "completed_by", "completed_at"}
)

func commRow(id, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(commCols).AddRow(id, "sms", "tagged", "{kanana,youth}", nil, "Hello", nil,
		status, 0, 0, "0", nil, nil, nil, "u1", now, now)
}

// --- contacts ---

func TestContactRepo_GetScansArraysAndNulls(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM contacts WHERE id = \\$1").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("c1", nil, "+27821234567", "active", true, false, "{kanana,youth}", []byte(`{"k":1}`), now, now))

	c, err := NewContactRepo(db).Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, c.Name)
	assert.Equal(t, domain.Tags{"kanana", "youth"}, c.Tags)
	assert.True(t, c.OptOutSMS)
	assert.JSONEq(t, `{"k":1}`, string(c.Metadata))
}

func TestContactRepo_GetNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("SELECT (.+) FROM contacts").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM contacts").WillReturnError(sql.ErrNoRows)

	repo := NewContactRepo(db)
	_, err := repo.Get(context.Background(), "x")
	assert.ErrorIs(t, err, contact.ErrNotFound)

	c, err := repo.Find(context.Background(), "x")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestContactRepo_GetMalformedID(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("SELECT (.+) FROM contacts").WithArgs("abc").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})

	repo := NewContactRepo(db)
	_, err := repo.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, contact.ErrNotFound)
}

func TestContactRepo_DeleteManySkipsMalformedIDs(t *testing.T) {
	db, mock := setupTestDB(t)
	id := "7d9f5c1e-3b2a-4c8d-9e0f-1a2b3c4d5e6f"
	mock.ExpectExec("DELETE FROM contacts WHERE id = ANY").
		WithArgs(pq.Array([]string{id})).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewContactRepo(db)
	n, err := repo.DeleteMany(context.Background(), []string{id, "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.DeleteMany(context.Background(), []string{"unknown"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestContactRepo_CreateDuplicatePhone(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("INSERT INTO contacts").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := NewContactRepo(db).Create(context.Background(), &domain.Contact{ID: "c1", Phone: "+27821234567", Status: "active"})
	assert.ErrorIs(t, err, contact.ErrDuplicatePhone)
}

func TestContactRepo_ListBuildsFilters(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM contacts WHERE TRUE AND \\(name ILIKE \\$1 OR phone ILIKE \\$1\\) AND \\$2 = ANY\\(tags\\)").
		WithArgs("%thabo%", "kanana").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM contacts WHERE (.+) LIMIT \\$3 OFFSET \\$4").
		WithArgs("%thabo%", "kanana", 10, 20).
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("c1", "Thabo", "+27821234567", "active", false, false, "{kanana}", nil, now, now))

	out, total, err := NewContactRepo(db).List(context.Background(), contact.ListFilter{Search: "thabo", Tag: " Kanana", Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, "Thabo", *out[0].Name)
}

func TestContactRepo_UpdateNotFoundAndNoop(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewContactRepo(db)

	require.NoError(t, repo.Update(context.Background(), "c1", contact.UpdateFields{}))

	name := "New"
	mock.ExpectExec("UPDATE contacts SET name = \\$1, updated_at = NOW\\(\\) WHERE id = \\$2").
		WithArgs("New", "c1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Update(context.Background(), "c1", contact.UpdateFields{Name: &name}), contact.ErrNotFound)
}

func TestContactRepo_ReachableByTagsUsesOverlap(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("FROM contacts WHERE NOT opt_out_whatsapp AND tags && \\$1").
		WithArgs("{kanana,youth}").
		WillReturnRows(sqlmock.NewRows(contactCols))

	out, err := NewContactRepo(db).ReachableByTags(context.Background(), domain.Tags{"kanana", "youth"}, domain.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// --- communications ---

func TestCommunicationRepo_DispatchCommitsTally(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM communications WHERE id = \\$1 FOR UPDATE").WithArgs("m1").
		WillReturnRows(commRow("m1", "draft"))
	sent := time.Now()
	mock.ExpectQuery("UPDATE communications").
		WithArgs(2, 1, sqlmock.AnyArg(), "twilio", "m1").
		WillReturnRows(sqlmock.NewRows(commCols).AddRow("m1", "sms", "tagged", "{kanana}", nil, "Hello", nil,
			"sent", 2, 1, "1.05", "twilio", sent, nil, "u1", sent, sent))
	mock.ExpectCommit()

	var seen *domain.Communication
	out, err := NewCommunicationRepo(db).Dispatch(context.Background(), "m1",
		func(_ context.Context, c *domain.Communication) (*domain.DispatchTally, error) {
			seen = c
			return &domain.DispatchTally{Provider: "twilio", SentCount: 2, FailedCount: 1, Cost: decimal.RequireFromString("1.05")}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, domain.CommunicationDraft, seen.Status)
	assert.Equal(t, domain.Tags{"kanana", "youth"}, seen.TagFilter)
	assert.Equal(t, domain.CommunicationSent, out.Status)
	assert.Equal(t, 2, out.SentCount)
	assert.True(t, out.Cost.Equal(decimal.RequireFromString("1.05")))
	require.NotNil(t, out.Provider)
	assert.Equal(t, "twilio", *out.Provider)
}

func TestCommunicationRepo_DispatchRollsBack(t *testing.T) {
	t.Run("callback error", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WillReturnRows(commRow("m1", "sent"))
		mock.ExpectRollback()

		_, err := NewCommunicationRepo(db).Dispatch(context.Background(), "m1",
			func(context.Context, *domain.Communication) (*domain.DispatchTally, error) {
				return nil, communication.ErrAlreadySent
			})
		assert.ErrorIs(t, err, communication.ErrAlreadySent)
	})

	t.Run("guarded update misses", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WillReturnRows(commRow("m1", "draft"))
		mock.ExpectQuery("UPDATE communications").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := NewCommunicationRepo(db).Dispatch(context.Background(), "m1",
			func(context.Context, *domain.Communication) (*domain.DispatchTally, error) {
				return &domain.DispatchTally{Provider: "twilio"}, nil
			})
		assert.ErrorIs(t, err, communication.ErrAlreadySent)
	})

	t.Run("missing row", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := NewCommunicationRepo(db).Dispatch(context.Background(), "m1",
			func(context.Context, *domain.Communication) (*domain.DispatchTally, error) {
				t.Fatal("callback must not run")
				return nil, nil
			})
		assert.ErrorIs(t, err, communication.ErrNotFound)
	})
}

func TestCommunicationRepo_UpdateOnlyDrafts(t *testing.T) {
	db, mock := setupTestDB(t)
	msg := "changed"
	mock.ExpectExec("UPDATE communications SET message = \\$1, updated_at = NOW\\(\\) WHERE id = \\$2 AND status = 'draft'").
		WithArgs("changed", "m1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM communications").WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("sent"))

	err := NewCommunicationRepo(db).Update(context.Background(), "m1", communication.UpdateFields{Message: &msg})
	assert.ErrorIs(t, err, communication.ErrAlreadySent)
}

// --- scenarios ---

func TestScenarioRepo_CreateInsertsTasksInOneTx(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scenarios").
		WithArgs("s1", "Follow up", nil, "{kanana}", "active", "u1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep := mock.ExpectPrepare("INSERT INTO scenario_tasks")
	prep.ExpectExec().WithArgs("t1", "s1", "c1", "+27821234567", "Anna").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("t2", "s1", "c2", "+27831234567", "Ben").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewScenarioRepo(db).Create(context.Background(),
		&domain.Scenario{ID: "s1", Name: "Follow up", FilterTags: domain.Tags{"kanana"}, Status: domain.ScenarioActive, CreatedBy: "u1", CreatedAt: now},
		[]domain.ScenarioTask{
			{ID: "t1", ContactID: "c1", Phone: "+27821234567", Name: "Anna"},
			{ID: "t2", ContactID: "c2", Phone: "+27831234567", Name: "Ben"},
		})
	require.NoError(t, err)
}

func TestScenarioRepo_CreateRollsBackOnTaskFailure(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scenarios").WillReturnResult(sqlmock.NewResult(0, 1))
	prep := mock.ExpectPrepare("INSERT INTO scenario_tasks")
	prep.ExpectExec().WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := NewScenarioRepo(db).Create(context.Background(),
		&domain.Scenario{ID: "s1", Name: "x", Status: domain.ScenarioActive},
		[]domain.ScenarioTask{{ID: "t1", ContactID: "c1"}})
	assert.ErrorContains(t, err, "boom")
}

func TestScenarioRepo_CompleteTask(t *testing.T) {
	at := time.Now()

	expectLocked := func(mock sqlmock.Sqlmock, completed bool) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM scenarios WHERE id = \\$1 AND NOT is_deleted FOR UPDATE").WithArgs("s1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
		mock.ExpectQuery("FROM scenario_tasks WHERE id = \\$1 AND scenario_id = \\$2").WithArgs("t1", "s1").
			WillReturnRows(sqlmock.NewRows(taskCols).AddRow("t1", "s1", "c1", "+27821234567", "Anna", completed, nil, nil))
	}

	t.Run("last task closes scenario", func(t *testing.T) {
		db, mock := setupTestDB(t)
		expectLocked(mock, false)
		mock.ExpectExec("UPDATE scenario_tasks SET is_completed = TRUE").WithArgs("u1", at, "t1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM scenario_tasks").WithArgs("s1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("UPDATE scenarios SET status = \\$1, completed_at = \\$2").WithArgs("completed", at, "s1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		task, closed, err := NewScenarioRepo(db).CompleteTask(context.Background(), "s1", "t1", "u1", at)
		require.NoError(t, err)
		assert.True(t, closed)
		assert.True(t, task.IsCompleted)
		assert.Equal(t, "u1", *task.CompletedBy)
	})

	t.Run("pending tasks remain", func(t *testing.T) {
		db, mock := setupTestDB(t)
		expectLocked(mock, false)
		mock.ExpectExec("UPDATE scenario_tasks").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectCommit()

		_, closed, err := NewScenarioRepo(db).CompleteTask(context.Background(), "s1", "t1", "u1", at)
		require.NoError(t, err)
		assert.False(t, closed)
	})

	t.Run("already completed", func(t *testing.T) {
		db, mock := setupTestDB(t)
		expectLocked(mock, true)
		mock.ExpectRollback()

		_, _, err := NewScenarioRepo(db).CompleteTask(context.Background(), "s1", "t1", "u1", at)
		assert.ErrorIs(t, err, scenario.ErrAlreadyCompleted)
	})

	t.Run("deleted scenario", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, _, err := NewScenarioRepo(db).CompleteTask(context.Background(), "s1", "t1", "u1", at)
		assert.ErrorIs(t, err, scenario.ErrNotFound)
	})
}

func TestScenarioRepo_SoftDelete(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec("UPDATE scenarios SET is_deleted = TRUE").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, NewScenarioRepo(db).SoftDelete(context.Background(), "s1"), scenario.ErrNotFound)
}

// --- attendance ---

func TestAttendanceRepo_CreateMapsConstraints(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewAttendanceRepo(db)
	a := &domain.Attendance{ID: "a1", ContactID: "c1", ServiceType: domain.ServiceSunday, ServiceDate: time.Now()}

	mock.ExpectExec("INSERT INTO attendance").WillReturnError(&pq.Error{Code: "23505"})
	assert.ErrorIs(t, repo.Create(context.Background(), a), attendance.ErrDuplicate)

	mock.ExpectExec("INSERT INTO attendance").WillReturnError(&pq.Error{Code: "23503"})
	assert.ErrorIs(t, repo.Create(context.Background(), a), attendance.ErrContactNotFound)
}

func TestAttendanceRepo_Summary(t *testing.T) {
	db, mock := setupTestDB(t)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT a.service_type, COUNT\\(\\*\\)").WithArgs(from).
		WillReturnRows(sqlmock.NewRows([]string{"service_type", "count"}).
			AddRow("sunday_service", 5).AddRow("youth_service", 2))

	sum, err := NewAttendanceRepo(db).Summary(context.Background(), &from, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, sum.TotalAttendance)
	assert.Equal(t, map[string]int{"sunday_service": 5, "youth_service": 2}, sum.ByServiceType)
}

// --- users ---

func TestUserRepo(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery("FROM users WHERE email = \\$1").WithArgs("a@b.org").WillReturnError(sql.ErrNoRows)
	u, err := repo.ByEmail(context.Background(), "a@b.org")
	require.NoError(t, err)
	assert.Nil(t, u)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})
	assert.ErrorIs(t, repo.Create(context.Background(), &domain.User{ID: "u1", Email: "a@b.org"}), auth.ErrEmailTaken)
}

// --- stats ---

func TestStatsRepo_Counts(t *testing.T) {
	db, mock := setupTestDB(t)
	db.SetMaxOpenConns(1)
	mock.MatchExpectationsInOrder(false)

	week := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM contacts").WillReturnRows(sqlmock.NewRows([]string{"a", "b"}).AddRow(40, 3))
	mock.ExpectQuery("SUM\\(sent_count\\)").WillReturnRows(sqlmock.NewRows([]string{"a", "b"}).AddRow(120, 6))
	mock.ExpectQuery("GROUP BY status").WillReturnRows(sqlmock.NewRows([]string{"k", "n"}).AddRow("draft", 2).AddRow("sent", 5))
	mock.ExpectQuery("GROUP BY message_type").WillReturnRows(sqlmock.NewRows([]string{"k", "n"}).AddRow("sms", 7))
	mock.ExpectQuery("FROM scenarios").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery("FROM attendance WHERE service_date >= \\$1").WithArgs(week).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(9))

	c, err := NewStatsRepo(db).Counts(context.Background(), week)
	require.NoError(t, err)
	assert.Equal(t, 40, c.TotalContacts)
	assert.Equal(t, 3, c.OptedOutSMS)
	assert.Equal(t, 120, c.TotalMessagesSent)
	assert.Equal(t, 6, c.TotalMessagesFailed)
	assert.Equal(t, map[string]int{"draft": 2, "sent": 5}, c.CommunicationsByStatus)
	assert.Equal(t, map[string]int{"sms": 7}, c.CountsByType)
	assert.Equal(t, 1, c.ActiveScenarios)
	assert.Equal(t, 9, c.AttendanceThisWeek)
}
