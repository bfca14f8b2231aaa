package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/relief-ledger-api/internal/models"
)

func TestReportRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "location_name", "severity", "needs", "created_at"}).
		AddRow("report-1", "Banjir Bandang", "Garut", "kritis", "{Beras,\"Air Mineral\"}", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM reports WHERE id = $1")).
		WithArgs("report-1").
		WillReturnRows(rows)

	report, err := repo.GetByID(context.Background(), "report-1")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, report.Severity)
	assert.Equal(t, []string{"Beras", "Air Mineral"}, []string(report.Needs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpsertTargetNormalizesItem(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (report_id, item_name) DO UPDATE")).
		WithArgs("report-1", "air mineral", 75, "mod-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	target := &models.NeedTarget{ReportID: "report-1", ItemName: "  Air   Mineral ", Target: 75, SetBy: "mod-1"}
	require.NoError(t, repo.UpsertTarget(context.Background(), target))
	assert.Equal(t, "air mineral", target.ItemName)
	assert.False(t, target.SetAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListTargets(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"report_id", "item_name", "target", "set_by", "set_at"}).
		AddRow("report-1", "beras", 120, "mod-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM report_need_targets WHERE report_id = $1")).
		WithArgs("report-1").
		WillReturnRows(rows)

	targets, err := repo.ListTargets(context.Background(), "report-1")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, 120, targets[0].Target)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryDeleteTarget(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM report_need_targets")).
		WithArgs("report-1", "beras").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.DeleteTarget(context.Background(), "report-1", "BERAS")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
