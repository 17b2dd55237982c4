package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

func TestWriteRecordInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "records", "runs", "run-1")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := crawler.Record{
		Type:      crawler.RecordHashtag,
		URL:       "https://www.instagram.com/explore/tags/sunset/",
		ScrapedAt: now,
		Hashtag:   &crawler.Hashtag{TagName: "#sunset", PostsCount: 10},
	}
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO records").
		WithArgs("run-1", "hashtag", rec.URL, now, payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.WriteRecord(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRecordWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "", "", "run-1")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO extraction_records").
		WithArgs("run-1", "location", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err = store.WriteRecord(context.Background(), crawler.Record{
		Type:     crawler.RecordLocation,
		URL:      "https://www.instagram.com/explore/locations/1/x/",
		Location: &crawler.Location{LocationName: "x"},
	})
	require.ErrorContains(t, err, "insert record: connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "records", "runs", "run-9")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	summary := crawler.Summary{NoData: true}
	summaryJSON, err := json.Marshal(summary)
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS records").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-9", started, "memory://runs/run-9/REPORT").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(finished, summaryJSON, "run-9").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.StartRun(ctx, crawler.RunContext{
		ID:        "run-9",
		StartedAt: started,
		ReportURL: "memory://runs/run-9/REPORT",
	}))
	require.NoError(t, store.FinishRun(ctx, finished, summary))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRecordStoreWithPool(nil, "", "", "run")
	require.Error(t, err)
	_, err = NewRecordStoreWithPool(mock, "", "", "")
	require.Error(t, err)
	_, err = NewRecordStoreWithPool(mock, "bad-name;", "", "run")
	require.Error(t, err)
}
