package stats

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julez-dev/encore/event"
	"github.com/julez-dev/encore/user"
)

func TestBatchedRecorderRun(t *testing.T) {
	t.Run("max-batch-size", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		recorder := NewBatchedRecorder(zerolog.Nop(), db, db)

		args := make([]driver.Value, 0, maxBatchItems*5)
		for range maxBatchItems * 5 {
			args = append(args, sqlmock.AnyArg())
		}
		mock.ExpectExec("INSERT INTO event_samples").
			WithArgs(args...).
			WillReturnResult(sqlmock.NewResult(1, int64(maxBatchItems)))

		for i := range maxBatchItems {
			recorder.RecordEvent(event.ChatMessageReceived, event.CommandParameters{
				User:     &user.User{Login: fmt.Sprintf("chatter-%d", i)},
				Platform: user.PlatformTwitch,
			})
		}

		ctx, cancel := context.WithCancel(t.Context())
		errCh := make(chan error, 1)
		go func() { errCh <- recorder.Run(ctx) }()

		require.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		require.ErrorIs(t, <-errCh, context.Canceled)
	})

	t.Run("flush-on-shutdown", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		recorder := NewBatchedRecorder(zerolog.Nop(), db, db)

		mock.ExpectExec("INSERT INTO event_samples").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		ctx, cancel := context.WithCancel(t.Context())
		errCh := make(chan error, 1)
		go func() { errCh <- recorder.Run(ctx) }()

		recorder.RecordEvent(event.TwitchChannelFollowed, event.CommandParameters{
			User:     &user.User{Login: "fan"},
			Platform: user.PlatformTwitch,
		})

		// give the run loop time to pick the sample up, then shut down
		require.Eventually(t, func() bool { return len(recorder.samples) == 0 }, 2*time.Second, 5*time.Millisecond)
		cancel()

		require.ErrorIs(t, <-errCh, context.Canceled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBatchedRecorderPrepareDatabase(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("pragma journal_mode").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("pragma synchronous").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("pragma temp_store").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS event_samples").WillReturnResult(sqlmock.NewResult(0, 0))

	recorder := NewBatchedRecorder(zerolog.Nop(), db, db)
	require.NoError(t, recorder.PrepareDatabase())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchedRecorderCountByKind(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"kind", "count"}).
		AddRow(int(event.ChatMessageReceived), 12).
		AddRow(int(event.TwitchChannelFollowed), 3)
	mock.ExpectQuery("SELECT kind, COUNT").WillReturnRows(rows)

	recorder := NewBatchedRecorder(zerolog.Nop(), db, db)

	counts, err := recorder.CountByKind()
	require.NoError(t, err)
	assert.Equal(t, map[event.Kind]int{
		event.ChatMessageReceived:    12,
		event.TwitchChannelFollowed:  3,
	}, counts)
}
