package resources

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/httputil"
)

func newMessageService(t *testing.T) (*MessageService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMessageService(db), mock
}

func TestSendValidation(t *testing.T) {
	svc, _ := newMessageService(t)

	err := svc.Send(context.Background(), &Message{TenantID: 1, FromOrgID: 2, ToOrgID: 3})
	require.Error(t, err)
	assert.Equal(t, httputil.CodeValidation, httputil.AsAPIError(err).Code)

	err = svc.Send(context.Background(), &Message{TenantID: 1, FromOrgID: 2, ToOrgID: 2, Subject: "hi"})
	require.Error(t, err)
	assert.Equal(t, httputil.CodeValidation, httputil.AsAPIError(err).Code)
}

func TestMarkReadIdempotent(t *testing.T) {
	svc, mock := newMessageService(t)

	// Already-read message: the guarded update matches no rows.
	mock.ExpectQuery(`UPDATE messages SET read_at`).
		WithArgs(int64(1), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"read_at"}))

	msg := &Message{ID: 5, TenantID: 1}
	assert.NoError(t, svc.MarkRead(context.Background(), msg))
}

func TestMarkReadStampsTime(t *testing.T) {
	svc, mock := newMessageService(t)
	now := time.Now()

	mock.ExpectQuery(`UPDATE messages SET read_at`).
		WithArgs(int64(1), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"read_at"}).AddRow(now))

	msg := &Message{ID: 5, TenantID: 1}
	require.NoError(t, svc.MarkRead(context.Background(), msg))
	require.NotNil(t, msg.ReadAt)
}
