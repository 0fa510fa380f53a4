package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabadash/internal/database"
	apperrors "wabadash/internal/errors"
	"wabadash/internal/models"
)

var clientResponseRowColumns = []string{
	"id", "phone_number", "message_type", "content", "image_url", "image_caption",
	"button_payload", "wamid", "timestamp_received", "context_wamid", "client_name",
	"metadata", "flags", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	encryptor, err := database.NewEncryptor("this-is-a-very-long-test-secret-key-for-encryption")
	require.NoError(t, err)
	return NewWithPool(mockPool, encryptor, nil), mockPool
}

func TestStore_GetSettings(t *testing.T) {
	t.Run("no rows", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(`SELECT .* FROM api_settings`).WillReturnError(pgx.ErrNoRows)

		settings, err := store.GetSettings(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, settings)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("decrypts secrets", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		sealed, err := store.encryptor.Encrypt("EAAG-token")
		require.NoError(t, err)
		now := time.Now().UTC()

		rows := mockPool.NewRows([]string{
			"id", "access_token", "api_version", "business_id", "phone_number_id", "waba_id",
			"request_timeout", "webhook_secret", "webhook_url", "created_at", "updated_at",
		}).AddRow("settings-1", sealed, "v23.0", "111", "222", "333", int64(20000), "", "", now, now)
		mockPool.ExpectQuery(`SELECT .* FROM api_settings`).WillReturnRows(rows)

		settings, err := store.GetSettings(context.Background())
		require.NoError(t, err)
		require.NotNil(t, settings)
		assert.Equal(t, "EAAG-token", settings.AccessToken)
		assert.Equal(t, "v23.0", settings.APIVersion)
		assert.Equal(t, 20000, settings.RequestTimeoutMs)
		assert.Empty(t, settings.WebhookSecret)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestStore_SaveSettings(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectExec(`INSERT INTO api_settings`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "v23.0", "111", "222", "", 30000, "", "",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	settings := &models.APISettings{AccessToken: "token", APIVersion: "v23.0", BusinessID: "111", PhoneNumberID: "222", RequestTimeoutMs: 30000}
	require.NoError(t, store.SaveSettings(context.Background(), settings))
	assert.NotEmpty(t, settings.ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStore_UpdateClientResponseFlags(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectExec(`UPDATE client_responses`).
			WithArgs(`{"archived":true}`, pgxmock.AnyArg(), "missing").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		_, err := store.UpdateClientResponseFlags(context.Background(), "missing", models.Flags{models.FlagArchived: true})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("merged row returned", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		now := time.Now().UTC()

		mockPool.ExpectExec(`UPDATE client_responses`).
			WithArgs(`{"flagged":true}`, pgxmock.AnyArg(), "row-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		rows := mockPool.NewRows(clientResponseRowColumns).AddRow(
			"row-1", "15551234567", "text", "hello", nil, nil,
			nil, "wamid.X", now, nil, "Jane",
			[]byte(nil), []byte(`{"flagged":true}`), now, now,
		)
		mockPool.ExpectQuery(`SELECT .* FROM client_responses WHERE id = \$1`).WithArgs("row-1").WillReturnRows(rows)

		resp, err := store.UpdateClientResponseFlags(context.Background(), "row-1", models.Flags{models.FlagFlagged: true})
		require.NoError(t, err)
		assert.True(t, resp.Flags.IsFlagged())
		assert.Equal(t, "hello", models.StringValue(resp.Content))
		assert.Nil(t, resp.ImageURL)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestStore_DeleteClientResponse(t *testing.T) {
	store, mockPool := newMockStore(t)
	mockPool.ExpectExec(`DELETE FROM client_responses`).WithArgs("row-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mockPool.ExpectExec(`DELETE FROM client_responses`).WithArgs("row-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.NoError(t, store.DeleteClientResponse(context.Background(), "row-1"))
	err := store.DeleteClientResponse(context.Background(), "row-1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStore_ClientResponseExistsByWamid(t *testing.T) {
	store, mockPool := newMockStore(t)
	mockPool.ExpectQuery(`SELECT EXISTS`).WithArgs("wamid.X").
		WillReturnRows(mockPool.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.ClientResponseExistsByWamid(context.Background(), "wamid.X")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStore_UpdateSentMessageStatus(t *testing.T) {
	store, mockPool := newMockStore(t)
	mockPool.ExpectExec(`UPDATE sent_messages`).
		WithArgs("DELIVERED", pgxmock.AnyArg(), pgxmock.AnyArg(), "wamid.OUT").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	found, err := store.UpdateSentMessageStatus(context.Background(), "wamid.OUT", "DELIVERED", nil)
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStore_ListClientResponses(t *testing.T) {
	store, mockPool := newMockStore(t)
	now := time.Now().UTC()

	mockPool.ExpectQuery(`SELECT COUNT\(\*\) FROM client_responses WHERE message_type = \$1`).
		WithArgs("image").
		WillReturnRows(mockPool.NewRows([]string{"count"}).AddRow(int64(1)))
	mockPool.ExpectQuery(`ORDER BY timestamp_received DESC, id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("image", 20, 0).
		WillReturnRows(mockPool.NewRows(clientResponseRowColumns).AddRow(
			"row-1", "15551234567", "image", nil, "media-1", "caption",
			nil, "wamid.X", now, nil, nil,
			[]byte(`{"id":"media-1"}`), []byte(`{}`), now, now,
		))

	page, err := store.ListClientResponses(context.Background(), models.ClientResponseFilter{MessageType: "image"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "media-1", models.StringValue(page.Items[0].ImageURL))
	assert.JSONEq(t, `{"id":"media-1"}`, string(page.Items[0].Metadata))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestClientResponseWhere(t *testing.T) {
	where, args := clientResponseWhere(models.ClientResponseFilter{IncludeArchived: true})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = clientResponseWhere(models.ClientResponseFilter{
		MessageType: "text",
		Search:      "50%",
		FlaggedOnly: true,
	})
	assert.Contains(t, where, "message_type = $1")
	assert.Contains(t, where, "content ILIKE $2")
	assert.Contains(t, where, "(flags->>'archived')")
	assert.Contains(t, where, "(flags->>'flagged')")
	assert.Equal(t, []any{"text", `%50\%%`}, args)
}
