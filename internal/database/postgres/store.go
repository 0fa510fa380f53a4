// Package postgres is the PostgreSQL implementation of database.Store,
// backed by a pgx connection pool.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"wabadash/internal/database"
	apperrors "wabadash/internal/errors"
	"wabadash/internal/migrations"
	"wabadash/internal/models"
)

// Pool is the subset of *pgxpool.Pool the store uses
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type Store struct {
	pool      Pool
	encryptor *database.Encryptor
	logger    *logrus.Logger
	now       func() time.Time
}

var _ database.Store = (*Store)(nil)

// Open connects to dsn, verifies the connection and applies pending migrations
func Open(ctx context.Context, dsn string, maxConns int, encryptor *database.Encryptor, logger *logrus.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, "invalid database dsn")
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeDatabaseConnection, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeDatabaseConnection, "failed to ping database")
	}

	store := NewWithPool(pool, encryptor, logger)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool wraps an existing pool without touching the schema
func NewWithPool(pool Pool, encryptor *database.Encryptor, logger *logrus.Logger) *Store {
	if encryptor == nil {
		encryptor = &database.Encryptor{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		pool:      pool,
		encryptor: encryptor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Migrate applies every embedded migration not yet recorded in schema_migrations
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrations.SchemaMigrationsTable(migrations.DialectPostgres)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to create schema_migrations")
	}

	rows, err := s.pool.Query(ctx, selectAppliedMigrationsQuery)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to read applied migrations")
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to read applied migrations")
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[int(v)] = true
	}

	pending, err := migrations.Load(migrations.DialectPostgres)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to load migrations")
	}

	for _, m := range pending {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to apply migration "+m.Name)
		}
		s.logger.WithField("migration", m.Name).Info("Applied database migration")
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migrations.Migration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertAppliedMigrationQuery, m.Version); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) GetSettings(ctx context.Context) (*models.APISettings, error) {
	var (
		settings                              models.APISettings
		token, version, business, phone, waba sql.NullString
		secret, webhookURL                    sql.NullString
		timeout                               sql.NullInt64
	)

	err := s.pool.QueryRow(ctx, selectLatestSettingsQuery).Scan(
		&settings.ID, &token, &version, &business, &phone, &waba,
		&timeout, &secret, &webhookURL, &settings.CreatedAt, &settings.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get settings", err)
	}

	settings.AccessToken, settings.WebhookSecret, err = s.encryptor.OpenSettings(token.String, secret.String)
	if err != nil {
		return nil, err
	}
	settings.APIVersion = version.String
	settings.BusinessID = business.String
	settings.PhoneNumberID = phone.String
	settings.WABAID = waba.String
	settings.RequestTimeoutMs = int(timeout.Int64)
	settings.WebhookURL = webhookURL.String

	return &settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings *models.APISettings) error {
	token, secret, err := s.encryptor.SealSettings(settings.AccessToken, settings.WebhookSecret)
	if err != nil {
		return err
	}

	now := s.now()
	if settings.ID == "" {
		settings.ID = uuid.NewString()
	}
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now

	_, err = s.pool.Exec(ctx, upsertSettingsQuery,
		settings.ID, token, settings.APIVersion, settings.BusinessID, settings.PhoneNumberID, settings.WABAID,
		settings.RequestTimeoutMs, secret, settings.WebhookURL, settings.CreatedAt, settings.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("save settings", err)
	}
	return nil
}

func (s *Store) InsertClientResponse(ctx context.Context, r *models.ClientResponse) error {
	now := s.now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.TimestampReceived.IsZero() {
		r.TimestampReceived = now
	}
	if r.Flags == nil {
		r.Flags = models.Flags{}
	}
	r.CreatedAt = now
	r.UpdatedAt = now

	flags, err := json.Marshal(r.Flags)
	if err != nil {
		return fmt.Errorf("failed to encode flags: %w", err)
	}

	_, err = s.pool.Exec(ctx, insertClientResponseQuery,
		r.ID, r.PhoneNumber, r.MessageType, r.Content, r.ImageURL, r.ImageCaption,
		r.ButtonPayload, r.Wamid, r.TimestampReceived, r.ContextWamid, r.ClientName,
		jsonArg(r.Metadata), string(flags), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("insert client response", err)
	}
	return nil
}

func (s *Store) ClientResponseExistsByWamid(ctx context.Context, wamid string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, existsClientResponseByWamidQuery, wamid).Scan(&exists); err != nil {
		return false, apperrors.NewDatabaseError("check wamid", err)
	}
	return exists, nil
}

func (s *Store) GetClientResponse(ctx context.Context, id string) (*models.ClientResponse, error) {
	r, err := scanClientResponse(s.pool.QueryRow(ctx, selectClientResponseByIDQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("client response", id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get client response", err)
	}
	return r, nil
}

func (s *Store) ListClientResponses(ctx context.Context, filter models.ClientResponseFilter) (*models.ClientResponsePage, error) {
	page := filter.Page.Normalize()
	where, args := clientResponseWhere(filter)

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM client_responses"+where, args...).Scan(&total); err != nil {
		return nil, apperrors.NewDatabaseError("count client responses", err)
	}

	query := fmt.Sprintf("SELECT %s FROM client_responses%s ORDER BY timestamp_received DESC, id DESC LIMIT $%d OFFSET $%d",
		clientResponseColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list client responses", err)
	}
	defer rows.Close()

	items := make([]*models.ClientResponse, 0, page.Size)
	for rows.Next() {
		r, err := scanClientResponse(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan client response", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate client responses", err)
	}

	return &models.ClientResponsePage{Items: items, Total: int(total), Page: page.Number, PageSize: page.Size}, nil
}

func clientResponseWhere(filter models.ClientResponseFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.MessageType != "" {
		clauses = append(clauses, "message_type = "+next(filter.MessageType))
	}
	if !filter.IncludeArchived {
		clauses = append(clauses, "COALESCE((flags->>'archived')::boolean, false) = false")
	}
	if filter.FlaggedOnly {
		clauses = append(clauses, "COALESCE((flags->>'flagged')::boolean, false) = true")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := next("%" + database.EscapeLike(search) + "%")
		clauses = append(clauses, fmt.Sprintf(
			"(content ILIKE %[1]s OR phone_number ILIKE %[1]s OR client_name ILIKE %[1]s OR button_payload ILIKE %[1]s)", p))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) UpdateClientResponseFlags(ctx context.Context, id string, patch models.Flags) (*models.ClientResponse, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode flags: %w", err)
	}

	tag, err := s.pool.Exec(ctx, mergeClientResponseFlagsQuery, string(raw), s.now(), id)
	if err != nil {
		return nil, apperrors.NewDatabaseError("update flags", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperrors.NewNotFoundError("client response", id)
	}
	return s.GetClientResponse(ctx, id)
}

func (s *Store) DeleteClientResponse(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, deleteClientResponseQuery, id)
	if err != nil {
		return apperrors.NewDatabaseError("delete client response", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("client response", id)
	}
	return nil
}

func (s *Store) InsertAPILog(ctx context.Context, l *models.APILog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}

	_, err := s.pool.Exec(ctx, insertAPILogQuery,
		l.ID, l.Endpoint, l.RequestMethod, jsonArg(l.RequestBody), jsonArg(l.ResponseBody),
		l.ResponseStatus, l.ErrorMessage, l.CreatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("insert api log", err)
	}
	return nil
}

func (s *Store) ListAPILogs(ctx context.Context, filter models.APILogFilter) (*models.APILogPage, error) {
	page := filter.Page.Normalize()

	var (
		clauses []string
		args    []any
	)
	if filter.Endpoint != "" {
		args = append(args, "%"+database.EscapeLike(filter.Endpoint)+"%")
		clauses = append(clauses, fmt.Sprintf("endpoint ILIKE $%d", len(args)))
	}
	if filter.Status != 0 {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("response_status = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM api_logs"+where, args...).Scan(&total); err != nil {
		return nil, apperrors.NewDatabaseError("count api logs", err)
	}

	query := fmt.Sprintf("SELECT %s FROM api_logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		apiLogColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list api logs", err)
	}
	defer rows.Close()

	items := make([]*models.APILog, 0, page.Size)
	for rows.Next() {
		var (
			l                 models.APILog
			reqBody, respBody []byte
			status            sql.NullInt64
			errMsg            sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.Endpoint, &l.RequestMethod, &reqBody, &respBody, &status, &errMsg, &l.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan api log", err)
		}
		l.RequestBody = rawJSON(reqBody)
		l.ResponseBody = rawJSON(respBody)
		if status.Valid {
			v := int(status.Int64)
			l.ResponseStatus = &v
		}
		l.ErrorMessage = nullString(errMsg)
		items = append(items, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate api logs", err)
	}

	return &models.APILogPage{Items: items, Total: int(total), Page: page.Number, PageSize: page.Size}, nil
}

func (s *Store) InsertSentMessage(ctx context.Context, m *models.SentMessage) error {
	now := s.now()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := s.pool.Exec(ctx, insertSentMessageQuery,
		m.ID, m.TemplateName, m.PhoneNumber, m.Status, m.Wamid, jsonArg(m.Parameters),
		m.ErrorMessage, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("insert sent message", err)
	}
	return nil
}

func (s *Store) UpdateSentMessageStatus(ctx context.Context, wamid, status string, errorMessage *string) (bool, error) {
	tag, err := s.pool.Exec(ctx, updateSentMessageStatusQuery, status, errorMessage, s.now(), wamid)
	if err != nil {
		return false, apperrors.NewDatabaseError("update sent message status", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListSentMessages(ctx context.Context, p models.Page) (*models.SentMessagePage, error) {
	page := p.Normalize()

	var total int64
	if err := s.pool.QueryRow(ctx, countSentMessagesQuery).Scan(&total); err != nil {
		return nil, apperrors.NewDatabaseError("count sent messages", err)
	}

	rows, err := s.pool.Query(ctx, selectSentMessagesQuery, page.Size, page.Offset())
	if err != nil {
		return nil, apperrors.NewDatabaseError("list sent messages", err)
	}
	defer rows.Close()

	items := make([]*models.SentMessage, 0, page.Size)
	for rows.Next() {
		var (
			m             models.SentMessage
			wamid, errMsg sql.NullString
			params        []byte
		)
		if err := rows.Scan(&m.ID, &m.TemplateName, &m.PhoneNumber, &m.Status, &wamid, &params, &errMsg, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan sent message", err)
		}
		m.Wamid = nullString(wamid)
		m.Parameters = rawJSON(params)
		m.ErrorMessage = nullString(errMsg)
		items = append(items, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate sent messages", err)
	}

	return &models.SentMessagePage{Items: items, Total: int(total), Page: page.Number, PageSize: page.Size}, nil
}

func scanClientResponse(row pgx.Row) (*models.ClientResponse, error) {
	var (
		r                                   models.ClientResponse
		content, imageURL, caption, payload sql.NullString
		wamid, contextWamid, name           sql.NullString
		metadata, flags                     []byte
	)

	if err := row.Scan(
		&r.ID, &r.PhoneNumber, &r.MessageType, &content, &imageURL, &caption,
		&payload, &wamid, &r.TimestampReceived, &contextWamid, &name,
		&metadata, &flags, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Content = nullString(content)
	r.ImageURL = nullString(imageURL)
	r.ImageCaption = nullString(caption)
	r.ButtonPayload = nullString(payload)
	r.Wamid = nullString(wamid)
	r.ContextWamid = nullString(contextWamid)
	r.ClientName = nullString(name)
	r.Metadata = rawJSON(metadata)

	r.Flags = models.Flags{}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &r.Flags); err != nil {
			return nil, fmt.Errorf("failed to decode flags: %w", err)
		}
	}
	return &r, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
