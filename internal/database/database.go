package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	apperrors "wabadash/internal/errors"
	"wabadash/internal/migrations"
	"wabadash/internal/models"
	"wabadash/internal/security"
)

// Database is the SQLite-backed Store
type Database struct {
	db        *sql.DB
	encryptor *Encryptor
	now       func() time.Time
}

// New opens (creating if needed) the SQLite file at dbPath and applies
// pending migrations. A nil encryptor stores secrets in plain text.
func New(ctx context.Context, dbPath string, encryptor *Encryptor) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, closeWith(db, fmt.Errorf("failed to ping database: %w", err))
	}

	if err := applyMigrations(ctx, db); err != nil {
		return nil, closeWith(db, err)
	}

	if encryptor == nil {
		encryptor = &Encryptor{}
	}

	return &Database{db: db, encryptor: encryptor, now: func() time.Time { return time.Now().UTC() }}, nil
}

func closeWith(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, migrations.SchemaMigrationsTable(migrations.DialectSQLite)); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, selectAppliedMigrationsQuery)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	pending, err := migrations.Load(migrations.DialectSQLite)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if applied[m.Version] {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, insertAppliedMigrationQuery, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Name, err)
		}
	}

	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// GetSettings returns the most recently updated settings row, or nil when
// none has been saved.
func (d *Database) GetSettings(ctx context.Context) (*models.APISettings, error) {
	var (
		s                                     models.APISettings
		token, version, business, phone, waba sql.NullString
		secret, webhookURL                    sql.NullString
		timeout                               sql.NullInt64
	)

	err := d.db.QueryRowContext(ctx, selectLatestSettingsQuery).Scan(
		&s.ID, &token, &version, &business, &phone, &waba,
		&timeout, &secret, &webhookURL, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	s.AccessToken, s.WebhookSecret, err = d.encryptor.OpenSettings(token.String, secret.String)
	if err != nil {
		return nil, err
	}
	s.APIVersion = version.String
	s.BusinessID = business.String
	s.PhoneNumberID = phone.String
	s.WABAID = waba.String
	s.RequestTimeoutMs = int(timeout.Int64)
	s.WebhookURL = webhookURL.String

	return &s, nil
}

// SaveSettings inserts or replaces the settings row, assigning an id when
// the row is new.
func (d *Database) SaveSettings(ctx context.Context, s *models.APISettings) error {
	token, secret, err := d.encryptor.SealSettings(s.AccessToken, s.WebhookSecret)
	if err != nil {
		return err
	}

	now := d.now()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	return withRetry(ctx, "failed to save settings", func() error {
		_, err := d.db.ExecContext(ctx, upsertSettingsQuery,
			s.ID, token, s.APIVersion, s.BusinessID, s.PhoneNumberID, s.WABAID,
			s.RequestTimeoutMs, secret, s.WebhookURL, s.CreatedAt, s.UpdatedAt,
		)
		return err
	})
}

func (d *Database) InsertClientResponse(ctx context.Context, r *models.ClientResponse) error {
	now := d.now()
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

	return withRetry(ctx, "failed to insert client response", func() error {
		_, err := d.db.ExecContext(ctx, insertClientResponseQuery,
			r.ID, r.PhoneNumber, r.MessageType, r.Content, r.ImageURL, r.ImageCaption,
			r.ButtonPayload, r.Wamid, r.TimestampReceived.UTC(), r.ContextWamid, r.ClientName,
			nullableJSON(r.Metadata), string(flags), r.CreatedAt, r.UpdatedAt,
		)
		return err
	})
}

func (d *Database) ClientResponseExistsByWamid(ctx context.Context, wamid string) (bool, error) {
	var exists bool
	if err := d.db.QueryRowContext(ctx, existsClientResponseByWamidQuery, wamid).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check wamid: %w", err)
	}
	return exists, nil
}

func (d *Database) GetClientResponse(ctx context.Context, id string) (*models.ClientResponse, error) {
	r, err := scanClientResponse(d.db.QueryRowContext(ctx, selectClientResponseByIDQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("client response", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client response: %w", err)
	}
	return r, nil
}

// ListClientResponses returns newest-first responses matching filter
func (d *Database) ListClientResponses(ctx context.Context, filter models.ClientResponseFilter) (*models.ClientResponsePage, error) {
	page := filter.Page.Normalize()
	where, args := clientResponseWhere(filter)

	var total int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM client_responses"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count client responses: %w", err)
	}

	query := "SELECT " + clientResponseColumns + " FROM client_responses" + where +
		" ORDER BY timestamp_received DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := d.db.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to list client responses: %w", err)
	}
	defer rows.Close()

	items := make([]*models.ClientResponse, 0, page.Size)
	for rows.Next() {
		r, err := scanClientResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client response: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate client responses: %w", err)
	}

	return &models.ClientResponsePage{Items: items, Total: total, Page: page.Number, PageSize: page.Size}, nil
}

func clientResponseWhere(filter models.ClientResponseFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if filter.MessageType != "" {
		clauses = append(clauses, "message_type = ?")
		args = append(args, filter.MessageType)
	}
	if !filter.IncludeArchived {
		clauses = append(clauses, "COALESCE(json_extract(flags, '$.archived'), 0) = 0")
	}
	if filter.FlaggedOnly {
		clauses = append(clauses, "json_extract(flags, '$.flagged') = 1")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + EscapeLike(search) + "%"
		clauses = append(clauses, `(content LIKE ? ESCAPE '\' OR phone_number LIKE ? ESCAPE '\' OR client_name LIKE ? ESCAPE '\' OR button_payload LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern, pattern)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// EscapeLike escapes LIKE wildcards using backslash as the escape character
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// UpdateClientResponseFlags merges patch into the stored flags. Nil values
// remove keys.
func (d *Database) UpdateClientResponseFlags(ctx context.Context, id string, patch models.Flags) (*models.ClientResponse, error) {
	err := withRetry(ctx, "failed to update flags", func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var raw string
		if err := tx.QueryRowContext(ctx, selectClientResponseFlagsQuery, id).Scan(&raw); err != nil {
			return err
		}

		current := models.Flags{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				return fmt.Errorf("failed to decode flags: %w", err)
			}
		}

		merged, err := json.Marshal(current.Merge(patch))
		if err != nil {
			return fmt.Errorf("failed to encode flags: %w", err)
		}

		if _, err := tx.ExecContext(ctx, updateClientResponseFlagsQuery, string(merged), d.now(), id); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("client response", id)
		}
		return nil, err
	}

	return d.GetClientResponse(ctx, id)
}

func (d *Database) DeleteClientResponse(ctx context.Context, id string) error {
	var affected int64
	err := withRetry(ctx, "failed to delete client response", func() error {
		res, err := d.db.ExecContext(ctx, deleteClientResponseQuery, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("client response", id)
	}
	return nil
}

func (d *Database) InsertAPILog(ctx context.Context, l *models.APILog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = d.now()
	}

	return withRetry(ctx, "failed to insert api log", func() error {
		_, err := d.db.ExecContext(ctx, insertAPILogQuery,
			l.ID, l.Endpoint, l.RequestMethod, nullableJSON(l.RequestBody), nullableJSON(l.ResponseBody),
			l.ResponseStatus, l.ErrorMessage, l.CreatedAt,
		)
		return err
	})
}

func (d *Database) ListAPILogs(ctx context.Context, filter models.APILogFilter) (*models.APILogPage, error) {
	page := filter.Page.Normalize()

	var (
		clauses []string
		args    []any
	)
	if filter.Endpoint != "" {
		clauses = append(clauses, `endpoint LIKE ? ESCAPE '\'`)
		args = append(args, "%"+EscapeLike(filter.Endpoint)+"%")
	}
	if filter.Status != 0 {
		clauses = append(clauses, "response_status = ?")
		args = append(args, filter.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count api logs: %w", err)
	}

	query := "SELECT " + apiLogColumns + " FROM api_logs" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := d.db.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to list api logs: %w", err)
	}
	defer rows.Close()

	items := make([]*models.APILog, 0, page.Size)
	for rows.Next() {
		var (
			l                       models.APILog
			reqBody, respBody, errs sql.NullString
			status                  sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.Endpoint, &l.RequestMethod, &reqBody, &respBody, &status, &errs, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api log: %w", err)
		}
		l.RequestBody = rawJSON(reqBody)
		l.ResponseBody = rawJSON(respBody)
		if status.Valid {
			v := int(status.Int64)
			l.ResponseStatus = &v
		}
		if errs.Valid {
			l.ErrorMessage = &errs.String
		}
		items = append(items, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate api logs: %w", err)
	}

	return &models.APILogPage{Items: items, Total: total, Page: page.Number, PageSize: page.Size}, nil
}

func (d *Database) InsertSentMessage(ctx context.Context, m *models.SentMessage) error {
	now := d.now()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = now
	m.UpdatedAt = now

	return withRetry(ctx, "failed to insert sent message", func() error {
		_, err := d.db.ExecContext(ctx, insertSentMessageQuery,
			m.ID, m.TemplateName, m.PhoneNumber, m.Status, m.Wamid, nullableJSON(m.Parameters),
			m.ErrorMessage, m.CreatedAt, m.UpdatedAt,
		)
		return err
	})
}

// UpdateSentMessageStatus sets the status of the message with wamid and
// reports whether such a message exists.
func (d *Database) UpdateSentMessageStatus(ctx context.Context, wamid, status string, errorMessage *string) (bool, error) {
	var affected int64
	err := withRetry(ctx, "failed to update sent message status", func() error {
		res, err := d.db.ExecContext(ctx, updateSentMessageStatusQuery, status, errorMessage, d.now(), wamid)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (d *Database) ListSentMessages(ctx context.Context, p models.Page) (*models.SentMessagePage, error) {
	page := p.Normalize()

	var total int
	if err := d.db.QueryRowContext(ctx, countSentMessagesQuery).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count sent messages: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, selectSentMessagesQuery, page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list sent messages: %w", err)
	}
	defer rows.Close()

	items := make([]*models.SentMessage, 0, page.Size)
	for rows.Next() {
		var (
			m                   models.SentMessage
			wamid, params, errs sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.TemplateName, &m.PhoneNumber, &m.Status, &wamid, &params, &errs, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sent message: %w", err)
		}
		m.Wamid = nullString(wamid)
		m.Parameters = rawJSON(params)
		m.ErrorMessage = nullString(errs)
		items = append(items, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sent messages: %w", err)
	}

	return &models.SentMessagePage{Items: items, Total: total, Page: page.Number, PageSize: page.Size}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClientResponse(row rowScanner) (*models.ClientResponse, error) {
	var (
		r                                   models.ClientResponse
		content, imageURL, caption, payload sql.NullString
		wamid, contextWamid, name, metadata sql.NullString
		flags                               string
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
	if flags != "" {
		if err := json.Unmarshal([]byte(flags), &r.Flags); err != nil {
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

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}
