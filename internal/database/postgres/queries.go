package postgres

const (
	selectLatestSettingsQuery = `
		SELECT id, access_token, api_version, business_id, phone_number_id, waba_id,
			   request_timeout, webhook_secret, webhook_url, created_at, updated_at
		FROM api_settings
		ORDER BY updated_at DESC
		LIMIT 1
	`

	upsertSettingsQuery = `
		INSERT INTO api_settings (
			id, access_token, api_version, business_id, phone_number_id, waba_id,
			request_timeout, webhook_secret, webhook_url, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			api_version = EXCLUDED.api_version,
			business_id = EXCLUDED.business_id,
			phone_number_id = EXCLUDED.phone_number_id,
			waba_id = EXCLUDED.waba_id,
			request_timeout = EXCLUDED.request_timeout,
			webhook_secret = EXCLUDED.webhook_secret,
			webhook_url = EXCLUDED.webhook_url,
			updated_at = EXCLUDED.updated_at
	`

	clientResponseColumns = `
		id, phone_number, message_type, content, image_url, image_caption,
		button_payload, wamid, timestamp_received, context_wamid, client_name,
		metadata, flags, created_at, updated_at
	`

	insertClientResponseQuery = `
		INSERT INTO client_responses (` + clientResponseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	selectClientResponseByIDQuery = `SELECT ` + clientResponseColumns + ` FROM client_responses WHERE id = $1`

	existsClientResponseByWamidQuery = `SELECT EXISTS(SELECT 1 FROM client_responses WHERE wamid = $1)`

	// Flags are flat, so stripping nulls after the merge removes exactly the
	// keys the patch set to null.
	mergeClientResponseFlagsQuery = `
		UPDATE client_responses
		SET flags = jsonb_strip_nulls(flags || $1::jsonb), updated_at = $2
		WHERE id = $3
	`

	deleteClientResponseQuery = `DELETE FROM client_responses WHERE id = $1`

	insertAPILogQuery = `
		INSERT INTO api_logs (
			id, endpoint, request_method, request_body, response_body,
			response_status, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	apiLogColumns = `
		id, endpoint, request_method, request_body, response_body,
		response_status, error_message, created_at
	`

	insertSentMessageQuery = `
		INSERT INTO sent_messages (
			id, template_name, phone_number, status, wamid, parameters,
			error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	updateSentMessageStatusQuery = `
		UPDATE sent_messages
		SET status = $1, error_message = COALESCE($2, error_message), updated_at = $3
		WHERE wamid = $4
	`

	selectSentMessagesQuery = `
		SELECT id, template_name, phone_number, status, wamid, parameters,
			   error_message, created_at, updated_at
		FROM sent_messages
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	countSentMessagesQuery = `SELECT COUNT(*) FROM sent_messages`

	selectAppliedMigrationsQuery = `SELECT version FROM schema_migrations`

	insertAppliedMigrationQuery = `INSERT INTO schema_migrations (version) VALUES ($1)`
)
