package database

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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			api_version = excluded.api_version,
			business_id = excluded.business_id,
			phone_number_id = excluded.phone_number_id,
			waba_id = excluded.waba_id,
			request_timeout = excluded.request_timeout,
			webhook_secret = excluded.webhook_secret,
			webhook_url = excluded.webhook_url,
			updated_at = excluded.updated_at
	`

	insertClientResponseQuery = `
		INSERT INTO client_responses (
			id, phone_number, message_type, content, image_url, image_caption,
			button_payload, wamid, timestamp_received, context_wamid, client_name,
			metadata, flags, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	clientResponseColumns = `
		id, phone_number, message_type, content, image_url, image_caption,
		button_payload, wamid, timestamp_received, context_wamid, client_name,
		metadata, flags, created_at, updated_at
	`

	selectClientResponseByIDQuery = `SELECT ` + clientResponseColumns + ` FROM client_responses WHERE id = ?`

	selectClientResponseFlagsQuery = `SELECT flags FROM client_responses WHERE id = ?`

	updateClientResponseFlagsQuery = `UPDATE client_responses SET flags = ?, updated_at = ? WHERE id = ?`

	existsClientResponseByWamidQuery = `SELECT EXISTS(SELECT 1 FROM client_responses WHERE wamid = ?)`

	deleteClientResponseQuery = `DELETE FROM client_responses WHERE id = ?`

	insertAPILogQuery = `
		INSERT INTO api_logs (
			id, endpoint, request_method, request_body, response_body,
			response_status, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	apiLogColumns = `
		id, endpoint, request_method, request_body, response_body,
		response_status, error_message, created_at
	`

	insertSentMessageQuery = `
		INSERT INTO sent_messages (
			id, template_name, phone_number, status, wamid, parameters,
			error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	updateSentMessageStatusQuery = `
		UPDATE sent_messages
		SET status = ?, error_message = COALESCE(?, error_message), updated_at = ?
		WHERE wamid = ?
	`

	selectSentMessagesQuery = `
		SELECT id, template_name, phone_number, status, wamid, parameters,
			   error_message, created_at, updated_at
		FROM sent_messages
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	countSentMessagesQuery = `SELECT COUNT(*) FROM sent_messages`

	selectAppliedMigrationsQuery = `SELECT version FROM schema_migrations`

	insertAppliedMigrationQuery = `INSERT INTO schema_migrations (version) VALUES (?)`
)
