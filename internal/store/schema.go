package store

// schema выполняется по порядку при Migrate. Запросы совместимы и с DuckDB, и с PostgreSQL.
var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS slack_messages_id_seq`,
	`CREATE TABLE IF NOT EXISTS slack_messages (
		id            BIGINT PRIMARY KEY DEFAULT nextval('slack_messages_id_seq'),
		channel       VARCHAR NOT NULL,
		"user"        VARCHAR NOT NULL,
		msg_timestamp TIMESTAMP NOT NULL,
		text          VARCHAR NOT NULL,
		upload_batch  VARCHAR NOT NULL,
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slack_messages_channel_ts ON slack_messages (channel, msg_timestamp)`,

	`CREATE SEQUENCE IF NOT EXISTS events_id_seq`,
	`CREATE TABLE IF NOT EXISTS events (
		id             BIGINT PRIMARY KEY DEFAULT nextval('events_id_seq'),
		title          VARCHAR NOT NULL,
		date           DATE NOT NULL,
		start_time     VARCHAR,
		end_time       VARCHAR,
		description    VARCHAR,
		source_channel VARCHAR NOT NULL,
		raw_message_id VARCHAR,
		status         VARCHAR NOT NULL DEFAULT 'pending',
		created_at     TIMESTAMP NOT NULL,
		UNIQUE (raw_message_id, title)
	)`,
}
