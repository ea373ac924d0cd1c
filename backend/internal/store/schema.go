package store

// MySQL has no CREATE INDEX IF NOT EXISTS and TEXT columns cannot carry defaults,
// so each driver gets its own DDL.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS memory_records (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		message_id TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_records_guild ON memory_records(guild_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS personas (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		age INTEGER NOT NULL DEFAULT 0,
		gender TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		backstory TEXT NOT NULL DEFAULT '',
		sarcastic_sweet REAL NOT NULL DEFAULT 0,
		chaotic_calm REAL NOT NULL DEFAULT 0,
		meme_frequency REAL NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS server_configs (
		guild_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL DEFAULT '',
		persona_id TEXT NOT NULL,
		allowed_commands TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_guild ON audit_logs(guild_id, created_at)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS memory_records (
		id VARCHAR(64) PRIMARY KEY,
		content TEXT NOT NULL,
		summary TEXT NOT NULL,
		guild_id VARCHAR(64) NOT NULL,
		channel_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(64) NOT NULL DEFAULT '',
		message_id VARCHAR(64) NOT NULL DEFAULT '',
		tags TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		INDEX idx_memory_records_guild (guild_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS personas (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		age INT NOT NULL DEFAULT 0,
		gender VARCHAR(64) NOT NULL DEFAULT '',
		country VARCHAR(128) NOT NULL DEFAULT '',
		backstory TEXT NOT NULL,
		sarcastic_sweet DOUBLE NOT NULL DEFAULT 0,
		chaotic_calm DOUBLE NOT NULL DEFAULT 0,
		meme_frequency DOUBLE NOT NULL DEFAULT 0
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS server_configs (
		guild_id VARCHAR(64) PRIMARY KEY,
		owner_id VARCHAR(64) NOT NULL DEFAULT '',
		persona_id VARCHAR(64) NOT NULL,
		allowed_commands TEXT NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id VARCHAR(64) PRIMARY KEY,
		guild_id VARCHAR(64) NOT NULL,
		action VARCHAR(128) NOT NULL,
		actor_id VARCHAR(64) NOT NULL DEFAULT '',
		details TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		INDEX idx_audit_logs_guild (guild_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
