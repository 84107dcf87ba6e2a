// Package store provides PostgreSQL-backed persistence for the
// orchestration core's metadata: Projects, Containers, ContainerConnections,
// ProjectEnvironments, Chats/Messages, AgentSteps, and Tasks (spec.md §3).
// ApprovalTicket and ShellSession are ephemeral and live in in-process state
// instead; internal/cache holds only derived, disposable data (ensure-locks,
// driver heartbeats) that is never the source of truth.
package store

import (
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Config holds metadata store connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Store wraps the metadata store's connection pool.
type Store struct {
	db *sql.DB
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
var identRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateConfig rejects connection parameters that could otherwise be used
// to smuggle extra options into the libpq connection string.
func validateConfig(config Config) error {
	if config.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(config.Host) == nil && !hostnameRegex.MatchString(config.Host) {
		return fmt.Errorf("invalid database host: %s", config.Host)
	}

	if config.Port == "" {
		return fmt.Errorf("database port cannot be empty")
	}
	if port, err := strconv.Atoi(config.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s (must be 1-65535)", config.Port)
	}

	if config.User == "" {
		return fmt.Errorf("database user cannot be empty")
	}
	if !identRegex.MatchString(config.User) {
		return fmt.Errorf("invalid database user: %s", config.User)
	}

	if config.DBName == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if !identRegex.MatchString(config.DBName) {
		return fmt.Errorf("invalid database name: %s", config.DBName)
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if config.SSLMode != "" {
		valid := false
		for _, mode := range validSSLModes {
			if config.SSLMode == mode {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid SSL mode: %s (must be one of: %s)", config.SSLMode, strings.Join(validSSLModes, ", "))
		}
	}

	return nil
}

// New opens a connection pool to the metadata store and verifies it with a
// ping.
func New(config Config) (*Store, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewForTesting wraps an existing *sql.DB (e.g. sqlmock) for unit tests.
// Not for production use; see New.
func NewForTesting(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying connection pool for callers that need to run
// ad hoc queries or open a transaction.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the metadata store schema if it does not already exist.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id VARCHAR(255) PRIMARY KEY,
			owner_id VARCHAR(255) NOT NULL,
			slug VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			deployment_mode VARCHAR(50) NOT NULL DEFAULT 'local-engine',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			deleted_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id)`,

		`CREATE TABLE IF NOT EXISTS containers (
			id VARCHAR(255) PRIMARY KEY,
			project_id VARCHAR(255) NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			dir_name VARCHAR(255) NOT NULL,
			image VARCHAR(500) NOT NULL,
			command TEXT,
			port INT,
			hostname VARCHAR(255),
			status VARCHAR(50) NOT NULL DEFAULT 'pending',
			status_message TEXT,
			endpoint VARCHAR(500),
			files_ready BOOLEAN NOT NULL DEFAULT false,
			resources_memory VARCHAR(50),
			resources_cpu VARCHAR(50),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(project_id, dir_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_containers_project ON containers(project_id)`,

		`CREATE TABLE IF NOT EXISTS container_connections (
			id VARCHAR(255) PRIMARY KEY,
			project_id VARCHAR(255) NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			from_container_id VARCHAR(255) NOT NULL REFERENCES containers(id) ON DELETE CASCADE,
			to_container_id VARCHAR(255) NOT NULL REFERENCES containers(id) ON DELETE CASCADE,
			kind VARCHAR(50) NOT NULL DEFAULT 'depends_on',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(from_container_id, to_container_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_container_connections_project ON container_connections(project_id)`,

		`CREATE TABLE IF NOT EXISTS project_environments (
			project_id VARCHAR(255) PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
			substrate_handle VARCHAR(500),
			storage_claim_id VARCHAR(255),
			file_manager_handle VARCHAR(500),
			status VARCHAR(50) NOT NULL DEFAULT 'created',
			progress INT NOT NULL DEFAULT 0,
			status_message TEXT,
			last_activity_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS chats (
			id VARCHAR(255) PRIMARY KEY,
			project_id VARCHAR(255) NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			title VARCHAR(500),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_project ON chats(project_id)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(255) PRIMARY KEY,
			chat_id VARCHAR(255) NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			role VARCHAR(20) NOT NULL,
			content TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(chat_id, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, sequence)`,

		`CREATE TABLE IF NOT EXISTS agent_steps (
			id VARCHAR(255) PRIMARY KEY,
			message_id VARCHAR(255) NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			iteration INT NOT NULL,
			thought TEXT,
			tool_calls JSONB NOT NULL DEFAULT '[]',
			response_fragment TEXT,
			is_complete BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(message_id, iteration)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_steps_message ON agent_steps(message_id, iteration)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(255) PRIMARY KEY,
			kind VARCHAR(50) NOT NULL,
			owner_id VARCHAR(255) NOT NULL,
			project_id VARCHAR(255) REFERENCES projects(id) ON DELETE CASCADE,
			target_resource VARCHAR(255),
			status VARCHAR(20) NOT NULL DEFAULT 'queued',
			result JSONB,
			error_kind VARCHAR(50),
			error_message TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,

		`CREATE TABLE IF NOT EXISTS tool_invocations (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			project_id VARCHAR(255) NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			tool VARCHAR(100) NOT NULL,
			params_digest VARCHAR(64) NOT NULL,
			risk_tier VARCHAR(20) NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT,
			duration_ms INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_invocations_project ON tool_invocations(project_id, created_at DESC)`,
	}

	for i, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	return nil
}
