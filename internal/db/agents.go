package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Agent types. Unknown types fall through to generic handling.
const (
	AgentTypeDesign      = "design"
	AgentTypeDevelopment = "development"
	AgentTypeContent     = "content"
	AgentTypeAnalysis    = "analysis"
)

// Agent represents an AI agent definition stored in the database.
type Agent struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Description   string         `json:"description,omitempty"`
	Capabilities  []string       `json:"capabilities"`
	Status        string         `json:"status"`
	Configuration map[string]any `json:"configuration,omitempty"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

// SaveAgent saves or updates an agent definition.
func (adb *AppDB) SaveAgent(a *Agent) error {
	capsJSON, err := json.Marshal(a.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal agent capabilities: %w", err)
	}
	configJSON, err := json.Marshal(a.Configuration)
	if err != nil {
		return fmt.Errorf("marshal agent configuration: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if a.CreatedAt == "" {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = "active"
	}

	query := `
		INSERT INTO ai_agents (id, name, type, description, capabilities, status, configuration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			description = excluded.description,
			capabilities = excluded.capabilities,
			status = excluded.status,
			configuration = excluded.configuration,
			updated_at = excluded.updated_at
	`

	_, err = adb.Exec(query,
		a.ID, a.Name, a.Type, a.Description, string(capsJSON),
		a.Status, string(configJSON), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent retrieves an agent by ID. Returns nil if not found.
func (adb *AppDB) GetAgent(id string) (*Agent, error) {
	query := `
		SELECT id, name, type, description, capabilities, status, configuration, created_at, updated_at
		FROM ai_agents
		WHERE id = ?
	`

	var a Agent
	var description, capsJSON, configJSON sql.NullString
	err := adb.QueryRow(query, id).Scan(
		&a.ID, &a.Name, &a.Type, &description, &capsJSON,
		&a.Status, &configJSON, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}

	if err := fillAgentJSON(&a, description, capsJSON, configJSON); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActiveAgents returns all active agents.
func (adb *AppDB) ListActiveAgents() ([]*Agent, error) {
	query := `
		SELECT id, name, type, description, capabilities, status, configuration, created_at, updated_at
		FROM ai_agents
		WHERE status = 'active'
		ORDER BY name ASC
	`

	rows, err := adb.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		var description, capsJSON, configJSON sql.NullString
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Type, &description, &capsJSON,
			&a.Status, &configJSON, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if err := fillAgentJSON(&a, description, capsJSON, configJSON); err != nil {
			return nil, err
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// CountAgents returns the number of agents.
func (adb *AppDB) CountAgents() (int, error) {
	var count int
	if err := adb.QueryRow("SELECT COUNT(*) FROM ai_agents").Scan(&count); err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return count, nil
}

func fillAgentJSON(a *Agent, description, capsJSON, configJSON sql.NullString) error {
	if description.Valid {
		a.Description = description.String
	}
	if capsJSON.Valid && capsJSON.String != "" {
		if err := json.Unmarshal([]byte(capsJSON.String), &a.Capabilities); err != nil {
			return fmt.Errorf("unmarshal agent capabilities: %w", err)
		}
	}
	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &a.Configuration); err != nil {
			return fmt.Errorf("unmarshal agent configuration: %w", err)
		}
	}
	return nil
}
