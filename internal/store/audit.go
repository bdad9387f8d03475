package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit actions written by the case service.
const (
	ActionCreateCase = "create_case"
	ActionUpdateCase = "update_case"
	ActionDeleteCase = "delete_case"
	ActionRefresh    = "refresh"
)

// AuditEntry represents an audit log entry
type AuditEntry struct {
	ID         string                 `json:"id"`
	CaseNumber string                 `json:"case_number"`
	Action     string                 `json:"action"`   // "create_case", "update_case", "delete_case", "refresh"
	Actor      string                 `json:"actor"`    // user email or "system"
	Details    map[string]interface{} `json:"details"`  // action-specific data
	Metadata   map[string]string      `json:"metadata"` // table, row id, etc.
	Timestamp  time.Time              `json:"timestamp"`
	CreatedAt  time.Time              `json:"created_at"`
}

// AddAuditEntry adds an audit entry to the database
func (s *Store) AddAuditEntry(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.CreatedAt = time.Now()

	// Serialize details and metadata
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	query := `INSERT INTO audit_entries (
		id, case_number, action, actor, details, metadata, timestamp, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.exec(ctx, query,
		entry.ID, entry.CaseNumber, entry.Action, entry.Actor,
		string(detailsJSON), string(metadataJSON), entry.Timestamp.UnixNano(), entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// GetAuditEntries retrieves audit entries for a case, newest first
func (s *Store) GetAuditEntries(ctx context.Context, caseNumber string, limit int) ([]AuditEntry, error) {
	query := `SELECT id, case_number, action, actor, details, metadata, timestamp, created_at
		FROM audit_entries WHERE case_number = ? ORDER BY timestamp DESC`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.query(ctx, query, caseNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var metadataJSON *string
		var detailsJSON string
		var timestamp, createdAt int64

		err := rows.Scan(&entry.ID, &entry.CaseNumber, &entry.Action,
			&entry.Actor, &detailsJSON, &metadataJSON, &timestamp, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.Timestamp = time.Unix(0, timestamp)
		entry.CreatedAt = time.Unix(createdAt, 0)

		if err := json.Unmarshal([]byte(detailsJSON), &entry.Details); err != nil {
			entry.Details = map[string]interface{}{"raw": detailsJSON}
		}

		if metadataJSON != nil && *metadataJSON != "" {
			if err := json.Unmarshal([]byte(*metadataJSON), &entry.Metadata); err != nil {
				entry.Metadata = map[string]string{"raw": *metadataJSON}
			}
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// LogCaseAction logs a case-related action
func (s *Store) LogCaseAction(ctx context.Context, caseNumber, action, actor string, details map[string]interface{}) error {
	return s.AddAuditEntry(ctx, AuditEntry{
		CaseNumber: caseNumber,
		Action:     action,
		Actor:      actor,
		Details:    details,
	})
}
