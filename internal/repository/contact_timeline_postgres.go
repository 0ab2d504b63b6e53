package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mailrelay/pulsewire/internal/domain"
)

// ContactTimelineRepository implements domain.ContactTimelineRepository
type ContactTimelineRepository struct {
	workspaceRepo domain.WorkspaceRepository
}

// NewContactTimelineRepository creates a new contact timeline repository
func NewContactTimelineRepository(workspaceRepo domain.WorkspaceRepository) *ContactTimelineRepository {
	return &ContactTimelineRepository{
		workspaceRepo: workspaceRepo,
	}
}

// Create inserts a timeline entry raised from Go code, such as the
// automation.end event emitted by the automation executor.
func (r *ContactTimelineRepository) Create(ctx context.Context, workspaceID string, entry *domain.ContactTimelineEntry) error {
	workspaceDB, err := r.workspaceRepo.GetConnection(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to get workspace connection: %w", err)
	}

	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal timeline changes: %w", err)
	}

	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert("contact_timeline").
		Columns("email", "operation", "entity_type", "kind", "entity_id", "changes", "created_at").
		Values(entry.Email, entry.Operation, entry.EntityType, entry.Kind, entry.EntityID, changesJSON, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := workspaceDB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert timeline entry: %w", err)
	}

	return nil
}

// List retrieves timeline entries for a contact with cursor-based pagination
func (r *ContactTimelineRepository) List(ctx context.Context, workspaceID string, email string, limit int, cursor *string) ([]*domain.ContactTimelineEntry, *string, error) {
	workspaceDB, err := r.workspaceRepo.GetConnection(ctx, workspaceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get workspace connection: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT
			ct.id,
			ct.email,
			ct.operation,
			ct.entity_type,
			ct.kind,
			ct.changes,
			ct.entity_id,
			ct.created_at,
			CASE
				WHEN ct.entity_type = 'contact' THEN json_build_object(
					'email', c.email,
					'first_name', c.first_name,
					'last_name', c.last_name,
					'external_id', c.external_id
				)
				WHEN ct.entity_type = 'contact_list' THEN json_build_object(
					'id', l.id,
					'name', l.name,
					'status', cl.status
				)
				WHEN ct.entity_type = 'message_history' THEN json_build_object(
					'id', mh.id,
					'template_id', mh.template_id,
					'template_version', mh.template_version,
					'template_name', t_mh.name,
					'channel', mh.channel,
					'sent_at', mh.sent_at,
					'delivered_at', mh.delivered_at,
					'opened_at', mh.opened_at,
					'clicked_at', mh.clicked_at
				)
				WHEN ct.entity_type = 'automation' THEN json_build_object(
					'automation_id', ct.entity_id,
					'name', a.name
				)
				ELSE NULL
			END as entity_data
		FROM contact_timeline ct
		LEFT JOIN contacts c ON ct.entity_type = 'contact' AND ct.email = c.email
		LEFT JOIN contact_lists cl ON ct.entity_type = 'contact_list' AND ct.entity_id = cl.list_id AND ct.email = cl.email
		LEFT JOIN lists l ON cl.list_id = l.id
		LEFT JOIN message_history mh ON ct.entity_type = 'message_history' AND ct.entity_id = mh.id
		LEFT JOIN templates t_mh ON ct.entity_type = 'message_history' AND mh.template_id = t_mh.id AND mh.template_version = t_mh.version
		LEFT JOIN automations a ON ct.entity_type = 'automation' AND ct.entity_id = a.id
		WHERE ct.email = $1
	`

	args := []interface{}{email}
	argIndex := 2

	if cursor != nil && *cursor != "" {
		decodedCursor, err := decodeTimelineCursor(*cursor)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid cursor: %w", err)
		}

		parts := strings.Split(decodedCursor, "|")
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("invalid cursor format")
		}

		cursorTime, err := time.Parse(time.RFC3339Nano, parts[0])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid cursor timestamp: %w", err)
		}
		cursorID := parts[1]

		query += fmt.Sprintf(" AND (ct.created_at < $%d OR (ct.created_at = $%d AND ct.id < $%d))", argIndex, argIndex+1, argIndex+2)
		args = append(args, cursorTime, cursorTime, cursorID)
		argIndex += 3
	}

	query += fmt.Sprintf(" ORDER BY ct.created_at DESC, ct.id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1)

	rows, err := workspaceDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ContactTimelineEntry
	for rows.Next() {
		entry := &domain.ContactTimelineEntry{}
		var changesJSON []byte
		var entityDataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.Email,
			&entry.Operation,
			&entry.EntityType,
			&entry.Kind,
			&changesJSON,
			&entry.EntityID,
			&entry.CreatedAt,
			&entityDataJSON,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan timeline entry: %w", err)
		}

		if changesJSON != nil {
			changes := make(map[string]interface{})
			if err := json.Unmarshal(changesJSON, &changes); err != nil {
				return nil, nil, fmt.Errorf("failed to parse changes JSON: %w", err)
			}
			entry.Changes = changes
		}

		if entityDataJSON != nil {
			entityData := make(map[string]interface{})
			if err := json.Unmarshal(entityDataJSON, &entityData); err != nil {
				return nil, nil, fmt.Errorf("failed to parse entity data JSON: %w", err)
			}
			entry.EntityData = entityData
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating timeline rows: %w", err)
	}

	var nextCursor *string
	if len(entries) > limit {
		lastEntry := entries[limit-1]
		cursorStr := encodeTimelineCursor(lastEntry.CreatedAt, lastEntry.ID)
		nextCursor = &cursorStr
		entries = entries[:limit]
	}

	return entries, nextCursor, nil
}

// DeleteForEmail deletes all timeline entries for a contact email
func (r *ContactTimelineRepository) DeleteForEmail(ctx context.Context, workspaceID string, email string) error {
	workspaceDB, err := r.workspaceRepo.GetConnection(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to get workspace connection: %w", err)
	}

	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Delete("contact_timeline").
		Where(sq.Eq{"email": email}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := workspaceDB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete timeline entries: %w", err)
	}

	return nil
}

func encodeTimelineCursor(timestamp time.Time, id string) string {
	cursorData := fmt.Sprintf("%s|%s", timestamp.Format(time.RFC3339Nano), id)
	return base64.StdEncoding.EncodeToString([]byte(cursorData))
}

func decodeTimelineCursor(cursor string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
