package migrations

import (
	"context"
	"fmt"

	"github.com/mailrelay/pulsewire/config"
	"github.com/mailrelay/pulsewire/internal/domain"
)

// V23Migration adds contact tagging, automation settings (send window, goal,
// exit conditions, re-entry policy), and re-entry gating in the enrollment
// function.
type V23Migration struct{}

func (m *V23Migration) GetMajorVersion() float64 {
	return 23.0
}

func (m *V23Migration) HasSystemUpdate() bool {
	return false
}

func (m *V23Migration) HasWorkspaceUpdate() bool {
	return true
}

func (m *V23Migration) ShouldRestartServer() bool {
	return false
}

func (m *V23Migration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	return nil
}

func (m *V23Migration) UpdateWorkspace(ctx context.Context, cfg *config.Config, workspace *domain.Workspace, db DBExecutor) error {
	// PART 1: Contact tags, used by tag nodes and has_tag conditions
	_, err := db.ExecContext(ctx, `
		ALTER TABLE contacts
		ADD COLUMN IF NOT EXISTS tags JSONB NOT NULL DEFAULT '[]'::jsonb
	`)
	if err != nil {
		return fmt.Errorf("failed to add contacts tags column: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_contacts_tags ON contacts USING GIN (tags)
	`)
	if err != nil {
		return fmt.Errorf("failed to create contacts tags index: %w", err)
	}

	// PART 2: Automation-level settings (send window, goal, exit conditions, re-entry policy)
	_, err = db.ExecContext(ctx, `
		ALTER TABLE automations
		ADD COLUMN IF NOT EXISTS settings JSONB NOT NULL DEFAULT '{}'::jsonb
	`)
	if err != nil {
		return fmt.Errorf("failed to add automations settings column: %w", err)
	}

	// PART 3: terminated_at marks when a contact_automation left the active state,
	// used to evaluate reentryWaitDays
	_, err = db.ExecContext(ctx, `
		ALTER TABLE contact_automations
		ADD COLUMN IF NOT EXISTS terminated_at TIMESTAMPTZ
	`)
	if err != nil {
		return fmt.Errorf("failed to add contact_automations terminated_at column: %w", err)
	}

	// Backfill terminated_at for rows already in a terminal state
	_, err = db.ExecContext(ctx, `
		UPDATE contact_automations
		SET terminated_at = COALESCE(scheduled_at, entered_at)
		WHERE status IN ('completed', 'exited', 'failed')
		AND terminated_at IS NULL
	`)
	if err != nil {
		return fmt.Errorf("failed to backfill contact_automations terminated_at: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_contact_automations_reentry
		ON contact_automations(automation_id, contact_email, terminated_at)
		WHERE terminated_at IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("failed to create contact_automations reentry index: %w", err)
	}

	// PART 4: Re-entry gating in the enrollment function. A contact already
	// active in the automation is always skipped; a contact who previously
	// exited is skipped unless the automation allows re-entry and the wait
	// period has elapsed.
	_, err = db.ExecContext(ctx, `
		CREATE OR REPLACE FUNCTION automation_enroll_contact(
			p_automation_id VARCHAR(36),
			p_contact_email VARCHAR(255),
			p_root_node_id VARCHAR(36),
			p_list_id VARCHAR(36),
			p_frequency VARCHAR(20),
			p_allow_reentry BOOLEAN DEFAULT FALSE,
			p_reentry_wait_days INT DEFAULT 0
		) RETURNS VOID AS $$
		DECLARE
			v_is_subscribed BOOLEAN;
			v_already_triggered BOOLEAN;
			v_already_active BOOLEAN;
			v_last_terminated_at TIMESTAMPTZ;
			v_new_id VARCHAR(36);
		BEGIN
			-- 1. Check list subscription (only if list_id is provided)
			IF p_list_id IS NOT NULL AND p_list_id != '' THEN
				SELECT EXISTS(
					SELECT 1 FROM contact_lists
					WHERE email = p_contact_email
					AND list_id = p_list_id
					AND status = 'active'
					AND deleted_at IS NULL
				) INTO v_is_subscribed;

				IF NOT v_is_subscribed THEN
					RETURN;  -- Contact not subscribed to list, skip enrollment
				END IF;
			END IF;

			-- 2. For "once" frequency, check if already triggered
			IF p_frequency = 'once' THEN
				SELECT EXISTS(
					SELECT 1 FROM automation_trigger_log
					WHERE automation_id = p_automation_id
					AND contact_email = p_contact_email
				) INTO v_already_triggered;

				IF v_already_triggered THEN
					RETURN;  -- Already triggered for this contact, skip
				END IF;

				-- Record trigger for deduplication
				INSERT INTO automation_trigger_log (id, automation_id, contact_email, triggered_at)
				VALUES (gen_random_uuid()::text, p_automation_id, p_contact_email, NOW())
				ON CONFLICT (automation_id, contact_email) DO NOTHING;
			END IF;

			-- 3. Never double-enroll a contact who is still active in this automation
			SELECT EXISTS(
				SELECT 1 FROM contact_automations
				WHERE automation_id = p_automation_id
				AND contact_email = p_contact_email
				AND status = 'active'
			) INTO v_already_active;

			IF v_already_active THEN
				RETURN;
			END IF;

			-- 4. Re-entry policy for contacts who previously went through this automation
			SELECT MAX(terminated_at) INTO v_last_terminated_at
			FROM contact_automations
			WHERE automation_id = p_automation_id
			AND contact_email = p_contact_email
			AND terminated_at IS NOT NULL;

			IF v_last_terminated_at IS NOT NULL THEN
				IF NOT p_allow_reentry THEN
					RETURN;  -- Re-entry disabled, contact already completed/exited once
				END IF;

				IF p_reentry_wait_days > 0 AND v_last_terminated_at > (NOW() - (p_reentry_wait_days || ' days')::INTERVAL) THEN
					RETURN;  -- Still within the re-entry wait window
				END IF;
			END IF;

			-- 5. Generate new ID for contact_automation
			v_new_id := gen_random_uuid()::text;

			-- 6. Enroll contact in automation
			INSERT INTO contact_automations (
				id, automation_id, contact_email, current_node_id,
				status, entered_at, scheduled_at
			) VALUES (
				v_new_id,
				p_automation_id,
				p_contact_email,
				p_root_node_id,
				'active',
				NOW(),
				NOW()
			);

			-- 7. Increment enrolled stat
			UPDATE automations
			SET stats = jsonb_set(
				COALESCE(stats, '{}'::jsonb),
				'{enrolled}',
				to_jsonb(COALESCE((stats->>'enrolled')::int, 0) + 1)
			),
			updated_at = NOW()
			WHERE id = p_automation_id;

			-- 8. Log node execution entry
			INSERT INTO automation_node_executions (
				id, contact_automation_id, automation_id, node_id, node_type, action, entered_at, output
			) VALUES (
				gen_random_uuid()::text,
				v_new_id,
				p_automation_id,
				p_root_node_id,
				'trigger',
				'entered',
				NOW(),
				'{}'::jsonb
			);

			-- 9. Create automation.start timeline event
			INSERT INTO contact_timeline (email, operation, entity_type, kind, entity_id, changes, created_at)
			VALUES (
				p_contact_email,
				'insert',
				'automation',
				'automation.start',
				p_automation_id,
				jsonb_build_object(
					'automation_id', jsonb_build_object('new', p_automation_id),
					'root_node_id', jsonb_build_object('new', p_root_node_id)
				),
				NOW()
			);

		END;
		$$ LANGUAGE plpgsql
	`)
	if err != nil {
		return fmt.Errorf("failed to update automation_enroll_contact function: %w", err)
	}

	return nil
}

func init() {
	Register(&V23Migration{})
}
