package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"toolflow/internal/apperr"
	"toolflow/pkg/models"
)

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) (*models.Workflow, error) {
	stored := *wf
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()
	stored.UpdatedAt = stored.CreatedAt

	_, err := s.db.Exec(ctx,
		`INSERT INTO workflows (id, conversation_id, tool_type, status, current_step, total_steps, continuation_id, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		stored.ID, stored.ConversationID, stored.ToolType, stored.Status, stored.CurrentStep,
		stored.TotalSteps, stored.ContinuationID, stored.Result, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var w models.Workflow
	err := s.db.QueryRow(ctx,
		`SELECT id, conversation_id, tool_type, status, current_step, total_steps, continuation_id, result, created_at, updated_at
		FROM workflows WHERE id = $1`, id).
		Scan(&w.ID, &w.ConversationID, &w.ToolType, &w.Status, &w.CurrentStep,
			&w.TotalSteps, &w.ContinuationID, &w.Result, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, conversationID string) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, conversation_id, tool_type, status, current_step, total_steps, continuation_id, result, created_at, updated_at
		FROM workflows WHERE conversation_id = $1 ORDER BY created_at`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wfs []*models.Workflow
	for rows.Next() {
		var w models.Workflow
		if err := rows.Scan(&w.ID, &w.ConversationID, &w.ToolType, &w.Status, &w.CurrentStep,
			&w.TotalSteps, &w.ContinuationID, &w.Result, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		wfs = append(wfs, &w)
	}
	return wfs, rows.Err()
}

// AdvanceWorkflow applies the update only while the workflow is
// non-terminal. The row-level guard makes the read-modify-write safe
// across processes: two racing completions cannot both win, and
// current_step never moves backward.
func (s *PostgresStore) AdvanceWorkflow(ctx context.Context, id string, upd WorkflowUpdate) (*models.Workflow, error) {
	var w models.Workflow
	err := s.db.QueryRow(ctx,
		`UPDATE workflows SET
			status = COALESCE($2, status),
			current_step = GREATEST(current_step, COALESCE($3, current_step)),
			continuation_id = COALESCE($4, continuation_id),
			result = COALESCE($5, result),
			updated_at = $6
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
		RETURNING id, conversation_id, tool_type, status, current_step, total_steps, continuation_id, result, created_at, updated_at`,
		id, upd.Status, upd.CurrentStep, upd.ContinuationID, upd.Result, now()).
		Scan(&w.ID, &w.ConversationID, &w.ToolType, &w.Status, &w.CurrentStep,
			&w.TotalSteps, &w.ContinuationID, &w.Result, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either absent or already terminal; distinguish for the caller.
		existing, gerr := s.GetWorkflow(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if existing == nil {
			return nil, apperr.Newf(apperr.NotFound, "workflow %s not found", id)
		}
		return nil, apperr.Newf(apperr.Conflict, "workflow %s is %s and accepts no further updates", id, existing.Status)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// RewindWorkflow sets current_step back to step as part of a backtrack.
// Unlike AdvanceWorkflow it may lower current_step, but still refuses
// terminal workflows.
func (s *PostgresStore) RewindWorkflow(ctx context.Context, id string, step int) (*models.Workflow, error) {
	var w models.Workflow
	err := s.db.QueryRow(ctx,
		`UPDATE workflows SET current_step = $2, updated_at = $3
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
		RETURNING id, conversation_id, tool_type, status, current_step, total_steps, continuation_id, result, created_at, updated_at`,
		id, step, now()).
		Scan(&w.ID, &w.ConversationID, &w.ToolType, &w.Status, &w.CurrentStep,
			&w.TotalSteps, &w.ContinuationID, &w.Result, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, gerr := s.GetWorkflow(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if existing == nil {
			return nil, apperr.Newf(apperr.NotFound, "workflow %s not found", id)
		}
		return nil, apperr.Newf(apperr.Conflict, "workflow %s is %s and accepts no further updates", id, existing.Status)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// --- workflow steps ---

func (s *PostgresStore) CreateWorkflowStep(ctx context.Context, step *models.WorkflowStep) (*models.WorkflowStep, error) {
	stored := *step
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()

	meta, err := marshalMeta(stored.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_steps (id, workflow_id, step_number, findings, hypothesis, confidence, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		stored.ID, stored.WorkflowID, stored.StepNumber, stored.Findings, stored.Hypothesis,
		stored.Confidence, stored.Status, meta, stored.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *PostgresStore) ListWorkflowSteps(ctx context.Context, workflowID string) ([]*models.WorkflowStep, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, workflow_id, step_number, findings, hypothesis, confidence, status, metadata, created_at
		FROM workflow_steps WHERE workflow_id = $1 ORDER BY step_number, created_at`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*models.WorkflowStep
	for rows.Next() {
		var st models.WorkflowStep
		var meta []byte
		if err := rows.Scan(&st.ID, &st.WorkflowID, &st.StepNumber, &st.Findings, &st.Hypothesis,
			&st.Confidence, &st.Status, &meta, &st.CreatedAt); err != nil {
			return nil, err
		}
		if st.Metadata, err = unmarshalMeta(meta); err != nil {
			return nil, err
		}
		steps = append(steps, &st)
	}
	return steps, rows.Err()
}

func (s *PostgresStore) SupersedeSteps(ctx context.Context, workflowID string, fromStep int) (int, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_steps SET status = $3
		WHERE workflow_id = $1 AND step_number >= $2 AND status <> $3`,
		workflowID, fromStep, models.StepSuperseded)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// --- files ---

func (s *PostgresStore) CreateFile(ctx context.Context, file *models.File) (*models.File, error) {
	stored := *file
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()

	_, err := s.db.Exec(ctx,
		`INSERT INTO files (id, owner_id, conversation_id, step_id, name, content_type, size_bytes, storage_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		stored.ID, stored.OwnerID, stored.ConversationID, stored.StepID, stored.Name,
		stored.ContentType, stored.SizeBytes, stored.StoragePath, stored.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *PostgresStore) GetFile(ctx context.Context, id string) (*models.File, error) {
	var f models.File
	err := s.db.QueryRow(ctx,
		`SELECT id, owner_id, conversation_id, step_id, name, content_type, size_bytes, storage_path, created_at
		FROM files WHERE id = $1`, id).
		Scan(&f.ID, &f.OwnerID, &f.ConversationID, &f.StepID, &f.Name,
			&f.ContentType, &f.SizeBytes, &f.StoragePath, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.NotFound, "file %s not found", id)
	}
	return nil
}

// --- user settings ---

func (s *PostgresStore) CreateUserSettings(ctx context.Context, settings *models.UserSettings) (*models.UserSettings, error) {
	stored := *settings
	stored.UpdatedAt = now()

	_, err := s.db.Exec(ctx,
		`INSERT INTO user_settings (user_id, default_model, temperature, use_web_search, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		stored.UserID, stored.DefaultModel, stored.Temperature, stored.UseWebSearch, stored.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *PostgresStore) GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	var us models.UserSettings
	err := s.db.QueryRow(ctx,
		`SELECT user_id, default_model, temperature, use_web_search, updated_at
		FROM user_settings WHERE user_id = $1`, userID).
		Scan(&us.UserID, &us.DefaultModel, &us.Temperature, &us.UseWebSearch, &us.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &us, nil
}

func (s *PostgresStore) UpdateUserSettings(ctx context.Context, userID string, upd SettingsUpdate) (*models.UserSettings, error) {
	var us models.UserSettings
	err := s.db.QueryRow(ctx,
		`UPDATE user_settings SET
			default_model = COALESCE($2, default_model),
			temperature = COALESCE($3, temperature),
			use_web_search = COALESCE($4, use_web_search),
			updated_at = $5
		WHERE user_id = $1
		RETURNING user_id, default_model, temperature, use_web_search, updated_at`,
		userID, upd.DefaultModel, upd.Temperature, upd.UseWebSearch, now()).
		Scan(&us.UserID, &us.DefaultModel, &us.Temperature, &us.UseWebSearch, &us.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "settings for user %s not found", userID)
	}
	if err != nil {
		return nil, err
	}
	return &us, nil
}

// --- sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) (*models.Session, error) {
	stored := *session
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()

	_, err := s.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		stored.ID, stored.UserID, stored.ExpiresAt, stored.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.NotFound, "session %s not found", id)
	}
	return nil
}
