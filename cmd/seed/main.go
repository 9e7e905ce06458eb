// Command seed loads development fixtures into the local Postgres
// database: a dev user, one chat conversation and one completed debug
// workflow with its step log.
package main

import (
	"context"
	"encoding/json"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"toolflow/internal/auth"
	"toolflow/internal/config"
	"toolflow/internal/logging"
	"toolflow/internal/repository"
	"toolflow/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DBConnString())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	// Dev user matching the auth bypass identity.
	user, err := store.GetUser(ctx, auth.DevUserID)
	if err != nil {
		log.Fatalf("Failed to look up dev user: %v", err)
	}
	if user == nil {
		user, err = store.CreateUser(ctx, &models.User{
			ID:    auth.DevUserID,
			Email: auth.DevUserID,
		})
		if err != nil {
			log.Fatalf("Failed to create dev user: %v", err)
		}
		logger.Info("created dev user", "user_id", user.ID)
	}

	title := "Sample debug session"
	conv, err := store.CreateConversation(ctx, &models.Conversation{
		Title:    &title,
		ToolType: "debug",
		OwnerID:  user.ID,
	})
	if err != nil {
		log.Fatalf("Failed to create conversation: %v", err)
	}

	running := models.WorkflowRunning
	wf, err := store.CreateWorkflow(ctx, &models.Workflow{
		ConversationID: conv.ID,
		ToolType:       "debug",
		Status:         running,
		CurrentStep:    1,
		TotalSteps:     2,
	})
	if err != nil {
		log.Fatalf("Failed to create workflow: %v", err)
	}

	steps := []*models.WorkflowStep{
		{WorkflowID: wf.ID, StepNumber: 1, Findings: "null pointer suspected in request handler", Status: models.StepRunning},
		{WorkflowID: wf.ID, StepNumber: 1, Findings: "confirmed: conversation id dereferenced before nil check", Status: models.StepCompleted},
		{WorkflowID: wf.ID, StepNumber: 2, Findings: "fix verified against regression test", Status: models.StepCompleted},
	}
	for _, step := range steps {
		if _, err := store.CreateWorkflowStep(ctx, step); err != nil {
			log.Fatalf("Failed to create step: %v", err)
		}
	}

	completed := models.WorkflowCompleted
	finalStep := 2
	result, _ := json.Marshal(models.ToolResponse{
		Status:  models.ResponseStatusSuccess,
		Content: "root cause: nil conversation id dereference",
	})
	if _, err := store.AdvanceWorkflow(ctx, wf.ID, repository.WorkflowUpdate{
		Status:      &completed,
		CurrentStep: &finalStep,
		Result:      result,
	}); err != nil {
		log.Fatalf("Failed to complete workflow: %v", err)
	}

	logger.Info("seeded fixtures",
		"conversation_id", conv.ID,
		"workflow_id", wf.ID,
	)
}
