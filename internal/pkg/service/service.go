// Package service assembles the webhook pipeline and its collaborators.
package service

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ssq-labs/commentpilot/app/repository"
	"github.com/ssq-labs/commentpilot/internal/pkg/agent"
	"github.com/ssq-labs/commentpilot/internal/pkg/archive"
	"github.com/ssq-labs/commentpilot/internal/pkg/config"
	"github.com/ssq-labs/commentpilot/internal/pkg/engagement"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
	"github.com/ssq-labs/commentpilot/internal/pkg/meta"
	"github.com/ssq-labs/commentpilot/internal/pkg/webhook"
)

// Settings groups the configuration sections the service needs.
type Settings struct {
	Pipeline config.Pipeline
	Meta     config.Meta
	LLM      config.LLM
	Archive  *archive.Config
}

// LoadSettings reads every section from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	var err error
	if s.Pipeline, err = config.LoadPipeline(); err != nil {
		return s, err
	}
	if s.Meta, err = config.LoadMeta(); err != nil {
		return s, err
	}
	if s.LLM, err = config.LoadLLM(); err != nil {
		return s, err
	}
	if s.Archive, err = archive.LoadConfig(); err != nil {
		return s, err
	}
	return s, nil
}

// Service holds the wired pipeline. Archiver is nil when archiving is off.
type Service struct {
	Settings Settings
	Repos    *repository.Repositories
	Manager  *jobqueue.Manager
	Pipeline *webhook.Pipeline
	Archiver *archive.Archiver
}

// New wires repositories, the LLM agent, the Graph API client and the
// engagement handler into a pipeline on the manager's queue. The archive
// store is opened only when enabled.
func New(ctx context.Context, db *gorm.DB, manager *jobqueue.Manager, settings Settings) (*Service, error) {
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	llm := agent.NewGeminiClient(settings.LLM)
	decider := agent.New(llm, settings.Pipeline.LLMTimeout)
	platform := meta.NewClient(settings.Meta.GraphBaseURL, settings.Pipeline.PlatformTimeout)
	handler := engagement.NewHandler(repos, decider, platform)

	svc := &Service{
		Settings: settings,
		Repos:    repos,
		Manager:  manager,
		Pipeline: webhook.NewPipeline(repos.WebhookLog, manager.GetQueue(), handler, settings.Pipeline),
	}

	if settings.Archive != nil && settings.Archive.Enabled {
		store, err := archive.NewS3Store(ctx, settings.Archive)
		if err != nil {
			return nil, fmt.Errorf("open archive store: %w", err)
		}
		if svc.Archiver, err = archive.NewArchiver(repos.WebhookLog, store, settings.Archive); err != nil {
			return nil, err
		}
	}

	log.Infof("[Service] Pipeline ready (model=%s, max_retries=%d, backoff=%s..%s)",
		llm.Model(), settings.Pipeline.MaxRetries, settings.Pipeline.BackoffBase, settings.Pipeline.BackoffMax)
	return svc, nil
}

// RegisterWorkers binds every job handler and the reconciliation sweep to
// the manager. Call before Manager.Start.
func (s *Service) RegisterWorkers() {
	queue := s.Manager.GetQueue()
	queue.SetStuckAfter(s.Settings.Pipeline.StaleAfter)
	s.Pipeline.RegisterJobs(queue)
	if s.Archiver != nil {
		s.Archiver.RegisterJobs(queue)
	}
	s.Manager.AddTask(s.Pipeline.SweepTask(s.Settings.Pipeline))
}
