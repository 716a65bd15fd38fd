package statefile

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rpggio/qasync/internal/domain/project"
	"github.com/rpggio/qasync/internal/repository"
)

// ProjectRepository implements project.Repository on a state file
type ProjectRepository struct {
	store *Store
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(store *Store) *ProjectRepository {
	return &ProjectRepository{store: store}
}

// Create adds a project document
func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	return r.store.update(ctx, func(doc *document) error {
		if _, ok := doc.Projects[proj.Name]; ok {
			return repository.ErrDuplicate
		}
		p := &projectDoc{
			Name:        proj.Name,
			CreatedAt:   proj.CreatedAt.UTC(),
			UpdatedAt:   proj.UpdatedAt.UTC(),
			Config:      toConfigDoc(proj.Config),
			SyncRecords: map[string]recordDoc{},
			Cursors:     map[string]cursorDoc{},
			Intents:     map[string]intentDoc{},
		}
		if proj.Scenarios != nil {
			p.ScenarioProgress = &scenarioDoc{Total: proj.Scenarios.Total, Completed: proj.Scenarios.Completed}
		}
		return doc.put(p)
	})
}

// Get retrieves a project by name
func (r *ProjectRepository) Get(ctx context.Context, name string) (*project.Project, error) {
	var out *project.Project
	err := r.store.view(ctx, func(doc *document) error {
		p, err := doc.project(name)
		if err != nil {
			return err
		}
		out = fromProjectDoc(p)
		return nil
	})
	return out, err
}

// List returns all projects sorted by name. Undecodable projects are listed
// with Corrupt set instead of failing the whole listing.
func (r *ProjectRepository) List(ctx context.Context) ([]project.ProjectSummary, error) {
	var summaries []project.ProjectSummary
	err := r.store.view(ctx, func(doc *document) error {
		for name := range doc.Projects {
			p, err := doc.project(name)
			if errors.Is(err, repository.ErrPersistenceCorruption) {
				summaries = append(summaries, project.ProjectSummary{Name: name, Corrupt: true})
				continue
			}
			if err != nil {
				return err
			}
			summaries = append(summaries, project.ProjectSummary{
				Name:        p.Name,
				Channel:     p.Config.Channel,
				Thread:      p.Config.Thread,
				RecordCount: len(p.SyncRecords),
				CreatedAt:   p.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

// UpdateConfig replaces a project's config
func (r *ProjectRepository) UpdateConfig(ctx context.Context, name string, cfg project.Config, updatedAt time.Time) error {
	return r.store.update(ctx, func(doc *document) error {
		p, err := doc.project(name)
		if err != nil {
			return err
		}
		p.Config = toConfigDoc(cfg)
		p.UpdatedAt = updatedAt.UTC()
		return doc.put(p)
	})
}

// SetScenarioProgress stores scenario counts for a project
func (r *ProjectRepository) SetScenarioProgress(ctx context.Context, name string, progress project.ScenarioProgress, updatedAt time.Time) error {
	return r.store.update(ctx, func(doc *document) error {
		p, err := doc.project(name)
		if err != nil {
			return err
		}
		p.ScenarioProgress = &scenarioDoc{Total: progress.Total, Completed: progress.Completed}
		p.UpdatedAt = updatedAt.UTC()
		return doc.put(p)
	})
}

func toConfigDoc(cfg project.Config) configDoc {
	return configDoc{
		SiteURL:             cfg.SiteURL,
		PRDRef:              cfg.PRDRef,
		Channel:             cfg.Channel,
		Thread:              cfg.Thread,
		TrackerProjectID:    cfg.TrackerProjectID,
		TrackerProjectURL:   cfg.TrackerProjectURL,
		PollIntervalSeconds: cfg.PollIntervalSeconds,
	}
}

func fromProjectDoc(p *projectDoc) *project.Project {
	proj := &project.Project{
		Name: p.Name,
		Config: project.Config{
			SiteURL:             p.Config.SiteURL,
			PRDRef:              p.Config.PRDRef,
			Channel:             p.Config.Channel,
			Thread:              p.Config.Thread,
			TrackerProjectID:    p.Config.TrackerProjectID,
			TrackerProjectURL:   p.Config.TrackerProjectURL,
			PollIntervalSeconds: p.Config.PollIntervalSeconds,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.ScenarioProgress != nil {
		proj.Scenarios = &project.ScenarioProgress{Total: p.ScenarioProgress.Total, Completed: p.ScenarioProgress.Completed}
	}
	return proj
}
