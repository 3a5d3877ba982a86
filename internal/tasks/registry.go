// Package tasks loads the task catalog from a JSON document of the form
// {"tasks": [...]}.
package tasks

import (
	"fmt"
	"os"
	"sync"
	"time"

	"bingo_bot/internal/model"
	"bingo_bot/pkg/logger"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type Config struct {
	ConfigPath string `mapstructure:"configPath"`
}

// Registry serves the catalog and re-reads the file when its modification
// time changes. An unreadable or invalid file yields an empty catalog.
type Registry struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	tasks   []model.Task
}

func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

func (r *Registry) List() []model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refresh()

	out := make([]model.Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

func (r *Registry) Find(id string) (model.Task, bool) {
	for _, task := range r.List() {
		if task.ID == id {
			return task, true
		}
	}
	return model.Task{}, false
}

func (r *Registry) refresh() {
	log := logger.Logger()

	info, err := os.Stat(r.path)
	if err != nil {
		log.Error("failed to stat task catalog", zap.String("path", r.path), zap.Error(err))
		r.tasks, r.modTime = nil, time.Time{}
		return
	}
	if r.tasks != nil && info.ModTime().Equal(r.modTime) {
		return
	}

	catalog, err := Load(r.path)
	if err != nil {
		log.Error("failed to load task catalog", zap.String("path", r.path), zap.Error(err))
		r.tasks, r.modTime = nil, time.Time{}
		return
	}

	r.tasks = catalog.Tasks
	if r.tasks == nil {
		r.tasks = []model.Task{}
	}
	r.modTime = info.ModTime()
	log.Info("task catalog loaded", zap.String("path", r.path), zap.Int("tasks", len(r.tasks)))
}

// Load reads and validates a catalog file. Entries without an id, with a
// non-positive reward or an unknown verification kind are rejected.
func Load(path string) (*model.TaskCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var catalog model.TaskCatalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("failed to decode task catalog: %w", err)
	}

	seen := make(map[string]bool, len(catalog.Tasks))
	for i, task := range catalog.Tasks {
		switch {
		case task.ID == "":
			return nil, fmt.Errorf("task %d has no id", i)
		case seen[task.ID]:
			return nil, fmt.Errorf("duplicate task id %q", task.ID)
		case task.Points <= 0:
			return nil, fmt.Errorf("task %q has non-positive points", task.ID)
		case task.Kind == model.VerificationChannel && task.ChannelRef == "":
			return nil, fmt.Errorf("channel task %q has no username", task.ID)
		case task.Kind != model.VerificationChannel && task.Kind != model.VerificationManual:
			return nil, fmt.Errorf("task %q has unknown type %q", task.ID, task.Kind)
		}
		seen[task.ID] = true
	}

	return &catalog, nil
}
