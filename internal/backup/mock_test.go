package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clavora/clavora/internal/command"
	"github.com/clavora/clavora/internal/model"
)

// ---------- Fake command runner ----------

// fakeRunner records every command and answers through a handler.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []command.Command
	handler func(c command.Command) (command.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, c command.Command) (command.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(c)
	}
	return command.Result{}, nil
}

func (f *fakeRunner) commands() []command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Command(nil), f.calls...)
}

// ---------- In-memory catalog ----------

// memCatalog implements Catalog for orchestrator tests.
type memCatalog struct {
	mu   sync.Mutex
	rows map[string]*model.Backup
}

func newMemCatalog() *memCatalog {
	return &memCatalog{rows: map[string]*model.Backup{}}
}

func (c *memCatalog) Create(_ context.Context, b *model.Backup) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rows[b.Name]; ok {
		return nil
	}
	cp := *b
	c.rows[b.Name] = &cp
	return nil
}

func (c *memCatalog) ExistsByName(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rows[name]
	return ok, nil
}

func (c *memCatalog) UpdateStatus(_ context.Context, name, status string, errMsg *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.rows[name]
	if !ok {
		return fmt.Errorf("backup %s not found", name)
	}
	b.Status = status
	b.ErrorMessage = errMsg
	return nil
}

func (c *memCatalog) MarkCompleted(_ context.Context, name, path string, sizeBytes int64, completedAt time.Time, warning *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.rows[name]
	if !ok {
		return fmt.Errorf("backup %s not found", name)
	}
	b.Status = model.BackupStatusCompleted
	b.Path = path
	b.SizeBytes = sizeBytes
	b.CompletedAt = &completedAt
	b.ErrorMessage = warning
	return nil
}

func (c *memCatalog) get(name string) *model.Backup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows[name]
}

// ---------- Fake component ----------

// fakeComponent is a scriptable Component.
type fakeComponent struct {
	name            string
	fatal           bool
	exportWarnings  []string
	exportErr       error
	restoreWarnings []string
	restoreErr      error

	exportCalls  int
	restoreCalls int
}

func (f *fakeComponent) Name() string { return f.name }
func (f *fakeComponent) Fatal() bool  { return f.fatal }

func (f *fakeComponent) Export(_ context.Context, _ string) ([]string, error) {
	f.exportCalls++
	return f.exportWarnings, f.exportErr
}

func (f *fakeComponent) Restore(_ context.Context, _ string) ([]string, error) {
	f.restoreCalls++
	return f.restoreWarnings, f.restoreErr
}
