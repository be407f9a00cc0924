package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clavora/clavora/internal/metrics"
	"github.com/clavora/clavora/internal/model"
)

// archiveNameRe extracts the timestamp from archive filenames of the form
// {prefix}_{YYYYMMDD}_{HHMMSS}.tar.gz.
var archiveNameRe = regexp.MustCompile(`_(\d{8})_(\d{6})\.tar\.gz$`)

// RescanResult summarizes one reconciliation pass over the archive root.
type RescanResult struct {
	Registered int `json:"registered"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Catalog is the slice of the registry the reconciler writes through.
type Catalog interface {
	ExistsByName(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, b *model.Backup) error
}

// Reconciler rebuilds registry rows from what actually exists on disk. It
// runs after a restore has replaced the database out from under the registry,
// and whenever an operator suspects drift between catalog and archive tree.
type Reconciler struct {
	logger zerolog.Logger
	reg    Catalog
}

func NewReconciler(logger zerolog.Logger, reg Catalog) *Reconciler {
	return &Reconciler{
		logger: logger.With().Str("component", "registry-reconciler").Logger(),
		reg:    reg,
	}
}

// Reconcile scans every subdirectory of root holding exactly one archive and
// inserts a completed backup row for each one the registry does not know.
// Per-directory failures are counted and skipped; the pass always continues.
func (r *Reconciler) Reconcile(ctx context.Context, root string) (RescanResult, error) {
	var res RescanResult

	entries, err := os.ReadDir(root)
	if err != nil {
		return res, fmt.Errorf("read archive root %s: %w", root, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		registered, err := r.reconcileDir(ctx, root, name)
		if err != nil {
			r.logger.Warn().Err(err).Str("dir", name).Msg("skipping unreconcilable directory")
			res.Failed++
			continue
		}
		if registered {
			res.Registered++
			metrics.RescanRegistered.Inc()
		} else {
			res.Skipped++
		}
	}

	r.logger.Info().
		Int("registered", res.Registered).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("registry reconciliation finished")

	return res, nil
}

func (r *Reconciler) reconcileDir(ctx context.Context, root, name string) (bool, error) {
	dir := filepath.Join(root, name)

	archive, err := findSingleArchive(dir)
	if err != nil {
		return false, err
	}
	if archive == "" {
		// Not a bundle directory (scratch dirs, stray files). Skip quietly.
		return false, nil
	}

	exists, err := r.reg.ExistsByName(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	info, err := os.Stat(archive)
	if err != nil {
		return false, fmt.Errorf("stat archive: %w", err)
	}

	ts, ok := parseArchiveTimestamp(filepath.Base(archive))
	if !ok {
		// Historical bundles may predate the naming convention.
		ts = info.ModTime().UTC()
	}

	origin := model.OriginManual
	if strings.HasPrefix(name, "scheduled_") {
		origin = model.OriginScheduled
	}

	b := &model.Backup{
		Name:      name,
		Origin:    origin,
		Status:    model.BackupStatusCompleted,
		Path:      archive,
		SizeBytes: info.Size(),
		// Historical bundles predate fine-grained manifests.
		Includes:    model.Includes{Database: true, Storage: true, Config: false},
		StartedAt:   &ts,
		CompletedAt: &ts,
		CreatedAt:   ts,
	}

	if err := r.reg.Create(ctx, b); err != nil {
		return false, err
	}

	r.logger.Info().Str("backup", name).Str("archive", archive).Msg("registered backup from disk")
	return true, nil
}

// findSingleArchive returns the archive path if dir contains exactly one
// .tar.gz file, or "" otherwise.
func findSingleArchive(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dir: %w", err)
	}

	var archive string
	count := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tar.gz") {
			continue
		}
		count++
		archive = filepath.Join(dir, e.Name())
	}

	if count != 1 {
		return "", nil
	}
	return archive, nil
}

func parseArchiveTimestamp(filename string) (time.Time, bool) {
	m := archiveNameRe.FindStringSubmatch(filename)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation("20060102_150405", m[1]+"_"+m[2], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
