package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const filesSubdir = "files"

// FilesComponent carries the legacy flat-file upload tree that predates the
// object store. Missing or partial content is a warning, never fatal.
type FilesComponent struct {
	logger    zerolog.Logger
	uploadDir string
	now       func() time.Time
}

func NewFilesComponent(logger zerolog.Logger, uploadDir string) *FilesComponent {
	return &FilesComponent{
		logger:    logger.With().Str("component", ComponentFiles).Logger(),
		uploadDir: uploadDir,
		now:       time.Now,
	}
}

func (c *FilesComponent) Name() string { return ComponentFiles }
func (c *FilesComponent) Fatal() bool  { return false }

func (c *FilesComponent) Export(ctx context.Context, dir string) ([]string, error) {
	if c.uploadDir == "" {
		return []string{"files: no legacy upload dir configured; skipping"}, nil
	}
	if _, err := os.Stat(c.uploadDir); err != nil {
		return []string{fmt.Sprintf("files: upload dir %s not readable: %v", c.uploadDir, err)}, nil
	}

	c.logger.Info().Str("dir", c.uploadDir).Msg("copying legacy upload tree")
	if err := copyTree(c.uploadDir, filepath.Join(dir, filesSubdir)); err != nil {
		return []string{fmt.Sprintf("files: copy upload tree: %v", err)}, nil
	}
	return nil, nil
}

// Restore puts the bundled tree in place of the live one. The previous
// contents are renamed aside rather than deleted so nothing is lost if the
// restore turns out to be the wrong call.
func (c *FilesComponent) Restore(ctx context.Context, dir string) ([]string, error) {
	if c.uploadDir == "" {
		return []string{"files: no legacy upload dir configured; skipping"}, nil
	}

	src := filepath.Join(dir, filesSubdir)
	if _, err := os.Stat(src); err != nil {
		return []string{"files: bundle has no legacy file tree; skipping"}, nil
	}

	if _, err := os.Stat(c.uploadDir); err == nil {
		aside := c.uploadDir + ".pre_restore_" + c.now().UTC().Format("20060102_150405")
		c.logger.Info().Str("from", c.uploadDir).Str("to", aside).Msg("renaming live upload tree aside")
		if err := os.Rename(c.uploadDir, aside); err != nil {
			return nil, fmt.Errorf("rename upload dir aside: %w", err)
		}
	}

	if err := copyTree(src, c.uploadDir); err != nil {
		return nil, fmt.Errorf("restore upload tree: %w", err)
	}
	return nil, nil
}
