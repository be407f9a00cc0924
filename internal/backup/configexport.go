package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/clavora/clavora/internal/config"
)

const configSubdir = "config"

// configSnapshot is the subset of runtime configuration worth carrying in a
// bundle. Credentials are deliberately left out.
type configSnapshot struct {
	ServiceName string `yaml:"service_name"`
	ArchiveDir  string `yaml:"archive_dir"`
	UploadDir   string `yaml:"upload_dir,omitempty"`
	ConfigDir   string `yaml:"config_dir,omitempty"`
	S3Endpoint  string `yaml:"s3_endpoint,omitempty"`
	S3Region    string `yaml:"s3_region,omitempty"`
}

// ConfigComponent snapshots application configuration into the bundle: a
// YAML summary of the running config plus a copy of the config file
// directory, when one is configured.
type ConfigComponent struct {
	logger zerolog.Logger
	cfg    *config.Config
	now    func() time.Time
}

func NewConfigComponent(logger zerolog.Logger, cfg *config.Config) *ConfigComponent {
	return &ConfigComponent{
		logger: logger.With().Str("component", ComponentConfig).Logger(),
		cfg:    cfg,
		now:    time.Now,
	}
}

func (c *ConfigComponent) Name() string { return ComponentConfig }
func (c *ConfigComponent) Fatal() bool  { return false }

func (c *ConfigComponent) Export(ctx context.Context, dir string) ([]string, error) {
	outDir := filepath.Join(dir, configSubdir)
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return []string{fmt.Sprintf("config: create dir: %v", err)}, nil
	}

	snap := configSnapshot{
		ServiceName: c.cfg.ServiceName,
		ArchiveDir:  c.cfg.ArchiveDir,
		UploadDir:   c.cfg.UploadDir,
		ConfigDir:   c.cfg.ConfigDir,
		S3Endpoint:  c.cfg.S3Endpoint,
		S3Region:    c.cfg.S3Region,
	}
	data, err := yaml.Marshal(&snap)
	if err != nil {
		return []string{fmt.Sprintf("config: marshal snapshot: %v", err)}, nil
	}
	if err := os.WriteFile(filepath.Join(outDir, "app.yaml"), data, 0640); err != nil {
		return []string{fmt.Sprintf("config: write snapshot: %v", err)}, nil
	}

	var warnings []string
	if c.cfg.ConfigDir != "" {
		if err := copyTree(c.cfg.ConfigDir, filepath.Join(outDir, "etc")); err != nil {
			warnings = append(warnings, fmt.Sprintf("config: copy config dir: %v", err))
		}
	}

	return warnings, nil
}

func (c *ConfigComponent) Restore(ctx context.Context, dir string) ([]string, error) {
	src := filepath.Join(dir, configSubdir, "etc")
	if _, err := os.Stat(src); err != nil {
		return []string{"config: bundle has no config files; skipping"}, nil
	}
	if c.cfg.ConfigDir == "" {
		return []string{"config: no config dir configured; skipping"}, nil
	}

	if _, err := os.Stat(c.cfg.ConfigDir); err == nil {
		aside := c.cfg.ConfigDir + ".pre_restore_" + c.now().UTC().Format("20060102_150405")
		c.logger.Info().Str("from", c.cfg.ConfigDir).Str("to", aside).Msg("renaming live config dir aside")
		if err := os.Rename(c.cfg.ConfigDir, aside); err != nil {
			return nil, fmt.Errorf("rename config dir aside: %w", err)
		}
	}

	if err := copyTree(src, c.cfg.ConfigDir); err != nil {
		return nil, fmt.Errorf("restore config dir: %w", err)
	}
	return nil, nil
}
