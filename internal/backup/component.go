package backup

import (
	"context"

	"github.com/clavora/clavora/internal/model"
)

// Component names as they appear in manifests and bundle layouts.
const (
	ComponentDatabase     = "database"
	ComponentAuthDatabase = "auth_database"
	ComponentStorage      = "storage"
	ComponentConfig       = "config"
	ComponentFiles        = "files"
)

// Component is one independently exportable/importable unit of a backup.
// Export writes the component's data under the bundle directory; Restore
// replays it from there. Returned warnings are recorded without failing the
// operation; a returned error is fatal only when Fatal() reports true.
type Component interface {
	Name() string
	Fatal() bool
	Export(ctx context.Context, dir string) (warnings []string, err error)
	Restore(ctx context.Context, dir string) (warnings []string, err error)
}

// includesComponent maps the coarse include flags onto components. The
// legacy file tree rides along with object storage.
func includesComponent(inc model.Includes, name string) bool {
	switch name {
	case ComponentDatabase, ComponentAuthDatabase:
		return inc.Database
	case ComponentStorage, ComponentFiles:
		return inc.Storage
	case ComponentConfig:
		return inc.Config
	default:
		return false
	}
}
