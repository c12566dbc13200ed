package backupset

import (
	"fmt"
	"os"

	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/fsutil"
)

// Locator maps file names recorded in a partition's file history to files
// on this host. Backups are often moved or copied from Windows machines, so
// a recorded path that no longer exists is retried as a sibling of the
// backup being restored.
type Locator struct {
	// Anchor is the path of the backup file being restored
	Anchor string

	exists func(string) bool
}

// NewLocator returns a locator anchored at the given backup file
func NewLocator(anchor string) *Locator {
	return &Locator{Anchor: anchor, exists: fsutil.FileExists}
}

// Locate returns the first existing candidate for a recorded file name
func (l *Locator) Locate(recorded string) (string, error) {
	candidates := l.candidates(recorded)
	for _, path := range candidates {
		if l.exists(path) {
			if path != recorded {
				logger.LogDebug("Relocated backup file", map[string]interface{}{
					"recorded": recorded,
					"path":     path,
				})
			}
			return path, nil
		}
	}
	return "", imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrChainResolution, os.ErrNotExist),
		"LocateBackupFile", recorded, -1, fmt.Sprintf("tried %v", candidates))
}

func (l *Locator) candidates(recorded string) []string {
	var out []string
	if recorded != "" {
		out = append(out, recorded)
	}
	if l.Anchor != "" {
		sibling := fsutil.SiblingPath(l.Anchor, recorded)
		if len(out) == 0 || out[0] != sibling {
			out = append(out, sibling)
		}
	}
	return out
}
