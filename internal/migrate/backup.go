package migrate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/raysh454/sitescore/internal/logging"
)

// Backup renames dir to dir+BackupSuffix, replacing an earlier backup of the
// same name. It returns the backup path.
func Backup(dir string) (string, error) {
	backup := dir + BackupSuffix
	if err := os.RemoveAll(backup); err != nil {
		return "", fmt.Errorf("remove old backup %s: %w", backup, err)
	}
	if err := os.Rename(dir, backup); err != nil {
		return "", fmt.Errorf("backup %s: %w", dir, err)
	}
	return backup, nil
}

// Rollback restores every legacy directory under dataDir that has a backup:
// the live directory is removed and the backup renamed into its place.
// Database rows written by the migration are left alone. It returns the
// restored directories.
func Rollback(dataDir string) ([]string, error) {
	restored := []string{}
	for _, name := range []string{CrawlsDir, ReportsDir} {
		live := filepath.Join(dataDir, name)
		backup := live + BackupSuffix
		info, err := os.Stat(backup)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return restored, fmt.Errorf("stat %s: %w", backup, err)
		}
		if !info.IsDir() {
			return restored, fmt.Errorf("backup %s is not a directory", backup)
		}
		if err := os.RemoveAll(live); err != nil {
			return restored, fmt.Errorf("remove %s: %w", live, err)
		}
		if err := os.Rename(backup, live); err != nil {
			return restored, fmt.Errorf("restore %s: %w", live, err)
		}
		restored = append(restored, live)
	}
	return restored, nil
}

// Rollback restores the legacy directories of this migrator's data dir.
func (m *Migrator) Rollback() ([]string, error) {
	restored, err := Rollback(m.dataDir)
	for _, dir := range restored {
		m.logger.Info("legacy directory restored", logging.F("dir", dir))
	}
	return restored, err
}
