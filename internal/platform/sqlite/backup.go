package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupSuffix - формат суффикса файла резервной копии
const backupSuffix = ".backup_%s"

// storeArtifacts - суффиксы файлов, из которых состоит хранилище на диске.
var storeArtifacts = []string{"", "-wal", "-shm", "-journal"}

// Backup создаёт согласованную копию хранилища через VACUUM INTO в каталоге dir
// (по умолчанию рядом с файлом хранилища) и оставляет не более keep последних копий.
// keep <= 0 отключает очистку.
func (p *Pool) Backup(ctx context.Context, dir string, keep int) (string, error) {
	if dir == "" {
		dir = filepath.Dir(p.path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	base := filepath.Base(p.path)
	dest := filepath.Join(dir, base+fmt.Sprintf(backupSuffix, time.Now().Format("20060102_150405.000")))

	err := p.withRetry(ctx, func(ctx context.Context) error {
		// Недописанный файл от предыдущей попытки мешает VACUUM INTO
		if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return p.WithSlot(ctx, func(s *Slot) error {
			_, err := s.ExecContext(ctx, "VACUUM INTO ?", dest)
			return err
		})
	}, IsLockError)
	if err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}

	if keep > 0 {
		if err := pruneBackups(dir, base, keep); err != nil {
			p.log.Warn("failed to prune old backups", "dir", dir, "error", err)
		}
	}

	p.log.Info("backup created", "path", dest)
	return dest, nil
}

// ListBackups возвращает резервные копии хранилища base в каталоге dir, новые первыми.
func ListBackups(dir, base string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	prefix := base + ".backup_"
	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	// Метка времени в имени сортируется лексикографически
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

func pruneBackups(dir, base string, keep int) error {
	backups, err := ListBackups(dir, base)
	if err != nil || len(backups) <= keep {
		return err
	}
	var errs []error
	for _, old := range backups[keep:] {
		if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveStoreFiles удаляет файл хранилища и его артефакты (-wal, -shm, -journal).
// Пул должен быть предварительно очищен через Purge.
func RemoveStoreFiles(path string) error {
	var errs []error
	for _, suffix := range storeArtifacts {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path+suffix, err))
		}
	}
	return errors.Join(errs...)
}
