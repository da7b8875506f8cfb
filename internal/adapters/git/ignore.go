package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/samber/lo"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// IgnoreFileName is the per-repository ignore file the installer maintains.
const IgnoreFileName = ".gitignore"

// WorkbookExtensions are the spreadsheet formats whose editors leave lock files.
var WorkbookExtensions = []string{"xls", "xlt", "xla", "xlam", "xlsx", "xlsm", "xlsb", "xltx", "xltm"}

// LockFilePatterns match the owner files ("~$model.xlsx") an editor creates
// next to an open workbook. Committing one would push a stale lock to every clone.
var LockFilePatterns = lo.Map(WorkbookExtensions, func(ext string, _ int) string {
	return "~$*." + ext
})

// IgnoreInstaller keeps LockFilePatterns in the .gitignore at the root of a
// working tree.
type IgnoreInstaller struct {
	logger Logger
}

// NewIgnoreInstaller creates a new IgnoreInstaller.
func NewIgnoreInstaller(log Logger) *IgnoreInstaller {
	return &IgnoreInstaller{logger: log}
}

// Install appends the missing lock-file patterns to the .gitignore of the
// working tree containing dir, creating the file if needed. Existing lines keep
// their order, so running Install twice changes nothing.
// Returns domain.ErrInvalidRepository if dir is not inside a Git checkout.
func (i *IgnoreInstaller) Install(ctx context.Context, dir string) (*domain.IgnoreUpdate, error) {
	fs, err := worktreeFilesystem(dir)
	if err != nil {
		return nil, err
	}
	update := &domain.IgnoreUpdate{Path: filepath.Join(fs.Root(), IgnoreFileName)}

	lines, err := readLines(fs)
	if err != nil {
		return nil, err
	}

	present := lo.Map(lines, func(line string, _ int) string { return strings.TrimSpace(line) })
	update.Patterns = lo.Without(LockFilePatterns, present...)
	if len(update.Patterns) == 0 {
		return update, nil
	}

	if err := writeLines(fs, append(lines, update.Patterns...)); err != nil {
		return nil, err
	}

	i.logger.Debug(ctx, "added lock-file patterns", map[string]interface{}{
		"path":     update.Path,
		"patterns": len(update.Patterns),
	})
	return update, nil
}

// Uninstall removes the lock-file patterns from the .gitignore of the working
// tree containing dir. A file left without any pattern is deleted.
// Returns domain.ErrInvalidRepository if dir is not inside a Git checkout.
func (i *IgnoreInstaller) Uninstall(ctx context.Context, dir string) (*domain.IgnoreUpdate, error) {
	fs, err := worktreeFilesystem(dir)
	if err != nil {
		return nil, err
	}
	update := &domain.IgnoreUpdate{Path: filepath.Join(fs.Root(), IgnoreFileName)}

	lines, err := readLines(fs)
	if err != nil {
		return nil, err
	}

	installed := func(line string, _ int) bool {
		return lo.Contains(LockFilePatterns, strings.TrimSpace(line))
	}
	update.Patterns = lo.Map(lo.Filter(lines, installed), func(line string, _ int) string {
		return strings.TrimSpace(line)
	})
	if len(update.Patterns) == 0 {
		return update, nil
	}

	kept := lo.Reject(lines, installed)
	if len(lo.Compact(lo.Map(kept, func(line string, _ int) string { return strings.TrimSpace(line) }))) == 0 {
		if err := fs.Remove(IgnoreFileName); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", update.Path, err)
		}
	} else if err := writeLines(fs, kept); err != nil {
		return nil, err
	}

	i.logger.Debug(ctx, "removed lock-file patterns", map[string]interface{}{
		"path":     update.Path,
		"patterns": len(update.Patterns),
	})
	return update, nil
}

func worktreeFilesystem(dir string) (billy.Filesystem, error) {
	repo, err := plainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRepository, dir)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no working tree: %w", domain.ErrInvalidRepository, dir, err)
	}
	return worktree.Filesystem, nil
}

// readLines returns the ignore file's lines; a missing file has none.
func readLines(fs billy.Filesystem) ([]string, error) {
	data, err := util.ReadFile(fs, IgnoreFileName)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
	}

	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func writeLines(fs billy.Filesystem, lines []string) error {
	data := []byte(strings.Join(lines, "\n") + "\n")
	if err := util.WriteFile(fs, IgnoreFileName, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", IgnoreFileName, err)
	}
	return nil
}
