package index

import (
	"log/slog"

	"github.com/starford/quire/internal/markdown"
	"github.com/starford/quire/internal/storage"
)

// Sync brings the index up to date with the workspace directory:
//   - new or changed page files are summarized and upserted
//   - files removed from disk are deleted from the index
//
// Files that are not pages (no title) are skipped with a warning.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	files, err := store.List()
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Path] = struct{}{}

		if checksums[f.Path] == f.Checksum {
			continue
		}

		data, err := store.Read(f.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("file", f.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, f, data); err != nil {
			logger.Warn("sync: index failed", slog.String("file", f.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("file", f.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeletePage(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("file", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("file", p))
			}
		}
	}

	return nil
}

// IndexFile summarizes data and upserts it into the DB.
func IndexFile(db *DB, f storage.PageFile, data []byte) error {
	s, err := markdown.Summarize(data)
	if err != nil {
		return err
	}
	if f.Checksum == "" {
		f.Checksum = storage.Checksum(data)
	}
	row := PageRow{
		File:      f.Path,
		Heading:   s.Title,
		Draft:     s.Draft,
		Checksum:  f.Checksum,
		Tags:      s.Tags,
		UpdatedAt: f.UpdatedAt,
	}
	return db.UpsertPage(row, s.Text, s.Links)
}
