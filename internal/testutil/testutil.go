// Package testutil provides shared test helpers for setting up workspaces and databases.
package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "quire-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace directory with a storage.Provider.
func TestWorkspace(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Page renders a page file with the given title, tags and body.
func Page(title string, tags []string, body string) []byte {
	var sb strings.Builder
	sb.WriteString("---\ntitle: \"" + title + "\"\ndraft: true\n")
	if len(tags) > 0 {
		sb.WriteString("tags:\n")
		for _, tag := range tags {
			sb.WriteString("  - " + tag + "\n")
		}
	}
	sb.WriteString("---\n")
	sb.WriteString(body)
	return []byte(sb.String())
}

// WritePage stores a page file in the workspace.
func WritePage(t *testing.T, store storage.Provider, file, title string, tags []string, body string) {
	t.Helper()
	if err := store.Write(file, Page(title, tags, body)); err != nil {
		t.Fatal(err)
	}
}
