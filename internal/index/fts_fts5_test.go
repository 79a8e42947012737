//go:build sqlite_fts5

package index

import "testing"

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM pages_fts`).Scan(&count); err != nil {
		t.Fatalf("pages_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertPage(row("fts.md", "FTS Page", "f1", "search"), "Quire provides powerful full-text search capabilities.", nil); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].File != "fts.md" {
		t.Errorf("file = %q", results[0].File)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DiacriticsFolded(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(row("cafe.md", "Café", "c"), "crème brûlée", nil)

	results, _ := db.Search("creme", 10)
	if len(results) != 1 || results[0].Heading != "Café" {
		t.Errorf("results = %+v", results)
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(row("gone.md", "Gone", "g"), "vanishing content", nil)
	_ = db.DeletePage("gone.md")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.File == "gone.md" {
			t.Error("deleted page still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPage(row("evo.md", "Old", "1"), "original text", nil)
	_ = db.UpsertPage(row("evo.md", "New", "2"), "replacement text", nil)

	if results, _ := db.Search("original", 10); len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ := db.Search("replacement", 10)
	if len(results) != 1 || results[0].Heading != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
