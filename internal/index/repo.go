package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// PageRow represents a row in the pages table.
type PageRow struct {
	File      string
	Heading   string
	Draft     string
	Checksum  string
	Tags      []string
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	File    string
	Heading string
	Snippet string
}

// GraphNode is one page in the link graph.
type GraphNode struct {
	File    string   `json:"file"`
	Heading string   `json:"heading"`
	Tags    []string `json:"tags"`
}

// GraphLink is a directed edge between two headings.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// UpsertPage inserts or replaces a page, its tags, its FTS entry and its
// outgoing links within a transaction. links holds target headings.
func (db *DB) UpsertPage(p PageRow, body string, links []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	tagsJSON, _ := json.Marshal(p.Tags)

	_, err = tx.Exec(`
		INSERT INTO pages (file, heading, draft, checksum, tags, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file) DO UPDATE SET
			heading    = excluded.heading,
			draft      = excluded.draft,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, p.File, p.Heading, p.Draft, p.Checksum, string(tagsJSON), body, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert page: %w", err)
	}

	if err := ftsUpsert(tx, p.File, p.Heading, body, p.Tags); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM page_tags WHERE file = ?`, p.File); err != nil {
		return fmt.Errorf("index: clear tags: %w", err)
	}
	for _, tag := range p.Tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO page_tags (file, tag) VALUES (?, ?)`, p.File, tag); err != nil {
			return fmt.Errorf("index: insert tag: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, p.File); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(p.File, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeletePage removes a page together with its tags, FTS entry and outgoing links.
func (db *DB) DeletePage(file string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, file)
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, file)
	_, _ = tx.Exec(`DELETE FROM page_tags WHERE file = ?`, file)
	if _, err := tx.Exec(`DELETE FROM pages WHERE file = ?`, file); err != nil {
		return fmt.Errorf("index: delete page: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a page file, or an empty
// string if it is not indexed.
func (db *DB) GetChecksum(file string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM pages WHERE file = ?`, file).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns file -> checksum for every indexed page.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT file, checksum FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var f, cs string
		if err := rows.Scan(&f, &cs); err != nil {
			return nil, err
		}
		out[f] = cs
	}
	return out, rows.Err()
}

// Backlinks returns the headings of all pages that link to heading, sorted.
func (db *DB) Backlinks(heading string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT p.heading
		FROM links l JOIN pages p ON p.file = l.source
		WHERE l.target = ?
		ORDER BY p.heading
	`, heading)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PagesByTag returns the pages carrying tag, ordered by heading.
func (db *DB) PagesByTag(tag string) ([]PageRow, error) {
	rows, err := db.conn.Query(`
		SELECT p.file, p.heading, p.draft, p.checksum, p.tags, p.updated_at
		FROM pages p JOIN page_tags t ON t.file = p.file
		WHERE t.tag = ?
		ORDER BY p.heading
	`, tag)
	if err != nil {
		return nil, fmt.Errorf("index: pages by tag: %w", err)
	}
	defer rows.Close()

	var out []PageRow
	for rows.Next() {
		var (
			r    PageRow
			tags string
		)
		if err := rows.Scan(&r.File, &r.Heading, &r.Draft, &r.Checksum, &tags, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Tags = decodeTags(tags)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Graph returns every page and every link whose target is an indexed page.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	rows, err := db.conn.Query(`SELECT file, heading, tags FROM pages ORDER BY heading`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	var nodes []GraphNode
	headings := make(map[string]struct{})
	for rows.Next() {
		var (
			n    GraphNode
			tags string
		)
		if err := rows.Scan(&n.File, &n.Heading, &tags); err != nil {
			rows.Close()
			return nil, nil, err
		}
		n.Tags = decodeTags(tags)
		nodes = append(nodes, n)
		headings[n.Heading] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = db.conn.Query(`
		SELECT p.heading, l.target
		FROM links l JOIN pages p ON p.file = l.source
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer rows.Close()
	var links []GraphLink
	for rows.Next() {
		var l GraphLink
		if err := rows.Scan(&l.Source, &l.Target); err != nil {
			return nil, nil, err
		}
		if _, ok := headings[l.Target]; ok {
			links = append(links, l)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Source != links[j].Source {
			return links[i].Source < links[j].Source
		}
		return links[i].Target < links[j].Target
	})
	return nodes, links, nil
}

func decodeTags(s string) []string {
	var tags []string
	_ = json.Unmarshal([]byte(s), &tags)
	if tags == nil {
		tags = []string{}
	}
	return tags
}
