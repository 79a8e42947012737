package index

// PageIndex defines the interface for page indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type PageIndex interface {
	UpsertPage(p PageRow, body string, links []string) error
	DeletePage(file string) error
	GetChecksum(file string) (string, error)
	AllChecksums() (map[string]string, error)
	PagesByTag(tag string) ([]PageRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph() ([]GraphNode, []GraphLink, error)
	Backlinks(heading string) ([]string, error)
	Close() error
}

// Verify *DB satisfies PageIndex at compile time.
var _ PageIndex = (*DB)(nil)
