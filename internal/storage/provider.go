// Package storage keeps page files in a flat workspace directory.
package storage

import "time"

// PageFile describes one page file on disk.
type PageFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for workspace file operations. Paths are file
// names relative to the workspace root.
type Provider interface {
	// List returns every page file in the workspace root.
	List() ([]PageFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Exists reports whether path is present.
	Exists(path string) bool
}
