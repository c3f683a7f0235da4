package git

// Repository wraps git CLI operations.
// All operations use system git CLI (no embedded git library).
type Repository struct {
	path string
}

// GetPath returns the cleaned absolute path the repository was opened
// with, which may be a subdirectory of the repository root.
func (r *Repository) GetPath() string {
	return r.path
}
