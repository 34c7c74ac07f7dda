package backup

// Scanner discovers the tracked items of a project's working tree. The
// backup tree itself and ignored paths are excluded.
type Scanner interface {
	Scan(root string) ([]Item, error)
}
