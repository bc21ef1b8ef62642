package domain

// RawDocument represents opaque bytes fetched by the loader.
// It is the input to normalisation.
type RawDocument struct {
	// URI is the original location (file path, URL, post reference).
	URI string

	// MIMEType is the content type (e.g., "application/pdf").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata contains loader-specific key-value pairs.
	Metadata map[string]any
}

// ChangeType represents the type of file change seen by the watcher.
type ChangeType int

const (
	// ChangeCreated indicates a new file.
	ChangeCreated ChangeType = iota

	// ChangeUpdated indicates a modified file.
	ChangeUpdated

	// ChangeDeleted indicates a removed file.
	ChangeDeleted
)

// String returns the change name.
func (c ChangeType) String() string {
	switch c {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileChange is a debounced change event for one path.
type FileChange struct {
	Type ChangeType
	Path string
}

// LoadedContent is the normalised output of the document loader.
type LoadedContent struct {
	Text     string
	Title    string
	MIMEType string
	Metadata map[string]any
}
