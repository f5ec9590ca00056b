package models

// Manifest lists the bulk files of one grant product, e.g. a year of weekly
// full-text grant archives.
type Manifest struct {
	Name  string     `json:"name"`
	Files []BulkFile `json:"files"`
}

type BulkFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	// Size is human readable, e.g. "105.3 MB"; empty when unknown.
	Size string `json:"size,omitempty"`
	// SHA1 is the hex digest of the file; empty when unknown.
	SHA1        string `json:"sha1,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"`
}
