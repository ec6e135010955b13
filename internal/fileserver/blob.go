package fileserver

import "time"

// Blob is a cached, content-typed byte payload resolved for a single
// URL path.
type Blob struct {
	Path        string
	Data        []byte
	ContentType string
	GeneratedAt time.Time
}
