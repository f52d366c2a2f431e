package domain

// BlobRef locates evidence bytes in the content-addressed store.
type BlobRef struct {
	Path         string `json:"path"`
	Hash         string `json:"hash"`
	Size         int64  `json:"size"`
	Deduplicated bool   `json:"deduplicated"`
}
