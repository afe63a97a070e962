package entity

// CommitRef identifies a single revision. FullHash is the canonical identity.
type CommitRef struct {
	FullHash   string `json:"full_hash"`
	ShortHash  string `json:"short_hash"`
	Author     string `json:"author"`
	CommitDate string `json:"commit_date"`
	Subject    string `json:"subject"`
}

// Hash returns the full hash, or "" for a nil ref.
func (c *CommitRef) Hash() string {
	if c == nil {
		return ""
	}
	return c.FullHash
}

// SameRevision reports whether both refs resolved to the same commit.
func SameRevision(a, b *CommitRef) bool {
	return a != nil && b != nil && a.FullHash == b.FullHash
}

type Release struct {
	Tag         string `json:"tag"`
	Name        string `json:"name"`
	Body        string `json:"body"`
	PublishedAt string `json:"published_at"`
	URL         string `json:"url"`
}
