package content

import "time"

type Source string

const (
	SourceUnknown Source = "unknown"
	SourceSeed    Source = "seed"
	SourceDisk    Source = "disk"
	SourceS3      Source = "s3"
)

type Meta struct {
	Version    string    `json:"version,omitempty"`
	SHA256     string    `json:"sha256,omitempty"`
	Source     Source    `json:"source,omitempty"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`

	// Signed is true when a detached signature over the release was verified
	Signed bool `json:"signed"`

	Release *Release `json:"release,omitempty"`
}
