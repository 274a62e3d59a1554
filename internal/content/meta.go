package content

import "time"

type Source string

const (
	SourceUnknown Source = "unknown"
	SourceSeed    Source = "seed"
	SourceS3      Source = "s3"
	SourceDir     Source = "dir"
)

type Meta struct {
	Version    string    `json:"version,omitempty"`
	Commit     string    `json:"commit,omitempty"`
	SHA256     string    `json:"sha256,omitempty"`
	BuiltAt    time.Time `json:"built_at,omitempty"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`
	Source     Source    `json:"source,omitempty"`

	// SignedBy is the KMS key ARN whose signature was checked, if any.
	SignedBy string `json:"signed_by,omitempty"`
}
