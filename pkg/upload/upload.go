package upload

import "context"

// Uploader publishes build reports to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Upload uploads all files in localDir. The directory basename is
	// used as a sub-prefix under the configured remote prefix. It returns
	// the resulting key prefix.
	Upload(ctx context.Context, localDir string) (string, error)
}
