package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version int           `toml:"version"`
	Session sessionSchema `toml:"session"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported session schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

// sessionSchema never carries the credential itself, only where to find it.
type sessionSchema struct {
	State       string `toml:"state"`
	SecretRef   string `toml:"secret_ref,omitempty"`
	ActiveJobID string `toml:"active_job_id,omitempty"`
	UpdatedAt   string `toml:"updated_at,omitempty"`
}
