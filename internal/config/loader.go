package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

// LoadArtifact reads and parses the canonical artifact from dir. A missing
// artifact is reported as a ConfigError telling the user to run bind first.
func LoadArtifact(dir string) (*Artifact, error) {
	path := filepath.Join(dir, ArtifactName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, util.NewConfigError("artifact", "no artifact at "+path+", run bind first")
	}
	if err != nil {
		return nil, util.NewConfigErrorWithCause("artifact", "failed to read "+path, err)
	}

	return ParseArtifact(data)
}
