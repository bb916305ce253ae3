package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

// ArtifactName is the canonical artifact file name.
const ArtifactName = ".env"

// maxArtifactSuffix bounds the suffix search so a pathological directory
// cannot loop forever.
const maxArtifactSuffix = 1000

// WriteArtifact persists the artifact into dir without ever overwriting an
// existing file. The canonical name is tried first, then uniquely-suffixed
// siblings (.1.env, .2.env, ...) until an unused name is found. Returns the
// path actually written.
func WriteArtifact(dir string, artifact *Artifact) (string, error) {
	data, err := artifact.Encode()
	if err != nil {
		return "", err
	}

	for i := 0; i < maxArtifactSuffix; i++ {
		name := ArtifactName
		if i > 0 {
			name = fmt.Sprintf(".%d.env", i)
		}
		path := filepath.Join(dir, name)

		// O_EXCL makes the no-clobber guarantee hold even when two bind
		// runs race on the same directory.
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", util.WrapError(err, "failed to write artifact")
		}

		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", util.WrapError(err, "failed to write artifact")
		}
		if err := f.Close(); err != nil {
			return "", util.WrapError(err, "failed to write artifact")
		}
		return path, nil
	}

	return "", fmt.Errorf("no free artifact name in %s after %d attempts", dir, maxArtifactSuffix)
}
