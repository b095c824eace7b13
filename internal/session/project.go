package session

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"path/filepath"
)

// ProjectHash returns the directory key for a project: the first 20
// characters of base64url(sha256(absolute path)).
func ProjectHash(projectPath string) (string, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project path: %w", err)
	}

	sum := sha256.Sum256([]byte(abs))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:20], nil
}
