package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMediaMissing reports that no candidate path for a media reference exists
// on disk. The affected send is skipped; session state is never touched.
var ErrMediaMissing = errors.New("media file not found")

// ResolveMedia maps a media reference to a local file path.
//
// An absolute reference is used as given. A relative one is tried under
// mediaRoot first (when configured), then under baseDir. The first candidate
// that exists wins; if none does, ErrMediaMissing is returned.
func ResolveMedia(ref, mediaRoot, baseDir string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrMediaMissing)
	}

	var candidates []string
	if filepath.IsAbs(ref) {
		candidates = []string{ref}
	} else {
		clean := strings.TrimLeft(ref, "/\\")
		if mediaRoot != "" {
			candidates = append(candidates, filepath.Join(mediaRoot, clean))
		}
		if baseDir != "" {
			candidates = append(candidates, filepath.Join(baseDir, clean))
		}
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMediaMissing, ref)
}
