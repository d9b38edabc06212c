// Package session tracks the runtime liveness of on-disk credentials: loading
// them into a pool, validating them through proxied connections, and evicting
// the ones the remote service has revoked.
//
// A Pool and its Records are owned by exactly one worker goroutine; all
// mutations happen on that worker's sequential path, so the types carry no
// locks. Two pools must never be loaded over the same directory.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ArtifactExt is the filename extension of credential artifacts.
const ArtifactExt = ".session"

// Credential is one on-disk authentication artifact. The file content is
// opaque here; only the MTProto client interprets it. Immutable once created
// and removed only on confirmed invalidity.
type Credential struct {
	// Phone is the stable identifier, taken from the artifact filename.
	Phone string
	// Path is the absolute or config-relative artifact location.
	Path string
}

// Store enumerates and deletes credential artifacts under one directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store { return &Store{dir: dir} }

func (s *Store) Dir() string { return s.dir }

// List returns the credentials found in the directory, sorted by phone.
// A missing directory is an error; an empty one is not.
func (s *Store) List() ([]Credential, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	var creds []Credential
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ArtifactExt) {
			continue
		}
		creds = append(creds, Credential{
			Phone: strings.TrimSuffix(e.Name(), ArtifactExt),
			Path:  filepath.Join(s.dir, e.Name()),
		})
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Phone < creds[j].Phone })
	return creds, nil
}

// Delete removes the credential artifact from disk.
func (s *Store) Delete(c Credential) error {
	if err := os.Remove(c.Path); err != nil {
		return fmt.Errorf("delete credential %s: %w", c.Phone, err)
	}
	return nil
}
