package cleaner

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"tgsender/internal/session"
	"tgsender/pkg/logx"
)

// PurgeResult reports one purge pass.
type PurgeResult struct {
	Listed  int
	Deleted int
	Missing int
}

// LoadPhoneList reads one phone number per line. Blank lines and
// #-comments are skipped; a leading + is optional in the file.
func LoadPhoneList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open phone list: %w", err)
	}
	defer f.Close()

	var phones []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		phones = append(phones, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return phones, nil
}

// Purge deletes the artifacts of the listed phones from every directory.
// No connection is made; this is a pure filesystem removal for accounts
// already known dead.
func Purge(dirs []string, phones []string, log logx.Logger) (PurgeResult, error) {
	res := PurgeResult{Listed: len(phones)}
	if len(phones) == 0 {
		return res, nil
	}

	want := make(map[string]struct{}, len(phones))
	for _, p := range phones {
		want[normalizePhone(p)] = struct{}{}
	}

	for _, dir := range dirs {
		store := session.NewStore(dir)
		creds, err := store.List()
		if err != nil {
			return res, fmt.Errorf("list %s: %w", dir, err)
		}
		for _, cred := range creds {
			if _, ok := want[normalizePhone(cred.Phone)]; !ok {
				continue
			}
			if err := store.Delete(cred); err != nil {
				log.Warn("purge delete failed",
					logx.String("phone", cred.Phone),
					logx.Err(err))
				continue
			}
			res.Deleted++
			log.Info("session purged",
				logx.String("phone", cred.Phone),
				logx.String("dir", dir))
		}
	}
	res.Missing = res.Listed - res.Deleted
	if res.Missing < 0 {
		res.Missing = 0
	}
	return res, nil
}

func normalizePhone(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "+")
	return p
}
