package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tgsender/internal/proxy"
	"tgsender/internal/telegram"
	"tgsender/pkg/logx"
)

func writeArtifacts(t *testing.T, phones ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, p := range phones {
		if err := os.WriteFile(filepath.Join(dir, p+ArtifactExt), []byte("opaque"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func loadPool(t *testing.T, dir string, d *fakeDialer, proxies ...proxy.Descriptor) *Pool {
	t.Helper()
	if len(proxies) == 0 {
		proxies = []proxy.Descriptor{proxyOne}
	}
	p, err := Load(dir, NewConnector(d, proxies, logx.Nop()), logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return p
}

func TestLoadCreatesUnconnectedRecords(t *testing.T) {
	t.Parallel()
	dir := writeArtifacts(t, "+1555", "+1666")
	// Non-credential files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := loadPool(t, dir, &fakeDialer{})
	if p.Len() != 2 {
		t.Fatalf("Len = %d", p.Len())
	}
	for _, r := range p.Records() {
		if r.State() != Unconnected {
			t.Fatalf("record %s state = %v", r.Credential.Phone, r.State())
		}
	}
	if len(p.Connected()) != 0 {
		t.Fatal("no record should be connected before validation")
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent"), NewConnector(&fakeDialer{}, nil, logx.Nop()), logx.Nop())
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestValidateRevokedEvictsAndDeletes(t *testing.T) {
	t.Parallel()
	dir := writeArtifacts(t, "+1555")
	d := &fakeDialer{meErr: map[string]error{"+1555": errors.New("SESSION_REVOKED (401)")}}
	p := loadPool(t, dir, d)

	rec := p.Records()[0]
	if got := p.Validate(context.Background(), rec); got != OutcomeInvalid {
		t.Fatalf("outcome = %v", got)
	}
	if p.Len() != 0 {
		t.Fatal("record should be removed from pool")
	}
	if _, err := os.Stat(filepath.Join(dir, "+1555"+ArtifactExt)); !os.IsNotExist(err) {
		t.Fatal("credential artifact should be deleted")
	}
	if len(p.Connected()) != 0 || len(p.Selectable()) != 0 {
		t.Fatal("evicted record must not be selectable")
	}
}

func TestValidateNotAuthorizedEvicts(t *testing.T) {
	t.Parallel()
	dir := writeArtifacts(t, "+1555")
	d := &fakeDialer{meErr: map[string]error{"+1555": telegram.ErrNotAuthorized}}
	p := loadPool(t, dir, d)

	if got := p.Validate(context.Background(), p.Records()[0]); got != OutcomeInvalid {
		t.Fatalf("outcome = %v", got)
	}
	if p.Len() != 0 {
		t.Fatal("unauthorized record should be evicted")
	}
}

func TestValidateTransientKeepsRecord(t *testing.T) {
	t.Parallel()
	dir := writeArtifacts(t, "+1555")
	d := &fakeDialer{dialErr: map[string]error{proxyOne.Label(): errors.New("i/o timeout")}}
	p := loadPool(t, dir, d)

	rec := p.Records()[0]
	if got := p.Validate(context.Background(), rec); got != OutcomeTransient {
		t.Fatalf("outcome = %v", got)
	}
	if rec.State() != TransientError {
		t.Fatalf("state = %v", rec.State())
	}
	if p.Len() != 1 {
		t.Fatal("transient record must stay in the pool")
	}
	if _, err := os.Stat(filepath.Join(dir, "+1555"+ArtifactExt)); err != nil {
		t.Fatal("artifact must survive a transient failure")
	}
	if len(p.Selectable()) != 1 {
		t.Fatal("transient record should remain selectable for retry")
	}
}

func TestValidateIdempotentOnAuthorized(t *testing.T) {
	t.Parallel()
	dir := writeArtifacts(t, "+1555")
	d := &fakeDialer{}
	p := loadPool(t, dir, d)

	rec := p.Records()[0]
	if got := p.Validate(context.Background(), rec); got != OutcomeAuthorized {
		t.Fatalf("outcome = %v", got)
	}
	dials := len(d.attempts)
	client := rec.Client()

	if got := p.Validate(context.Background(), rec); got != OutcomeAuthorized {
		t.Fatalf("second outcome = %v", got)
	}
	if len(d.attempts) != dials {
		t.Fatal("validate on Authorized must not reconnect")
	}
	if rec.Client() != client {
		t.Fatal("validate on Authorized must not swap the connection")
	}
}

func TestTwoCredentialsFailoverScenario(t *testing.T) {
	t.Parallel()
	// Proxy one always fails, proxy two works for both credentials.
	dir := writeArtifacts(t, "+1555", "+1666")
	d := &fakeDialer{dialErr: map[string]error{proxyOne.Label(): errors.New("refused")}}
	p := loadPool(t, dir, d, proxyOne, proxyTwo)

	sum := p.ValidateAll(context.Background())
	if sum.Authorized != 2 || sum.Evicted != 0 || sum.Transient != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	for _, r := range p.Connected() {
		if r.Client().(*fakeClient).via != proxyTwo.Label() {
			t.Fatalf("record %s connected via %s", r.Credential.Phone, r.Client().(*fakeClient).via)
		}
	}
}

func TestEvictDeleteFailureStillRemovesRecord(t *testing.T) {
	t.Parallel()
	dir := writeArtifacts(t, "+1555")
	p := loadPool(t, dir, &fakeDialer{})
	rec := p.Records()[0]

	// Artifact vanishes out from under the pool: delete fails, but the
	// record must still leave the pool so dispatch never reuses it.
	if err := os.Remove(filepath.Join(dir, "+1555"+ArtifactExt)); err != nil {
		t.Fatal(err)
	}
	p.Evict(rec)
	if p.Len() != 0 {
		t.Fatal("record must be removed even when artifact delete fails")
	}
}

func TestEnsureConnectedReconnectsReleasedSession(t *testing.T) {
	t.Parallel()
	dir := writeArtifacts(t, "+1555")
	d := &fakeDialer{}
	p := loadPool(t, dir, d)
	rec := p.Records()[0]

	if p.Validate(context.Background(), rec) != OutcomeAuthorized {
		t.Fatal("validate failed")
	}
	rec.IdleRelease()
	if rec.Live() {
		t.Fatal("released record reported live")
	}
	if rec.State() != Authorized {
		t.Fatalf("idle release changed state to %v", rec.State())
	}

	dials := len(d.attempts)
	if err := p.EnsureConnected(context.Background(), rec); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	if len(d.attempts) != dials+1 {
		t.Fatal("expected one reconnect dial")
	}
	if !rec.Live() {
		t.Fatal("record should be live after reconnect")
	}
}

func TestEnsureConnectedNoopWhenLive(t *testing.T) {
	t.Parallel()
	dir := writeArtifacts(t, "+1555")
	d := &fakeDialer{}
	p := loadPool(t, dir, d)
	rec := p.Records()[0]
	if p.Validate(context.Background(), rec) != OutcomeAuthorized {
		t.Fatal("validate failed")
	}
	dials := len(d.attempts)
	if err := p.EnsureConnected(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if len(d.attempts) != dials {
		t.Fatal("live record must not be redialed")
	}
}

func TestIdentityCachedAcrossReconnect(t *testing.T) {
	t.Parallel()
	dir := writeArtifacts(t, "+1555")
	d := &fakeDialer{}
	p := loadPool(t, dir, d)
	rec := p.Records()[0]
	if p.Validate(context.Background(), rec) != OutcomeAuthorized {
		t.Fatal("validate failed")
	}
	first := rec.Identity()

	rec.Fail(errors.New("send failed"))
	if err := p.EnsureConnected(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if rec.Identity() != first {
		t.Fatal("identity cache must survive reconnects")
	}
}

func TestReleaseAll(t *testing.T) {
	t.Parallel()
	dir := writeArtifacts(t, "+1555", "+1666")
	d := &fakeDialer{}
	p := loadPool(t, dir, d)
	p.ValidateAll(context.Background())

	p.ReleaseAll()
	for _, c := range d.clients {
		if !c.closed {
			t.Fatal("ReleaseAll must close every connection")
		}
	}
}
