package gencache_test

import (
	"os"
	"path/filepath"
	"testing"

	"stencil/internal/gencache"
)

func openCache(t *testing.T) *gencache.Cache {
	t.Helper()
	c, err := gencache.Open(filepath.Join(t.TempDir(), "fingerprints"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func sampleFingerprint() *gencache.Fingerprint {
	return gencache.New(
		"martdp",
		[]byte("using Solver = AOStarSolver<Texecution>;\n"),
		"digest-aaaa",
		[]string{"Texecution"},
		[]string{"martdpSeq.cc", "martdpPar.cc"},
	)
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openCache(t)
	want := sampleFingerprint()

	if err := c.Put(want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, found, err := c.Get("martdp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("fingerprint not found after Put")
	}
	if !got.Matches(want) {
		t.Errorf("round-tripped fingerprint does not match: got %+v, want %+v", got, want)
	}
}

func TestGetMissing(t *testing.T) {
	c := openCache(t)
	_, found, err := c.Get("ghost")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("expected a miss for an absent library")
	}
}

func TestGetCorruptIsMiss(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fingerprints")
	c, err := gencache.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// кладём мусор вместо отпечатка
	if err := os.WriteFile(filepath.Join(dir, "martdp.mp"), []byte("not msgpack"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	_, found, err := c.Get("martdp")
	if err != nil {
		t.Fatalf("Get on corrupt entry returned error: %v", err)
	}
	if found {
		t.Error("corrupt entry must be treated as a miss")
	}
}

func TestMatchesDetectsChangedInputs(t *testing.T) {
	base := sampleFingerprint()

	changedTemplate := gencache.New("martdp", []byte("different body"),
		"digest-aaaa", []string{"Texecution"}, []string{"martdpSeq.cc", "martdpPar.cc"})
	if base.Matches(changedTemplate) {
		t.Error("template change not detected")
	}

	changedAxes := sampleFingerprint()
	changedAxes.AxisDigest = "digest-bbbb"
	if base.Matches(changedAxes) {
		t.Error("axis change not detected")
	}

	changedTokens := sampleFingerprint()
	changedTokens.Tokens = []string{"Texecution", "Thashing"}
	if base.Matches(changedTokens) {
		t.Error("token change not detected")
	}

	changedFiles := sampleFingerprint()
	changedFiles.Files = []string{"martdpSeq.cc"}
	if base.Matches(changedFiles) {
		t.Error("file list change not detected")
	}

	if !base.Matches(sampleFingerprint()) {
		t.Error("identical inputs must match")
	}
	if base.Matches(nil) {
		t.Error("nil must not match")
	}
}

func TestDrop(t *testing.T) {
	c := openCache(t)
	if err := c.Put(sampleFingerprint()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Drop("martdp"); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, found, _ := c.Get("martdp"); found {
		t.Error("fingerprint survived Drop")
	}
	// повторный Drop не ошибка
	if err := c.Drop("martdp"); err != nil {
		t.Errorf("Drop on absent entry: %v", err)
	}
}

func TestDropAllKeepsCacheUsable(t *testing.T) {
	c := openCache(t)
	if err := c.Put(sampleFingerprint()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	if _, found, _ := c.Get("martdp"); found {
		t.Error("fingerprint survived DropAll")
	}
	if err := c.Put(sampleFingerprint()); err != nil {
		t.Fatalf("Put after DropAll: %v", err)
	}
	if _, found, _ := c.Get("martdp"); !found {
		t.Error("cache unusable after DropAll")
	}
}

func TestOutputsExist(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"martdpSeq.cc", "martdpPar.cc"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if !gencache.OutputsExist(dir, []string{"martdpSeq.cc", "martdpPar.cc"}) {
		t.Error("existing outputs reported missing")
	}
	if gencache.OutputsExist(dir, []string{"martdpSeq.cc", "ghost.cc"}) {
		t.Error("missing output not detected")
	}
	if !gencache.OutputsExist(dir, nil) {
		t.Error("empty file list must trivially exist")
	}
}

func TestNilCache(t *testing.T) {
	var c *gencache.Cache
	if err := c.Put(sampleFingerprint()); err != nil {
		t.Errorf("nil Put: %v", err)
	}
	if _, found, err := c.Get("martdp"); found || err != nil {
		t.Errorf("nil Get = (%v, %v)", found, err)
	}
	if err := c.Drop("martdp"); err != nil {
		t.Errorf("nil Drop: %v", err)
	}
	if err := c.DropAll(); err != nil {
		t.Errorf("nil DropAll: %v", err)
	}
}
