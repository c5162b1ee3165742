package cache

import (
	"encoding/json"
	"os"
	"sort"

	"golang.org/x/crypto/blake2b"

	"arr/internal/probe"
)

// VerifyStatus classifies one cache entry during verification.
type VerifyStatus string

const (
	// VerifyFresh means mtime and metadata both still match.
	VerifyFresh VerifyStatus = "fresh"
	// VerifyStaleMtime means the file changed on disk since caching.
	VerifyStaleMtime VerifyStatus = "stale-mtime"
	// VerifyContentDrift means the mtime still matches but the file's
	// metadata no longer agrees with the cached record.
	VerifyContentDrift VerifyStatus = "content-drift"
	// VerifyMissing means the cached file no longer exists.
	VerifyMissing VerifyStatus = "missing"
	// VerifyUnreadable means the file exists but cannot be read; a file
	// that reads but no longer decodes is reported as content drift.
	VerifyUnreadable VerifyStatus = "unreadable"
)

// VerifyEntry is one row of a verification report.
type VerifyEntry struct {
	Path   string       `json:"path"`
	Status VerifyStatus `json:"status"`
}

// Verify checks every cached entry against the filesystem. Content
// comparison goes through BLAKE2b digests of the canonical metadata
// encoding, which catches same-mtime edits that the mtime key cannot.
func (c *ResolutionCache) Verify() []VerifyEntry {
	c.mu.RLock()
	snapshot := make(map[string]entry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	paths := make([]string, 0, len(snapshot))
	for p := range snapshot {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	report := make([]VerifyEntry, 0, len(paths))
	for _, p := range paths {
		report = append(report, VerifyEntry{Path: p, Status: verifyOne(p, snapshot[p])})
	}
	return report
}

func verifyOne(path string, e entry) VerifyStatus {
	info, err := os.Stat(path)
	if err != nil {
		return VerifyMissing
	}
	if info.ModTime().UnixNano() != e.mtime {
		return VerifyStaleMtime
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return VerifyUnreadable
	}
	fresh, err := probe.Decode(path, data)
	if err != nil {
		return VerifyContentDrift
	}
	if resultDigest(fresh) != resultDigest(e.result) {
		return VerifyContentDrift
	}
	return VerifyFresh
}

func resultDigest(r *probe.Result) [blake2b.Size256]byte {
	raw, err := json.Marshal(r)
	if err != nil {
		return [blake2b.Size256]byte{}
	}
	return blake2b.Sum256(raw)
}
