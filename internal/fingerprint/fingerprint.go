// Package fingerprint tracks where credentials are used. Each tracked
// credential gets a stable hash; usage is recorded as facets naming the
// run, item or node that touched it.
package fingerprint

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/metrics"
	"github.com/systmms/credhub/pkg/credentials"
)

// Algorithm selects the digest used for credential hashes.
type Algorithm string

const (
	// MD5 is the historical default. The hash is an identity key, not
	// an integrity check; collisions only conflate usage records.
	MD5 Algorithm = "md5"
	// SHA256 is the FIPS-friendly alternative.
	SHA256 Algorithm = "sha256"
)

// HashOf computes the ledger key of c: the named digest over the
// credential's redacted snapshot with keys in sorted order, prefixed
// with the algorithm so mixed ledgers stay unambiguous. The snapshot,
// not the ciphertext record, is hashed: ciphertext tokens embed a fresh
// nonce per encryption, while equal-by-value credentials must hash
// equal. No plaintext secret enters the digest.
func HashOf(c credentials.Credential, alg Algorithm) string {
	snap := c.Snapshot()

	var b strings.Builder
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(0)
		b.WriteString(snap[k])
		b.WriteByte(0)
	}

	switch alg {
	case SHA256:
		sum := sha256.Sum256([]byte(b.String()))
		return "sha256:" + hex.EncodeToString(sum[:])
	default:
		sum := md5.Sum([]byte(b.String()))
		return "md5:" + hex.EncodeToString(sum[:])
	}
}

// RunFacet records usage by a run. Consecutive runs of the same job
// collapse into one facet spanning first to last use.
type RunFacet struct {
	Job      string    `yaml:"job"`
	RunID    string    `yaml:"runId"`
	FirstUse time.Time `yaml:"firstUse"`
	LastUse  time.Time `yaml:"lastUse"`
}

// ItemFacet records that an item configuration references a credential.
type ItemFacet struct {
	Item      string    `yaml:"item"`
	FirstSeen time.Time `yaml:"firstSeen"`
	LastSeen  time.Time `yaml:"lastSeen"`
}

// NodeFacet records usage while provisioning a node. One facet per
// node, spanning first to most recent use.
type NodeFacet struct {
	Node      string    `yaml:"node"`
	FirstSeen time.Time `yaml:"firstSeen"`
	LastSeen  time.Time `yaml:"lastSeen"`
}

// Record is everything the ledger knows about one credential.
type Record struct {
	Hash      string      `yaml:"hash"`
	Type      string      `yaml:"type"`
	ID        string      `yaml:"id"`
	FirstSeen time.Time   `yaml:"firstSeen"`
	LastSeen  time.Time   `yaml:"lastSeen"`
	Runs      []RunFacet  `yaml:"runs,omitempty"`
	Items     []ItemFacet `yaml:"items,omitempty"`
	Nodes     []NodeFacet `yaml:"nodes,omitempty"`
}

// Listener observes every tracking event, even when recording is
// switched off.
type Listener func(hash string, c credentials.Credential)

// Ledger is the in-memory usage ledger.
type Ledger struct {
	mu        sync.RWMutex
	records   map[string]*Record
	listeners []Listener

	// Enabled gates recording; listeners fire regardless.
	enabled bool
	alg     Algorithm
	now     func() time.Time
}

// Options configures a ledger.
type Options struct {
	// Enabled starts recording immediately. Matches the
	// fingerprintEnabled configuration knob.
	Enabled bool
	// Algorithm defaults to MD5.
	Algorithm Algorithm
	// Now overrides the clock (tests).
	Now func() time.Time
}

// NewLedger creates a ledger.
func NewLedger(opts Options) *Ledger {
	if opts.Algorithm == "" {
		opts.Algorithm = MD5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		records: make(map[string]*Record),
		enabled: opts.Enabled,
		alg:     opts.Algorithm,
		now:     opts.Now,
	}
}

// SetEnabled toggles recording at runtime.
func (l *Ledger) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Subscribe registers a listener for tracking events.
func (l *Ledger) Subscribe(fn Listener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *Ledger) notify(hash string, c credentials.Credential) {
	l.mu.RLock()
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		fn(hash, c)
	}
}

// record returns the ledger entry for c, creating it when needed. Must
// be called with mu held.
func (l *Ledger) record(hash string, c credentials.Credential) *Record {
	r, ok := l.records[hash]
	if !ok {
		r = &Record{
			Hash:      hash,
			Type:      c.TypeTag(),
			ID:        c.ID(),
			FirstSeen: l.now(),
		}
		l.records[hash] = r
	}
	r.LastSeen = l.now()
	return r
}

// TrackRun records that run runID of job used c.
func (l *Ledger) TrackRun(c credentials.Credential, job, runID string) string {
	hash := HashOf(c, l.alg)
	defer l.notify(hash, c)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return hash
	}
	metrics.IncFingerprintsTracked()
	r := l.record(hash, c)
	now := l.now()
	// Repeated use by the same job collapses into the trailing facet,
	// carrying the first use forward.
	if n := len(r.Runs); n > 0 && r.Runs[n-1].Job == job {
		r.Runs[n-1].RunID = runID
		r.Runs[n-1].LastUse = now
		return hash
	}
	r.Runs = append(r.Runs, RunFacet{Job: job, RunID: runID, FirstUse: now, LastUse: now})
	return hash
}

// TrackItem records that item's configuration references c.
func (l *Ledger) TrackItem(c credentials.Credential, item string) string {
	hash := HashOf(c, l.alg)
	defer l.notify(hash, c)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return hash
	}
	metrics.IncFingerprintsTracked()
	r := l.record(hash, c)
	now := l.now()
	for i := range r.Items {
		if r.Items[i].Item == item {
			r.Items[i].LastSeen = now
			return hash
		}
	}
	r.Items = append(r.Items, ItemFacet{Item: item, FirstSeen: now, LastSeen: now})
	return hash
}

// TrackNode records that provisioning node used c.
func (l *Ledger) TrackNode(c credentials.Credential, node string) string {
	hash := HashOf(c, l.alg)
	defer l.notify(hash, c)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return hash
	}
	metrics.IncFingerprintsTracked()
	r := l.record(hash, c)
	now := l.now()
	for i := range r.Nodes {
		if r.Nodes[i].Node == node {
			r.Nodes[i].LastSeen = now
			return hash
		}
	}
	r.Nodes = append(r.Nodes, NodeFacet{Node: node, FirstSeen: now, LastSeen: now})
	return hash
}

// Get returns the record for hash.
func (l *Ledger) Get(hash string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.records[hash]
	if !ok {
		return Record{}, credErrors.NotFoundf("no usage recorded under %s", hash)
	}
	return cloneRecord(r), nil
}

// Of returns the record for a credential.
func (l *Ledger) Of(c credentials.Credential) (Record, error) {
	return l.Get(HashOf(c, l.alg))
}

// Snapshot returns all records ordered by hash.
func (l *Ledger) Snapshot() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	hashes := make([]string, 0, len(l.records))
	for h := range l.records {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	out := make([]Record, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, cloneRecord(l.records[h]))
	}
	return out
}

// Prune drops facets whose subject no longer exists, and whole records
// once every facet is gone. The callbacks judge existence; a nil
// callback keeps that facet class untouched.
func (l *Ledger) Prune(jobExists, itemExists, nodeExists func(string) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for hash, r := range l.records {
		if jobExists != nil {
			r.Runs = filterRuns(r.Runs, jobExists)
		}
		if itemExists != nil {
			r.Items = filterItems(r.Items, itemExists)
		}
		if nodeExists != nil {
			r.Nodes = filterNodes(r.Nodes, nodeExists)
		}
		if len(r.Runs) == 0 && len(r.Items) == 0 && len(r.Nodes) == 0 {
			delete(l.records, hash)
			removed++
		}
	}
	return removed
}

func filterRuns(in []RunFacet, keep func(string) bool) []RunFacet {
	out := in[:0]
	for _, f := range in {
		if keep(f.Job) {
			out = append(out, f)
		}
	}
	return out
}

func filterItems(in []ItemFacet, keep func(string) bool) []ItemFacet {
	out := in[:0]
	for _, f := range in {
		if keep(f.Item) {
			out = append(out, f)
		}
	}
	return out
}

func filterNodes(in []NodeFacet, keep func(string) bool) []NodeFacet {
	out := in[:0]
	for _, f := range in {
		if keep(f.Node) {
			out = append(out, f)
		}
	}
	return out
}

func cloneRecord(r *Record) Record {
	out := *r
	out.Runs = append([]RunFacet(nil), r.Runs...)
	out.Items = append([]ItemFacet(nil), r.Items...)
	out.Nodes = append([]NodeFacet(nil), r.Nodes...)
	return out
}

// Describe renders a one-line summary for diagnostics.
func (r Record) Describe() string {
	return fmt.Sprintf("%s (%s) runs=%d items=%d nodes=%d", r.ID, r.Type, len(r.Runs), len(r.Items), len(r.Nodes))
}
