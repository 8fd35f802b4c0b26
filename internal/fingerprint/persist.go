package fingerprint

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	credErrors "github.com/systmms/credhub/internal/errors"
)

// ledgerDoc is the persisted layout. Records are kept sorted by hash so
// the document is deterministic for a given ledger state.
type ledgerDoc struct {
	Fingerprints []Record `yaml:"fingerprints"`
}

// SaveTo writes the ledger atomically.
func (l *Ledger) SaveTo(path string) error {
	doc := ledgerDoc{Fingerprints: l.Snapshot()}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return credErrors.Wrap(credErrors.IO, err, "serialising fingerprint ledger")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return credErrors.Wrap(credErrors.IO, err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return credErrors.Wrap(credErrors.IO, err, "creating temp file for %s", path)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return credErrors.Wrap(credErrors.IO, err, "writing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return credErrors.Wrap(credErrors.IO, err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return credErrors.Wrap(credErrors.IO, err, "replacing %s", path)
	}
	return nil
}

// LoadFrom replaces the ledger contents from path. A missing file
// leaves the ledger empty.
func (l *Ledger) LoadFrom(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return credErrors.Wrap(credErrors.IO, err, "reading fingerprint ledger %s", path)
	}
	var doc ledgerDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return credErrors.Wrap(credErrors.IO, err, "parsing fingerprint ledger %s", path)
	}

	records := make(map[string]*Record, len(doc.Fingerprints))
	for i := range doc.Fingerprints {
		r := doc.Fingerprints[i]
		records[r.Hash] = &r
	}
	l.mu.Lock()
	l.records = records
	l.mu.Unlock()
	return nil
}
