package filestore

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/secret"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
)

// document is the persisted store layout. Older deployments wrote a flat
// credential list with no domains wrapper; load lifts that form into the
// global domain and the next save writes the current layout.
type document struct {
	Store storeDoc `yaml:"store"`
}

type storeDoc struct {
	Domains []domainDoc `yaml:"domains"`
	// Credentials is the legacy flat-list form.
	Credentials []credentials.Record `yaml:"credentials,omitempty"`
}

type domainDoc struct {
	Name           *string              `yaml:"name"`
	Description    string               `yaml:"description,omitempty"`
	Specifications []specDoc            `yaml:"specifications,omitempty"`
	Credentials    []credentials.Record `yaml:"credentials,omitempty"`
}

type specDoc struct {
	Kind   string            `yaml:"kind"`
	Params map[string]string `yaml:"params,omitempty"`
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return credErrors.Wrap(credErrors.IO, err, "reading store %s", s.path)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		// Oldest deployments persisted a bare record list.
		var flat []credentials.Record
		if flatErr := yaml.Unmarshal(data, &flat); flatErr != nil {
			return credErrors.Wrap(credErrors.IO, err, "parsing store %s", s.path)
		}
		doc.Store.Credentials = flat
	}

	if len(doc.Store.Domains) == 0 && len(doc.Store.Credentials) > 0 {
		doc.Store.Domains = []domainDoc{{Credentials: doc.Store.Credentials}}
		s.logger.Debug("store %s uses the legacy flat layout; upgrading on next save", s.path)
	}

	entries := []*domainEntry{{dom: domain.Global()}}
	for _, dd := range doc.Store.Domains {
		var entry *domainEntry
		if dd.Name == nil || *dd.Name == "" {
			entry = entries[0]
			// Global domain carries no specifications by definition.
		} else {
			specs := make([]domain.Specification, 0, len(dd.Specifications))
			for _, sd := range dd.Specifications {
				spec, err := domain.SpecificationFromParams(sd.Kind, sd.Params)
				if err != nil {
					return credErrors.Wrap(credErrors.IO, err, "store %s domain %q", s.path, *dd.Name)
				}
				specs = append(specs, spec)
			}
			dom, err := domain.New(*dd.Name, dd.Description, specs...)
			if err != nil {
				return credErrors.Wrap(credErrors.IO, err, "store %s", s.path)
			}
			entry = &domainEntry{dom: dom}
			entries = append(entries, entry)
		}
		for _, rec := range dd.Credentials {
			c, err := credentials.FromRecord(rec)
			if err != nil {
				return credErrors.Wrap(credErrors.IO, err, "store %s domain %q", s.path, entry.dom.Name())
			}
			entry.creds = append(entry.creds, c)
		}
	}
	s.domains = entries
	return nil
}

// snapshotDoc renders the current structure under the read lock.
func (s *Store) snapshotDoc() document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var doc document
	for _, e := range s.domains {
		dd := domainDoc{Description: e.dom.Description()}
		if !e.dom.IsGlobal() {
			name := e.dom.Name()
			dd.Name = &name
		}
		for _, spec := range e.dom.Specs() {
			dd.Specifications = append(dd.Specifications, specDoc{
				Kind:   string(spec.Kind()),
				Params: spec.Params(),
			})
		}
		for _, c := range e.creds {
			dd.Credentials = append(dd.Credentials, c.ToRecord())
		}
		doc.Store.Domains = append(doc.Store.Domains, dd)
	}
	return doc
}

// Document serialises the store. Normal serialisation emits ciphertext;
// with redact set (extended-read callers), secret payloads are replaced
// by the redaction token.
func (s *Store) Document(redact bool) ([]byte, error) {
	doc := s.snapshotDoc()
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, credErrors.Wrap(credErrors.IO, err, "serialising store %s", s.path)
	}
	if redact {
		data = secret.NewRedactors().RedactDocument(data)
	}
	return data, nil
}

// Save persists the full store atomically (write-to-temp + rename).
// Inside a bulk-change scope the write is deferred to scope exit.
func (s *Store) Save() error {
	s.bulkMu.Lock()
	if s.bulkDepth > 0 {
		s.savePending = true
		s.bulkMu.Unlock()
		return nil
	}
	s.bulkMu.Unlock()
	return s.flush()
}

// saveOrDefer is invoked after every successful mutation.
func (s *Store) saveOrDefer() error {
	return s.Save()
}

// flush performs the actual write. The save mutex serialises flushes so
// a slow disk never blocks readers, who only contend on s.mu.
func (s *Store) flush() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := s.Document(false)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return credErrors.Wrap(credErrors.IO, err, "creating store directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return credErrors.Wrap(credErrors.IO, err, "creating temp file for %s", s.path)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return credErrors.Wrap(credErrors.IO, err, "writing %s", tmpName)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return credErrors.Wrap(credErrors.IO, err, "setting mode on %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return credErrors.Wrap(credErrors.IO, err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return credErrors.Wrap(credErrors.IO, err, "replacing %s", s.path)
	}
	return nil
}

// BeginBulk opens a bulk-change scope: saves are suspended until the
// returned release function runs. Scopes nest; the outermost release
// performs the final save exactly once. Callers must release on all
// exits:
//
//	done := s.BeginBulk()
//	defer done()
func (s *Store) BeginBulk() func() error {
	s.bulkMu.Lock()
	s.bulkDepth++
	s.bulkMu.Unlock()

	var once bool
	return func() error {
		if once {
			return nil
		}
		once = true
		s.bulkMu.Lock()
		s.bulkDepth--
		final := s.bulkDepth == 0 && s.savePending
		if final {
			s.savePending = false
		}
		s.bulkMu.Unlock()
		if final {
			return s.flush()
		}
		return nil
	}
}
