// This file is part of btags.
//
// btags is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// btags is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with btags.  If not, see <https://www.gnu.org/licenses/>.

package store

import (
	"encoding/gob"
	"errors"
	"os"

	"github.com/dwarftags/btags/model"
	"github.com/dwarftags/btags/tagerrors"
)

// DiskStore is a MemoryStore that gob-serializes its tables to a
// single file on Close and reloads them on Prepare, giving the CLI's
// -d/--database-file a real persistent backend without pulling in a
// relational engine (store.go's package doc already scopes that out).
// Grounded on the original CLI's -d/-A/-n contract
// (original_source/btagslib/cli/btags.py): a fresh run with no
// existing database file always parses; a run against an existing
// file reuses it untouched unless -n asked for the file to be removed
// first.
//
// Tag.ParentTag/AssocToTag are arena pointers, meaningless once a
// Task's goroutine exits, so they are not part of the persisted
// snapshot: a Tag reloaded from a previous run renders with no scope
// or arity field, and a reloaded EnumerationMember, which has no line
// number of its own, is not rendered at all. This only affects tags
// carried over from an earlier
// invocation; tags produced by the current run keep their live
// association graph untouched.
type DiskStore struct {
	*MemoryStore
	path   string
	loaded bool
}

// NewDiskStore creates a DiskStore, ready for Prepare.
func NewDiskStore() *DiskStore {
	return &DiskStore{MemoryStore: NewMemoryStore()}
}

// Loaded reports whether Prepare found and loaded an existing database
// file, meaning the caller may skip re-parsing the object file
// entirely and go straight to rendering, per the original CLI's
// "if not os.path.exists(db_path): parse" control flow.
func (s *DiskStore) Loaded() bool { return s.loaded }

type diskSnapshot struct {
	FileCounter int64
	TagCounter  int64
	Files       map[int64]model.File
	CUs         map[int]model.CompileUnit
	Tags        []diskTag
}

// diskTag is Tag minus its arena pointers - see the DiskStore doc
// comment on why ParentTag/AssocToTag don't survive a reload.
type diskTag struct {
	ID            int64
	Name          *string
	Kind          model.TagKind
	FileID        *int64
	CompileUnitID int
	LineNo        *int
	ColumnNo      *int
}

// Prepare opens path, loading any existing snapshot into memory. A
// missing file is not an error: it means this is a fresh database.
func (s *DiskStore) Prepare(path string) error {
	if err := s.MemoryStore.Prepare(path); err != nil {
		return err
	}
	s.path = path
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return tagerrors.Errorf(tagerrors.PreambleFatal, "store: opening database file: %v", err)
	}
	defer f.Close()

	var snap diskSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return tagerrors.Errorf(tagerrors.PreambleFatal, "store: decoding database file: %v", err)
	}

	s.mu.Lock()
	s.fileCounter = snap.FileCounter
	s.tagCounter = snap.TagCounter
	if snap.Files != nil {
		s.files = snap.Files
	}
	if snap.CUs != nil {
		s.cus = snap.CUs
	}
	for _, dt := range snap.Tags {
		s.tags = append(s.tags, model.Tag{
			ID:            dt.ID,
			Name:          dt.Name,
			Kind:          dt.Kind,
			FileID:        dt.FileID,
			CompileUnitID: dt.CompileUnitID,
			LineNo:        dt.LineNo,
			ColumnNo:      dt.ColumnNo,
		})
	}
	s.mu.Unlock()

	s.loaded = true
	return nil
}

// Close writes the current in-memory snapshot back to path, so the
// next Prepare against the same file picks up where this run left off.
func (s *DiskStore) Close() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	snap := diskSnapshot{
		FileCounter: s.fileCounter,
		TagCounter:  s.tagCounter,
		Files:       s.files,
		CUs:         s.cus,
		Tags:        make([]diskTag, len(s.tags)),
	}
	for i, t := range s.tags {
		snap.Tags[i] = diskTag{
			ID:            t.ID,
			Name:          t.Name,
			Kind:          t.Kind,
			FileID:        t.FileID,
			CompileUnitID: t.CompileUnitID,
			LineNo:        t.LineNo,
			ColumnNo:      t.ColumnNo,
		}
	}
	s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return tagerrors.Errorf(tagerrors.CommitFatal, "store: creating database file: %v", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		return tagerrors.Errorf(tagerrors.CommitFatal, "store: encoding database file: %v", err)
	}
	return nil
}
