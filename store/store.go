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

// Package store defines the persistence interface used by the
// extraction pipeline (spec §6) and a reference in-memory
// implementation. The relational store engine itself is explicitly
// out of scope for this system - any backend conforming to Store
// works - so MemoryStore exists to make the pipeline runnable and
// testable end to end, not as a production persistence layer.
package store

import (
	"path"
	"sort"
	"sync"

	"github.com/dwarftags/btags/model"
	"github.com/dwarftags/btags/tagerrors"
)

// QueryRow is one joined (Tag, File, CompileUnit) result row, ordered
// and ready for rendering.
type QueryRow struct {
	Tag  model.Tag
	File model.File
	CU   model.CompileUnit
}

// Store is the only surface the core extraction pipeline uses.
type Store interface {
	// Prepare initializes or opens the store at path. It must make
	// schema present for a fresh store.
	Prepare(path string) error

	// AddCompileUnit persists a CompileUnit with the given explicit id.
	AddCompileUnit(compDir, compFile string, id int) (*model.CompileUnit, error)

	// AddFile persists a File, assigning its id from the store's
	// shared, mutex-guarded counter.
	AddFile(name, dirRelToCompDir string) (*model.File, error)

	// AddTag persists a Tag. Foreign keys may be unresolved until Commit.
	AddTag(tag *model.Tag) error

	// Commit flushes everything added since the last Commit.
	Commit() error

	// Close releases any resources held by this session.
	Close() error

	// Query returns every tag joined to its File and CompileUnit,
	// ordered by (tag.name, file.file_name, tag.line_no).
	Query() ([]QueryRow, error)
}

// MemoryStore is a mutex-guarded, in-process reference Store
// implementation, modeled on the teacher's own database.Session:
// a shared id counter, simple table maps, and ordered iteration
// instead of a real SQL engine.
type MemoryStore struct {
	mu sync.Mutex

	fileCounter int64
	tagCounter  int64

	files map[int64]model.File
	cus   map[int]model.CompileUnit
	tags  []model.Tag
}

// NewMemoryStore creates an empty MemoryStore, ready for Prepare.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[int64]model.File),
		cus:   make(map[int]model.CompileUnit),
	}
}

func (s *MemoryStore) Prepare(_ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[int64]model.File)
	}
	if s.cus == nil {
		s.cus = make(map[int]model.CompileUnit)
	}
	return nil
}

func (s *MemoryStore) AddCompileUnit(compDir, compFile string, id int) (*model.CompileUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cu := model.CompileUnit{ID: id, CompDir: compDir, CompFile: compFile}
	s.cus[id] = cu
	return &cu, nil
}

func (s *MemoryStore) AddFile(name, dirRelToCompDir string) (*model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fileCounter++
	f := model.File{
		ID:              s.fileCounter,
		Name:            name,
		Directory:       joinAndDir(dirRelToCompDir, name),
		DirRelToCompDir: dirRelToCompDir,
	}
	s.files[f.ID] = f
	return &f, nil
}

func (s *MemoryStore) AddTag(tag *model.Tag) error {
	if tag == nil || tag.Name == nil {
		return tagerrors.Errorf(tagerrors.CommitFatal, "store: refusing to persist a nameless tag")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tagCounter++
	// ID is assigned on the arena object itself, not a copy: other
	// Tags' ParentTag/AssocToTag fields are pointers into this same
	// arena, and need to observe the assigned id once this tag's
	// row is queried back out through one of those pointers.
	tag.ID = s.tagCounter
	s.tags = append(s.tags, *tag)
	return nil
}

func (s *MemoryStore) Commit() error { return nil }
func (s *MemoryStore) Close() error  { return nil }

func (s *MemoryStore) Query() ([]QueryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]QueryRow, 0, len(s.tags))
	for _, t := range s.tags {
		row := QueryRow{Tag: t}
		if t.FileID != nil {
			row.File = s.files[*t.FileID]
		}
		row.CU = s.cus[t.CompileUnitID]
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		ni, nj := nameOf(rows[i].Tag), nameOf(rows[j].Tag)
		if ni != nj {
			return ni < nj
		}
		if rows[i].File.Name != rows[j].File.Name {
			return rows[i].File.Name < rows[j].File.Name
		}
		return lineOf(rows[i].Tag) < lineOf(rows[j].Tag)
	})

	return rows, nil
}

func nameOf(t model.Tag) string {
	if t.Name == nil {
		return ""
	}
	return *t.Name
}

func lineOf(t model.Tag) int {
	if t.LineNo == nil {
		return -1
	}
	return *t.LineNo
}

func joinAndDir(dirRelToCompDir, name string) string {
	// Directory mirrors the teacher-adjacent original's normpath(dir/name)
	// then dirname(): the File.Directory field is the parent directory of
	// the normalized (dirRelToCompDir, name) join.
	full := dirRelToCompDir
	if full == "" {
		full = "."
	}
	return path.Dir(path.Join(full, name))
}
