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

package store_test

import (
	"path/filepath"
	"testing"

	"github.com/dwarftags/btags/internal/btest"
	"github.com/dwarftags/btags/model"
	"github.com/dwarftags/btags/store"
)

func TestDiskStorePrepareOnMissingFileIsFreshAndUnloaded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.db")

	s := store.NewDiskStore()
	btest.ExpectSuccess(t, s.Prepare(path))
	btest.ExpectEquality(t, s.Loaded(), false)
}

func TestDiskStoreRoundTripsThroughClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.db")

	first := store.NewDiskStore()
	btest.ExpectSuccess(t, first.Prepare(path))
	_, err := first.AddCompileUnit("/src", "a.c", 1)
	btest.ExpectSuccess(t, err)
	f, err := first.AddFile("a.c", ".")
	btest.ExpectSuccess(t, err)
	line := 10
	btest.ExpectSuccess(t, first.AddTag(&model.Tag{Name: strPtr("foo"), Kind: model.Function, FileID: &f.ID, CompileUnitID: 1, LineNo: &line}))
	btest.ExpectSuccess(t, first.Commit())
	btest.ExpectSuccess(t, first.Close())

	second := store.NewDiskStore()
	btest.ExpectSuccess(t, second.Prepare(path))
	btest.ExpectEquality(t, second.Loaded(), true)

	rows, err := second.Query()
	btest.ExpectSuccess(t, err)
	btest.ExpectEquality(t, len(rows), 1)
	btest.ExpectEquality(t, *rows[0].Tag.Name, "foo")
	btest.ExpectEquality(t, rows[0].File.Name, "a.c")
}
