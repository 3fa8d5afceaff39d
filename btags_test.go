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

package main

import (
	"testing"

	"github.com/dwarftags/btags/internal/btest"
)

func TestFlagDefaults(t *testing.T) {
	flags := rootCmd.Flags()

	tagFile, err := flags.GetString("tag-file")
	btest.ExpectSuccess(t, err)
	btest.ExpectEquality(t, tagFile, "./tags")

	jobs, err := flags.GetInt("jobs")
	btest.ExpectSuccess(t, err)
	btest.ExpectEquality(t, jobs, 1)

	onlyDB, err := flags.GetBool("only-database")
	btest.ExpectSuccess(t, err)
	btest.ExpectEquality(t, onlyDB, false)

	dbFile, err := flags.GetString("database-file")
	btest.ExpectSuccess(t, err)
	btest.ExpectEquality(t, dbFile, "")

	appendDB, err := flags.GetBool("append-db")
	btest.ExpectSuccess(t, err)
	btest.ExpectEquality(t, appendDB, false)

	newDB, err := flags.GetBool("new-db")
	btest.ExpectSuccess(t, err)
	btest.ExpectEquality(t, newDB, false)
}

func TestAppendDBAndNewDBAreMutuallyExclusive(t *testing.T) {
	err := rootCmd.ParseFlags([]string{"--append-db", "--new-db"})
	btest.ExpectSuccess(t, err)
	err = rootCmd.ValidateFlagGroups()
	btest.ExpectFailure(t, err)

	btest.ExpectSuccess(t, rootCmd.Flags().Set("append-db", "false"))
	btest.ExpectSuccess(t, rootCmd.Flags().Set("new-db", "false"))
}

func TestRunBtagsRequiresExactlyOneArg(t *testing.T) {
	err := rootCmd.Args(rootCmd, []string{})
	btest.ExpectFailure(t, err)

	err = rootCmd.Args(rootCmd, []string{"a.elf", "b.elf"})
	btest.ExpectFailure(t, err)

	err = rootCmd.Args(rootCmd, []string{"a.elf"})
	btest.ExpectSuccess(t, err)
}

// A missing or debug-info-less binary is spec §7's "input-absent"
// kind: reported once and the process exits cleanly, not as an error.
func TestRunBtagsOnMissingFileExitsCleanly(t *testing.T) {
	err := runBtags(rootCmd, []string{"/nonexistent/binary/path"})
	btest.ExpectSuccess(t, err)
}
