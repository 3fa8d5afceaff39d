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

// Package ctagsfmt renders a tag store's query result as the classic
// ctags text format, grounded on
// original_source/btagslib/tagfile/ctag.py's CtagFormat. Rendering is
// explicitly not part of the core pipeline, but is implemented in
// full since a repository that stops at "an opaque store" can't be
// exercised end to end.
package ctagsfmt

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dwarftags/btags/model"
	"github.com/dwarftags/btags/store"
)

var kindChar = map[model.TagKind]string{
	model.Class:             "c",
	model.Macro:             "d",
	model.EnumerationMember: "e",
	model.Enumeration:       "g",
	model.Member:            "m",
	model.Function:          "p",
	model.Structure:         "s",
	model.Typedef:           "t",
	model.Union:             "u",
	model.Variable:          "v",
}

var scopeField = map[model.TagKind]string{
	model.Class:       "class",
	model.Enumeration:  "enum",
	model.Union:        "union",
	model.Structure:    "struct",
	model.Function:     "function",
}

// Write renders rows (expected pre-sorted by store.Query's
// (tag.name, file.file_name, tag.line_no) order) as a ctags stream,
// suppressing consecutive duplicates by (name, file_name,
// file_directory, line_no).
//
// projectDir and compileDir mirror the original renderer's work_dir/
// comp_dir parameters (original_source/btagslib/tagfile/ctag.py's
// get_tag_file): when compileDir is set, a row's path is resolved
// against it and its file's dir-relative-to-comp-dir field, then made
// relative to projectDir; otherwise the file's already-resolved
// Directory is used as-is. Both may be empty, matching the prior
// behavior exactly.
func Write(w io.Writer, rows []store.QueryRow, projectDir, compileDir string) error {
	bw := bufio.NewWriter(w)

	// arity is the count of FormalParameter tags whose assoc_to_tag
	// is each function, computed once over the full row set since a
	// function and its parameters may not be adjacent after sorting
	// by name.
	arity := computeArity(rows)

	var prev *store.QueryRow
	for i := range rows {
		row := &rows[i]
		if prev != nil && isDuplicate(prev, row) {
			continue
		}
		line, ok := renderRow(row, arity, projectDir, compileDir)
		if ok {
			if _, err := bw.WriteString(line); err != nil {
				return err
			}
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
		prev = row
	}

	return bw.Flush()
}

func isDuplicate(prev, cur *store.QueryRow) bool {
	return nameOf(prev.Tag) == nameOf(cur.Tag) &&
		prev.File.Name == cur.File.Name &&
		prev.File.Directory == cur.File.Directory &&
		lineOf(prev.Tag) == lineOf(cur.Tag)
}

// computeArity counts, for each function Tag (by pointer identity
// surfaced through its id), the FormalParameter tags associated to it.
func computeArity(rows []store.QueryRow) map[int64]int {
	arity := make(map[int64]int)
	for i := range rows {
		tag := rows[i].Tag
		if tag.Kind != model.FormalParameter || tag.AssocToTag == nil {
			continue
		}
		if tag.AssocToTag.Kind != model.Function {
			continue
		}
		arity[tag.AssocToTag.ID]++
	}
	return arity
}

// renderRow builds one ctags line for row. ok is false if the row
// lacks enough information to render (no file, no name, or no
// resolvable line number after walking parent_tag), mirroring the
// reference renderer's LackInfoException, which silently skips the
// tag rather than emitting a garbage row.
func renderRow(row *store.QueryRow, arity map[int64]int, projectDir, compileDir string) (string, bool) {
	tag := row.Tag
	if tag.FileID == nil {
		return "", false
	}
	if !tag.HasName() {
		return "", false
	}
	name := *tag.Name

	lineNo, ok := resolveLineNo(&tag)
	if !ok {
		return "", false
	}

	relPath := resolveRelPath(row, projectDir, compileDir)

	var viField string
	if tag.Kind == model.EnumerationMember {
		viField = fmt.Sprintf("%s\t%s\t%d;/%s/;\"", name, relPath, lineNo, name)
	} else {
		viField = fmt.Sprintf("%s\t%s\t/\\%%%dl%s/;\"", name, relPath, lineNo, name)
	}

	line := viField

	if kc, ok := kindChar[tag.Kind]; ok {
		line += "\t" + kc
	}

	if assocField, assocName, ok := scopeOf(&tag); ok {
		line += fmt.Sprintf("\t%s:%s", assocField, assocName)
	}

	if tag.Kind == model.Function {
		line += fmt.Sprintf("\tarity:%d", arity[tag.ID])
	}

	line += "\tfile:"

	return line, true
}

// resolveRelPath computes a row's path the way _get_vi_field does: if
// compileDir is set, the file's path relative to the compile directory
// is resolved against it and made absolute, then expressed relative to
// projectDir; otherwise the file's own already-resolved Directory is
// used directly. Falls back to the unresolved absolute form whenever
// filepath.Rel can't relate the two (e.g. projectDir left at its "."
// default against an absolute file path) rather than erroring the row.
func resolveRelPath(row *store.QueryRow, projectDir, compileDir string) string {
	var filePath string
	if compileDir != "" {
		filePath = filepath.Join(compileDir, row.File.DirRelToCompDir, row.File.Name)
		if !filepath.IsAbs(filePath) {
			if abs, err := filepath.Abs(filePath); err == nil {
				filePath = abs
			}
		}
	} else {
		filePath = filepath.Join(row.File.Directory, row.File.Name)
	}

	workDir := projectDir
	if workDir == "" {
		workDir = "."
	}
	if rel, err := filepath.Rel(workDir, filePath); err == nil {
		return rel
	}
	return filePath
}

// resolveLineNo walks parent_tag links when the tag's own line number
// is null, matching the reference renderer's _get_vi_field loop.
func resolveLineNo(tag *model.Tag) (int, bool) {
	for cur := tag; cur != nil; cur = cur.ParentTag {
		if cur.LineNo != nil {
			return *cur.LineNo, true
		}
	}
	return 0, false
}

func scopeOf(tag *model.Tag) (field, name string, ok bool) {
	switch tag.Kind {
	case model.Member, model.FormalParameter, model.EnumerationMember:
	default:
		return "", "", false
	}
	if tag.AssocToTag == nil || !tag.AssocToTag.HasName() {
		return "", "", false
	}
	f, known := scopeField[tag.AssocToTag.Kind]
	if !known {
		return "", "", false
	}
	return f, *tag.AssocToTag.Name, true
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
