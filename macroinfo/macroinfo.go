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

// Package macroinfo parses the classic DWARF .debug_macinfo stream
// (component C4), splitting it into one macro list per compile unit
// and converting DW_MACINFO_define records into Tag records of kind
// Macro. It is grounded on original_source/btagslib/elftoolsext/macro.py's
// Macro.get_macro_list, re-expressed as a byte-stream parser instead
// of a construct-library Struct description, since Go has no
// equivalent declarative binary-struct library in the retrieved corpus.
package macroinfo

import (
	"strings"

	"github.com/dwarftags/btags/model"
	"github.com/dwarftags/btags/store"
	"github.com/dwarftags/btags/tagerrors"
	"github.com/dwarftags/btags/tagextract"
)

const (
	opDefine     = 0x01
	opUndef      = 0x02
	opStartFile  = 0x03
	opEndFile    = 0x04
	opVendorExt  = 0xff
	opNull       = 0x00
)

// ParseLists splits a raw .debug_macinfo stream into one list of
// MacroInfoRecord per compile unit, in the order the NULL terminators
// occur (which matches the order of the CUs that carried
// DW_AT_macro_info, per spec §4.4).
func ParseLists(data []byte) ([][]model.MacroInfoRecord, error) {
	var result [][]model.MacroInfoRecord
	var current []model.MacroInfoRecord
	fileStack := []int{-1}

	b := &byteCursor{data: data}
	for b.pos < len(b.data) {
		op := b.data[b.pos]
		b.pos++

		switch op {
		case opNull:
			result = append(result, current)
			current = nil
			fileStack = []int{-1}

		case opDefine:
			line, err := b.uleb128()
			if err != nil {
				return nil, tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: define: %v", err)
			}
			body, err := b.cstring()
			if err != nil {
				return nil, tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: define: %v", err)
			}
			top := fileStack[len(fileStack)-1]
			if top > 0 {
				current = append(current, recordFromDefine(body, line, top))
			}

		case opUndef:
			if _, err := b.uleb128(); err != nil {
				return nil, tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: undef: %v", err)
			}
			if _, err := b.cstring(); err != nil {
				return nil, tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: undef: %v", err)
			}

		case opStartFile:
			if _, err := b.uleb128(); err != nil {
				return nil, tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: start_file: %v", err)
			}
			fileIdx, err := b.uleb128()
			if err != nil {
				return nil, tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: start_file: %v", err)
			}
			fileStack = append(fileStack, int(fileIdx))

		case opEndFile:
			if len(fileStack) > 1 {
				fileStack = fileStack[:len(fileStack)-1]
			}

		case opVendorExt:
			if _, err := b.uleb128(); err != nil {
				return nil, tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: vendor_ext: %v", err)
			}
			if _, err := b.uleb128(); err != nil {
				return nil, tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: vendor_ext: %v", err)
			}

		default:
			return nil, tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: unknown opcode 0x%02x", op)
		}
	}

	// A trailing list with no closing NULL is dropped, matching the
	// reference parser: only NULL-terminated per-CU lists are kept.
	return result, nil
}

// recordFromDefine splits a DW_MACINFO_define body as spec §4.4
// requires: name is the body up to the first space or '(', full name
// is the body up to the first space, content is the remainder.
func recordFromDefine(body string, line uint64, fileIdx int) model.MacroInfoRecord {
	fullName := body
	content := ""
	if i := strings.IndexByte(body, ' '); i >= 0 {
		fullName = body[:i]
		content = body[i+1:]
	}

	name := fullName
	if i := strings.IndexByte(fullName, '('); i >= 0 {
		name = fullName[:i]
	}

	return model.MacroInfoRecord{
		Name:     name,
		FullName: fullName,
		Content:  content,
		Line:     line,
		FileIdx:  fileIdx,
	}
}

type byteCursor struct {
	data []byte
	pos  int
}

func (b *byteCursor) uleb128() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if b.pos >= len(b.data) {
			return 0, tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: truncated uleb128")
		}
		v := b.data[b.pos]
		b.pos++
		result |= uint64(v&0x7f) << shift
		if v&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, nil
}

// Emit converts each per-CU macro list into Macro-kind Tag records and
// commits them as one batch per compile unit, per spec §4.4: "C4
// receives the list-of-per-CU-lists, plus the parallel arrays of CU
// ids and per-CU file-id maps produced by C3's preambles". lists,
// cuIDs and fileMaps must be the same length and in the same order
// (the order the scheduler enqueued each CU's preamble).
func Emit(st store.Store, lists [][]model.MacroInfoRecord, cuIDs []int, fileMaps []tagextract.FileMap) error {
	if len(lists) != len(cuIDs) || len(lists) != len(fileMaps) {
		return tagerrors.Errorf(tagerrors.CommitFatal, "macroinfo: mismatched cu/file-map arrays")
	}

	for i, records := range lists {
		cuID := cuIDs[i]
		fileMap := fileMaps[i]

		for _, rec := range records {
			f, ok := fileMap[rec.FileIdx]
			if !ok || f == nil {
				continue
			}
			name := rec.Name
			line := int(rec.Line)
			fileID := f.ID

			tag := &model.Tag{
				Name:          &name,
				Kind:          model.Macro,
				FileID:        &fileID,
				CompileUnitID: cuID,
				LineNo:        &line,
			}
			if err := st.AddTag(tag); err != nil {
				return tagerrors.WithTask(cuID, tagerrors.Errorf(tagerrors.CommitFatal, "macroinfo: %v", err))
			}
		}

		if err := st.Commit(); err != nil {
			return tagerrors.WithTask(cuID, tagerrors.Errorf(tagerrors.CommitFatal, "macroinfo: %v", err))
		}
	}

	return nil
}

func (b *byteCursor) cstring() (string, error) {
	start := b.pos
	for b.pos < len(b.data) {
		if b.data[b.pos] == 0 {
			s := string(b.data[start:b.pos])
			b.pos++
			return s, nil
		}
		b.pos++
	}
	return "", tagerrors.Errorf(tagerrors.UnknownMacinfoOpcode, "macroinfo: unterminated string")
}
