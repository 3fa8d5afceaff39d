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

// Package dwarfcursor wraps debug/dwarf with the view the extractor
// needs per compile unit: a DIE stream in tree order with explicit
// null-DIE terminators, and the CU's resolved file table. It is the
// Go-native counterpart of the teacher's coprocessor/developer/dwarf
// DIE walk (dwarf_builder.go), generalized from Gopher2600's own
// source-level model to a CU-oriented cursor that tagextract drives
// directly.
package dwarfcursor

import (
	"debug/dwarf"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dwarftags/btags/tagerrors"
)

// Cursor iterates the compile units of a DWARF object in file order.
type Cursor struct {
	data *dwarf.Data
	r    *dwarf.Reader
}

// New creates a Cursor over d.
func New(d *dwarf.Data) *Cursor {
	return &Cursor{data: d, r: d.Reader()}
}

// NextCU advances to the next compile unit and returns its top DIE.
// It returns (nil, nil) when there are no more compile units.
func (c *Cursor) NextCU() (*DIE, error) {
	for {
		e, err := c.r.Next()
		if err != nil {
			return nil, tagerrors.Errorf(tagerrors.PreambleFatal, "dwarfcursor: %v", err)
		}
		if e == nil {
			return nil, nil
		}
		if e.Tag == 0 {
			// a stray null DIE between compile units; keep scanning
			continue
		}
		if e.Tag != dwarf.TagCompileUnit {
			return nil, tagerrors.Errorf(tagerrors.PreambleFatal, "dwarfcursor: expected compile unit DIE, got %v", e.Tag)
		}
		// leave the cursor's own reader at the next unit; CU() walks
		// this unit's children through a private reader
		c.r.SkipChildren()
		return &DIE{entry: e}, nil
	}
}

// CU opens a per-compile-unit view rooted at top. The returned CU owns
// a private *dwarf.Reader positioned just past top, independent of the
// Cursor's own reader, so multiple CUs may be walked concurrently over
// the same *dwarf.Data.
func (c *Cursor) CU(top *DIE) (*CU, error) {
	r := c.data.Reader()
	r.Seek(top.entry.Offset)
	if _, err := r.Next(); err != nil {
		return nil, tagerrors.Errorf(tagerrors.PreambleFatal, "dwarfcursor: %v", err)
	}

	lr, err := c.data.LineReader(top.entry)
	if err != nil {
		return nil, tagerrors.Errorf(tagerrors.PreambleFatal, "dwarfcursor: line program: %v", err)
	}

	return &CU{data: c.data, r: r, top: top, lineReader: lr}, nil
}

// CU is a single compile unit's DIE stream plus its line program,
// scoped for one tagextract task.
type CU struct {
	data       *dwarf.Data
	r          *dwarf.Reader
	top        *DIE
	lineReader *dwarf.LineReader
}

// Top returns the compile unit's top DIE.
func (cu *CU) Top() *DIE { return cu.top }

// Next returns the next DIE in tree order, including explicit null-DIE
// terminators (returned as a DIE with IsNull() true). It returns
// (nil, nil) once the compile unit's sibling tree is exhausted.
//
// debug/dwarf's Reader.Next already synthesizes a zero-value Entry
// (Tag == 0) for every null terminator in the tree, so no manual
// terminator synthesis is needed here. It returns a nil Entry only at
// true end of data and otherwise moves on into the next unit, so
// reaching the next unit's compile_unit DIE also ends this stream.
func (cu *CU) Next() (*DIE, error) {
	e, err := cu.r.Next()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, tagerrors.Errorf(tagerrors.PreambleFatal, "dwarfcursor: %v", err)
	}
	if e == nil || e.Tag == dwarf.TagCompileUnit {
		return nil, nil
	}
	return &DIE{entry: e}, nil
}

// LineFiles returns the CU's file table, 1-based: LineFiles()[0] is
// file index 1 (debug/dwarf's nil "no file" entry 0 is dropped). Each
// entry's Name arrives already resolved against its include_directory
// and the compile directory (debug/dwarf's LineReader.readFileEntry
// joins them internally); DirRelToCompDir is recovered by stripping the
// CU's DW_AT_comp_dir back off that resolved directory, giving "." for
// files in the compile directory itself.
func (cu *CU) LineFiles() []FileEntry {
	files := cu.lineReader.Files()
	if len(files) > 0 && files[0] == nil {
		files = files[1:]
	}
	compDir, _ := cu.top.Attr(dwarf.AttrCompDir, "): ")
	compDir = path.Clean(compDir)
	out := make([]FileEntry, 0, len(files))
	for _, f := range files {
		if f == nil {
			out = append(out, FileEntry{})
			continue
		}
		dir, name := path.Split(f.Name)
		dir = strings.TrimSuffix(dir, "/")
		if dir == compDir {
			dir = ""
		} else if strings.HasPrefix(dir, compDir+"/") {
			dir = dir[len(compDir)+1:]
		}
		if dir == "" {
			dir = "."
		}
		out = append(out, FileEntry{Name: name, DirRelToCompDir: dir})
	}
	return out
}

// FileEntry is one resolved row of a CU's line-program file table.
type FileEntry struct {
	Name            string
	DirRelToCompDir string
}

// DIE wraps a single debug_info entry. A DIE with IsNull() true is an
// explicit null-DIE terminator closing the current sibling group.
type DIE struct {
	entry *dwarf.Entry
}

// IsNull reports whether this DIE is a null terminator.
func (d *DIE) IsNull() bool {
	return d.entry == nil || d.entry.Tag == 0
}

// HasChildren reports whether this DIE has a child sibling group that
// will be terminated by a matching null DIE.
func (d *DIE) HasChildren() bool {
	return d.entry != nil && d.entry.Children
}

// Tag returns the DIE's DWARF tag.
func (d *DIE) Tag() dwarf.Tag {
	if d.entry == nil {
		return 0
	}
	return d.entry.Tag
}

// Offset returns the DIE's offset in .debug_info, used as its stable
// identity for tag_map/assoc resolution.
func (d *DIE) Offset() dwarf.Offset {
	if d.entry == nil {
		return 0
	}
	return d.entry.Offset
}

// Attr renders the attribute named by at, applying the split-once
// extraction rule of spec §4.2: the DWARF-standard textual rendering
// may carry a leading "(form): " prefix, which is stripped with
// separator sep ("): " normally, "):" for DW_AT_name during tag
// extraction — the asymmetry is deliberate). ok is false if the
// attribute is absent or its rendered value is empty after trimming.
func (d *DIE) Attr(at dwarf.Attr, sep string) (value string, ok bool) {
	if d.entry == nil {
		return "", false
	}
	f := d.entry.AttrField(at)
	if f == nil {
		return "", false
	}
	rendered := strings.TrimSpace(renderAttrValue(f.Val))
	if rendered == "" {
		return "", false
	}
	if idx := strings.Index(rendered, sep); idx >= 0 {
		rendered = rendered[idx+len(sep):]
	}
	rendered = strings.TrimSpace(rendered)
	if rendered == "" {
		return "", false
	}
	return rendered, true
}

// AttrRaw returns the attribute's raw decoded value (an int64, string,
// dwarf.Offset, ...), for callers that need the typed form rather than
// the textual rendering (e.g. DW_AT_type offsets for assoc lookups).
func (d *DIE) AttrRaw(at dwarf.Attr) (interface{}, bool) {
	if d.entry == nil {
		return nil, false
	}
	f := d.entry.AttrField(at)
	if f == nil {
		return nil, false
	}
	return f.Val, true
}

// renderAttrValue mimics pyelftools' describe_attr_value: a leading
// "(<form class>): " prefix followed by the value's natural text form.
// debug/dwarf decodes attribute values directly rather than keeping
// pyelftools' textual form descriptions, so the prefix is synthesized
// from the Go value's own type; this keeps the split-once rule in
// Attr meaningful while matching its DWARF-standard string rendering
// once stripped of the prefix.
func renderAttrValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("(string): %s", x)
	case bool:
		return fmt.Sprintf("(flag): %v", x)
	case int64:
		return fmt.Sprintf("(data): %d", x)
	case uint64:
		return fmt.Sprintf("(data): %d", x)
	case dwarf.Offset:
		return fmt.Sprintf("(ref): 0x%x", uint64(x))
	case dwarf.Class:
		return fmt.Sprintf("(class): %s", x)
	default:
		return fmt.Sprintf("(data): %v", x)
	}
}
