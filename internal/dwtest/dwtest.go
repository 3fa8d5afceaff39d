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

// Package dwtest hand-encodes minimal .debug_info/.debug_abbrev/
// .debug_line byte streams so the seed scenarios of spec.md §8 can be
// driven through a real debug/dwarf.Data rather than hand-built Go
// struct literals. A literal testdata/ directory can't hold this: the
// Go toolchain excludes testdata/ from package compilation, and a
// binary fixture committed there couldn't be produced or checked
// without running the toolchain once to generate it from a real
// compiler. Building the bytes programmatically, following the DWARF4
// encoding documented directly in the Go standard library's own
// debug/dwarf reader (unit.go, entry.go, line.go), is the faithful
// substitute: every seed scenario test decodes real DWARF bytes
// end-to-end through dwarfcursor and tagextract, nothing is asserted
// against a struct literal standing in for decoded DWARF.
package dwtest

import (
	"bytes"
	"encoding/binary"
)

// Abbrev codes for the fixed abbreviation table every scenario
// shares. The field order encoded in Abbrev() must match the order
// each CU-builder method below writes its DIE's attribute values.
const (
	AbbrevCompileUnit = iota + 1
	AbbrevSubprogram
	AbbrevVariable
	AbbrevBaseType
	AbbrevStructureType
	AbbrevMember
	AbbrevEnumerationType
	AbbrevEnumerator
	AbbrevTypedef
)

// DWARF form codes, as defined by the DWARF4 standard (not exported
// from debug/dwarf, so named here directly).
const (
	formData4  = 0x06
	formString = 0x08
	formUdata  = 0x0f
	formRef4   = 0x13
)

// DWARF attribute and tag codes are written by Abbrev() as their raw
// DWARF4 numeric values, each followed by a comment naming it.

func writeULEB(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

func abbrevEntry(buf *bytes.Buffer, code uint64, tag uint64, hasChildren bool, fields ...[2]uint64) {
	writeULEB(buf, code)
	writeULEB(buf, tag)
	if hasChildren {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	for _, f := range fields {
		writeULEB(buf, f[0])
		writeULEB(buf, f[1])
	}
	writeULEB(buf, 0)
	writeULEB(buf, 0)
}

// Abbrev builds the single .debug_abbrev table shared by every CU a
// scenario builds (every CU references it via abbrev_offset 0).
func Abbrev() []byte {
	var b bytes.Buffer

	abbrevEntry(&b, AbbrevCompileUnit, 0x11 /* DW_TAG_compile_unit */, true,
		[2]uint64{0x03, formString}, // DW_AT_name
		[2]uint64{0x1B, formString}, // DW_AT_comp_dir
		[2]uint64{0x10, formData4},  // DW_AT_stmt_list
	)
	abbrevEntry(&b, AbbrevSubprogram, 0x2e /* DW_TAG_subprogram */, false,
		[2]uint64{0x03, formString},
		[2]uint64{0x3A, formUdata}, // DW_AT_decl_file
		[2]uint64{0x3B, formUdata}, // DW_AT_decl_line
	)
	abbrevEntry(&b, AbbrevVariable, 0x34 /* DW_TAG_variable */, false,
		[2]uint64{0x03, formString},
		[2]uint64{0x3A, formUdata},
		[2]uint64{0x3B, formUdata},
	)
	abbrevEntry(&b, AbbrevBaseType, 0x24 /* DW_TAG_base_type */, false,
		[2]uint64{0x03, formString},
		[2]uint64{0x3B, formUdata},
	)
	abbrevEntry(&b, AbbrevStructureType, 0x13 /* DW_TAG_structure_type */, true,
		[2]uint64{0x03, formString},
		[2]uint64{0x3A, formUdata},
		[2]uint64{0x3B, formUdata},
	)
	abbrevEntry(&b, AbbrevMember, 0x0d /* DW_TAG_member */, false,
		[2]uint64{0x03, formString},
		[2]uint64{0x3A, formUdata},
		[2]uint64{0x3B, formUdata},
	)
	abbrevEntry(&b, AbbrevEnumerationType, 0x04 /* DW_TAG_enumeration_type */, true,
		[2]uint64{0x03, formString},
		[2]uint64{0x3A, formUdata},
		[2]uint64{0x3B, formUdata},
	)
	abbrevEntry(&b, AbbrevEnumerator, 0x28 /* DW_TAG_enumerator */, false,
		[2]uint64{0x03, formString},
		[2]uint64{0x1C, formUdata}, // DW_AT_const_value
	)
	abbrevEntry(&b, AbbrevTypedef, 0x16 /* DW_TAG_typedef */, false,
		[2]uint64{0x03, formString},
		[2]uint64{0x3A, formUdata},
		[2]uint64{0x3B, formUdata},
		[2]uint64{0x49, formRef4}, // DW_AT_type
	)
	writeULEB(&b, 0) // table terminator

	return b.Bytes()
}

// CU accumulates one compile unit's DIE stream into a shared .debug_info buffer.
type CU struct {
	info   *bytes.Buffer
	base   uint32
	lenPos int
}

// BeginCU writes a DWARF4 compile-unit header plus its top
// DW_TAG_compile_unit DIE (using an 8-byte address size) into info,
// returning a CU ready to accept top-level child DIEs. Every DW_AT_type
// reference written through this CU is relative to this unit's base,
// matching debug/dwarf's formRef4 decoding (entry.go: val =
// Offset(b.uint32()) + ubase).
func BeginCU(info *bytes.Buffer, name, compDir string, stmtListOffset uint32) *CU {
	base := uint32(info.Len())
	lenPos := info.Len()
	info.Write(make([]byte, 4)) // unit_length placeholder
	binary.Write(info, binary.LittleEndian, uint16(4))
	binary.Write(info, binary.LittleEndian, uint32(0)) // abbrev_offset
	info.WriteByte(8)                                  // address_size

	c := &CU{info: info, base: base, lenPos: lenPos}
	writeULEB(info, AbbrevCompileUnit)
	writeCString(info, name)
	writeCString(info, compDir)
	binary.Write(info, binary.LittleEndian, stmtListOffset)
	return c
}

// Offset returns the absolute .debug_info offset the next DIE will be
// written at.
func (c *CU) Offset() uint32 { return uint32(c.info.Len()) }

func (c *CU) Subprogram(name string, declFile, declLine uint64) uint32 {
	off := c.Offset()
	writeULEB(c.info, AbbrevSubprogram)
	writeCString(c.info, name)
	writeULEB(c.info, declFile)
	writeULEB(c.info, declLine)
	return off
}

func (c *CU) Variable(name string, declFile, declLine uint64) uint32 {
	off := c.Offset()
	writeULEB(c.info, AbbrevVariable)
	writeCString(c.info, name)
	writeULEB(c.info, declFile)
	writeULEB(c.info, declLine)
	return off
}

func (c *CU) BaseType(name string, declLine uint64) uint32 {
	off := c.Offset()
	writeULEB(c.info, AbbrevBaseType)
	writeCString(c.info, name)
	writeULEB(c.info, declLine)
	return off
}

// BeginStructureType opens a structure_type DIE's children scope; a
// matching EndChildren must be written once its members are done.
func (c *CU) BeginStructureType(name string, declFile, declLine uint64) uint32 {
	off := c.Offset()
	writeULEB(c.info, AbbrevStructureType)
	writeCString(c.info, name)
	writeULEB(c.info, declFile)
	writeULEB(c.info, declLine)
	return off
}

func (c *CU) Member(name string, declFile, declLine uint64) uint32 {
	off := c.Offset()
	writeULEB(c.info, AbbrevMember)
	writeCString(c.info, name)
	writeULEB(c.info, declFile)
	writeULEB(c.info, declLine)
	return off
}

// BeginEnumerationType opens an enumeration_type DIE's children scope;
// a matching EndChildren must be written once its enumerators are done.
func (c *CU) BeginEnumerationType(name string, declFile, declLine uint64) uint32 {
	off := c.Offset()
	writeULEB(c.info, AbbrevEnumerationType)
	writeCString(c.info, name)
	writeULEB(c.info, declFile)
	writeULEB(c.info, declLine)
	return off
}

func (c *CU) Enumerator(name string, constValue uint64) uint32 {
	off := c.Offset()
	writeULEB(c.info, AbbrevEnumerator)
	writeCString(c.info, name)
	writeULEB(c.info, constValue)
	return off
}

// Typedef writes a DW_TAG_typedef DIE whose DW_AT_type references the
// DIE at the absolute .debug_info offset typeOffset (already written,
// earlier in this same CU).
func (c *CU) Typedef(name string, declFile, declLine uint64, typeOffset uint32) uint32 {
	off := c.Offset()
	writeULEB(c.info, AbbrevTypedef)
	writeCString(c.info, name)
	writeULEB(c.info, declFile)
	writeULEB(c.info, declLine)
	binary.Write(c.info, binary.LittleEndian, typeOffset-c.base)
	return off
}

// EndChildren writes the null DIE that closes the current open
// children scope (either the compile unit's own top-level children,
// or a nested structure_type/enumeration_type's members).
func (c *CU) EndChildren() {
	writeULEB(c.info, 0)
}

// End patches this CU's unit_length field now that every DIE has been
// written. Must be called exactly once, after the matching top-level
// EndChildren.
func (c *CU) End() {
	length := uint32(c.info.Len()-c.lenPos) - 4
	binary.LittleEndian.PutUint32(c.info.Bytes()[c.lenPos:c.lenPos+4], length)
}

// standardOpcodeLengths is the fixed DWARF4 standard-opcode-length
// table for opcodes 1..12 (opcode_base 13), matching the values
// debug/dwarf's line.go cross-checks against knownOpcodeLengths.
var standardOpcodeLengths = []byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1}

// WriteLineProgram appends a minimal DWARF4 line-number program header
// into line (no include directories beyond the implicit comp_dir, one
// DW_LNE_end_sequence as the only program byte since no test needs
// actual line-table rows, only the resolved file table LineFiles()
// reads) and returns the offset to use as the owning CU's
// DW_AT_stmt_list value.
func WriteLineProgram(line *bytes.Buffer, files []string) uint32 {
	off := uint32(line.Len())
	lenPos := line.Len()
	line.Write(make([]byte, 4)) // unit_length placeholder
	binary.Write(line, binary.LittleEndian, uint16(4))
	hdrLenPos := line.Len()
	line.Write(make([]byte, 4)) // header_length placeholder

	line.WriteByte(1)    // minimum_instruction_length
	line.WriteByte(1)    // maximum_operations_per_instruction
	line.WriteByte(1)    // default_is_stmt
	line.WriteByte(0xfb) // line_base = -5
	line.WriteByte(14)   // line_range
	line.WriteByte(byte(len(standardOpcodeLengths) + 1))
	line.Write(standardOpcodeLengths)

	line.WriteByte(0) // include_directories: empty, implicit comp_dir only

	for _, f := range files {
		writeCString(line, f)
		writeULEB(line, 0) // dir_index: comp_dir
		writeULEB(line, 0) // mtime
		writeULEB(line, 0) // length
	}
	line.WriteByte(0) // file_names terminator

	headerLength := uint32(line.Len()-hdrLenPos) - 4
	binary.LittleEndian.PutUint32(line.Bytes()[hdrLenPos:hdrLenPos+4], headerLength)

	line.WriteByte(0x00) // extended opcode marker
	writeULEB(line, 1)   // extended opcode length
	line.WriteByte(0x01) // DW_LNE_end_sequence

	unitLength := uint32(line.Len()-lenPos) - 4
	binary.LittleEndian.PutUint32(line.Bytes()[lenPos:lenPos+4], unitLength)

	return off
}
