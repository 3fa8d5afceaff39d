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

// Package tagextract is the per-compile-unit tag extractor (component
// C3): it walks one compile unit's DIE stream, builds Tag records with
// parent and association back-references, folds anonymous indirection
// chains, and commits everything through a store.Store. This is the
// heart of the pipeline; its phases mirror the teacher's own
// preamble/walk/commit shape (coprocessor/developer/dwarf/dwarf_builder.go)
// generalized from a source-model builder to a tag extractor, and are
// grounded directly in original_source/btagslib/debuginfo/dwarfformat.py's
// DwarfInfoParseTask.
package tagextract

import (
	"debug/dwarf"
	"strconv"

	"github.com/dwarftags/btags/dwarfcursor"
	"github.com/dwarftags/btags/logger"
	"github.com/dwarftags/btags/model"
	"github.com/dwarftags/btags/store"
	"github.com/dwarftags/btags/tagerrors"
)

// FileMap resolves a line program's 1-based file table index to the
// persisted File allocated for it.
type FileMap map[int]*model.File

// tagKindOf is the fixed DWARF tag -> Tag kind mapping of spec §4.3.
// Tags not present here leave the constructed Tag as a nameless
// placeholder: still recorded so it may be pointed at, never emitted.
var tagKindOf = map[dwarf.Tag]model.TagKind{
	dwarf.TagVariable:        model.Variable,
	dwarf.TagBaseType:        model.BaseType,
	dwarf.TagTypedef:         model.Typedef,
	dwarf.TagMember:          model.Member,
	dwarf.TagStructType:      model.Structure,
	dwarf.TagUnionType:       model.Union,
	dwarf.TagSubprogram:      model.Function,
	dwarf.TagClassType:       model.Class,
	dwarf.TagEnumerationType: model.Enumeration,
	dwarf.TagEnumerator:      model.EnumerationMember,
	dwarf.TagFormalParameter: model.FormalParameter,
}

// stackFrame is one entry of the parent-attribution stack: the Tag
// allocated for the DIE that pushed it.
type stackFrame struct {
	tag *model.Tag
}

// Task extracts tags for a single compile unit.
type Task struct {
	CU     *dwarfcursor.CU
	Store  store.Store
	CUID   int
	Logger *logger.Logger

	tagMap map[dwarf.Offset]*model.Tag
}

// Result is what Run hands back to the scheduler for bookkeeping and
// for wiring into the macro extractor (C4), which needs each CU's
// file map and id.
type Result struct {
	CompileUnit *model.CompileUnit
	Files       FileMap
	TagCount    int
}

// Run executes the preamble, tag pass, fold pass and commit for one
// compile unit in sequence. It is a convenience for tests and for
// single-job runs; the scheduler (C5) instead calls Preamble eagerly
// on its producer and enqueues TagPassFoldCommit as a separate pool
// task, per spec §4.5.
func (t *Task) Run() (*Result, error) {
	cuRecord, files, err := t.Preamble()
	if err != nil {
		return nil, err
	}
	return t.TagPassFoldCommit(cuRecord, files)
}

// Preamble runs spec §4.3's "Preamble" phase: it persists the CU
// record and builds the file id map from the line program. The
// scheduler runs this synchronously on its producer goroutine before
// enqueueing the remainder of the task.
func (t *Task) Preamble() (*model.CompileUnit, FileMap, error) {
	if t.Logger == nil {
		t.Logger = logger.Default()
	}
	t.tagMap = make(map[dwarf.Offset]*model.Tag)
	return t.preamble()
}

// TagPassFoldCommit runs the tag pass, fold pass and commit phases
// over the CU whose preamble already produced cuRecord and files. It
// is safe to run concurrently with other CUs' TagPassFoldCommit calls
// sharing the same store: each call drives its own private DIE cursor.
func (t *Task) TagPassFoldCommit(cuRecord *model.CompileUnit, files FileMap) (*Result, error) {
	tagsToAdd, err := t.tagPass(files)
	if err != nil {
		return nil, err
	}

	foldPass(tagsToAdd)

	if err := t.commit(tagsToAdd); err != nil {
		return nil, tagerrors.WithTask(t.CUID, tagerrors.Errorf(tagerrors.CommitFatal, "tagextract: %v", err))
	}

	return &Result{CompileUnit: cuRecord, Files: files, TagCount: len(tagsToAdd)}, nil
}

func (t *Task) preamble() (*model.CompileUnit, FileMap, error) {
	top := t.CU.Top()
	compFile, _ := top.Attr(dwarf.AttrName, "): ")
	compDir, _ := top.Attr(dwarf.AttrCompDir, "): ")

	cuRecord, err := t.Store.AddCompileUnit(compDir, compFile, t.CUID)
	if err != nil {
		return nil, nil, tagerrors.WithTask(t.CUID, tagerrors.Errorf(tagerrors.PreambleFatal, "tagextract: %v", err))
	}

	entries := t.CU.LineFiles()
	if len(entries) == 0 {
		return nil, nil, tagerrors.WithTask(t.CUID, tagerrors.Errorf(tagerrors.PreambleFatal, "tagextract: empty line program file table"))
	}

	files := make(FileMap, len(entries))
	for i, e := range entries {
		f, err := t.Store.AddFile(e.Name, e.DirRelToCompDir)
		if err != nil {
			return nil, nil, tagerrors.WithTask(t.CUID, tagerrors.Errorf(tagerrors.PreambleFatal, "tagextract: %v", err))
		}
		// the line program's file table is 1-based
		files[i+1] = f
	}

	return cuRecord, files, nil
}

// tagPass runs spec §4.3's "Tag pass" over the CU's DIE stream.
func (t *Task) tagPass(files FileMap) ([]*model.Tag, error) {
	var tagsToAdd []*model.Tag

	seed := &model.Tag{}
	stack := []stackFrame{{tag: seed}}

	// the CU's reader is already past the top DIE, which the preamble
	// handled, so the stream starts at its first child
	for {
		die, err := t.CU.Next()
		if err != nil {
			return nil, tagerrors.WithTask(t.CUID, err)
		}
		if die == nil {
			break
		}

		if die.IsNull() {
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		tag := t.tagFor(die.Offset())
		kind, known := tagKindOf[die.Tag()]
		if known {
			tag.Kind = kind
		}

		persist := true

		// spec §4.2: the DW_AT_name separator during tag extraction is
		// "):" (no trailing space), unlike every other attribute.
		name, hasName := die.Attr(dwarf.AttrName, "):")
		if !known {
			// unmapped DWARF tag: stays a nameless placeholder
			persist = false
		} else if !hasName {
			t.Logger.Logf(logger.Allow, "tagextract", "cu %d: offset %#x: missing DW_AT_name, dropping tag", t.CUID, die.Offset())
			persist = false
		} else {
			nameCopy := name
			tag.Name = &nameCopy
		}

		if persist && known && kind != model.EnumerationMember {
			line, hasLine := die.Attr(dwarf.AttrDeclLine, "): ")
			if !hasLine {
				t.Logger.Logf(logger.Allow, "tagextract", "cu %d: offset %#x: missing DW_AT_decl_line, dropping tag", t.CUID, die.Offset())
				persist = false
			} else if lineNo, err := strconv.Atoi(line); err != nil {
				t.Logger.Logf(logger.Allow, "tagextract", "cu %d: offset %#x: bad DW_AT_decl_line %q, dropping tag", t.CUID, die.Offset(), line)
				persist = false
			} else if kind == model.BaseType {
				tag.LineNo = nil
				tag.FileID = fileIDOf(files, 1)
			} else if fileIdxStr, hasFile := die.Attr(dwarf.AttrDeclFile, "): "); !hasFile {
				t.Logger.Logf(logger.Allow, "tagextract", "cu %d: offset %#x: missing DW_AT_decl_file, dropping tag", t.CUID, die.Offset())
				persist = false
			} else if fileIdx, err := strconv.Atoi(fileIdxStr); err != nil {
				t.Logger.Logf(logger.Allow, "tagextract", "cu %d: offset %#x: bad DW_AT_decl_file %q, dropping tag", t.CUID, die.Offset(), fileIdxStr)
				persist = false
			} else {
				ln := lineNo
				tag.LineNo = &ln
				tag.FileID = fileIDOf(files, fileIdx)
			}
		}

		if persist && known && kind == model.Typedef {
			if typeOffset, ok := typeOffsetOf(die); ok {
				tag.SetTmpAssocToTag(t.tagFor(typeOffset))
			}
		}

		// Parent attribution (spec §4.3 step 6) runs unconditionally,
		// even for a DIE whose name lookup failed: the tag stack must
		// stay consistent for descendants regardless of this DIE's
		// own persistence outcome.
		var parent *model.Tag
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].tag.HasName() {
				parent = stack[i].tag
				break
			}
		}
		tag.ParentTag = parent

		if persist && known && isAssociable(kind) && parent != nil && parent.HasName() && isAssociationTarget(parent.Kind) {
			tag.SetTmpAssocToTag(parent)
		}

		if persist && known && kind == model.EnumerationMember {
			inheritEnumerationMemberFile(tag)
		}

		if persist {
			tag.CompileUnitID = t.CUID
			tagsToAdd = append(tagsToAdd, tag)
		}

		runStackMaintenance(&stack, die, tag)
	}

	return tagsToAdd, nil
}

func runStackMaintenance(stack *[]stackFrame, die *dwarfcursor.DIE, tag *model.Tag) {
	if die.HasChildren() {
		*stack = append(*stack, stackFrame{tag: tag})
	}
}

// tagFor lazily allocates the Tag for a DIE offset, whether reached as
// the subject DIE or as a forward-reference target.
func (t *Task) tagFor(offset dwarf.Offset) *model.Tag {
	if tag, ok := t.tagMap[offset]; ok {
		return tag
	}
	tag := &model.Tag{}
	t.tagMap[offset] = tag
	return tag
}

func isAssociable(kind model.TagKind) bool {
	switch kind {
	case model.EnumerationMember, model.FormalParameter, model.Member:
		return true
	}
	return false
}

func isAssociationTarget(kind model.TagKind) bool {
	switch kind {
	case model.Enumeration, model.Function, model.Structure, model.Class:
		return true
	}
	return false
}

// inheritEnumerationMemberFile implements spec §4.3 step 8: follow the
// tmp_assoc_to_tag chain upward through parent_tag links until a Tag
// with a non-null file is found, resolving the open question of
// spec §9 by walking the association edge first and falling back to
// the parent edge.
func inheritEnumerationMemberFile(tag *model.Tag) {
	cur := tag.TmpAssocToTag()
	if cur == nil {
		cur = tag.ParentTag
	}
	for cur != nil {
		if cur.FileID != nil {
			tag.FileID = cur.FileID
			return
		}
		if next := cur.TmpAssocToTag(); next != nil {
			cur = next
			continue
		}
		cur = cur.ParentTag
	}
}

// typeOffsetOf extracts the raw reference offset of DW_AT_type, if present.
func typeOffsetOf(die *dwarfcursor.DIE) (dwarf.Offset, bool) {
	raw, ok := die.AttrRaw(dwarf.AttrType)
	if !ok {
		return 0, false
	}
	off, ok := raw.(dwarf.Offset)
	return off, ok
}

func fileIDOf(files FileMap, idx int) *int64 {
	f, ok := files[idx]
	if !ok || f == nil {
		return nil
	}
	id := f.ID
	return &id
}

// foldPass implements spec §4.3's "Fold pass": collapse each tag's
// tmp_assoc_to_tag through the already-resolved AssocToTag edges until
// a named Tag or nil is reached.
func foldPass(tags []*model.Tag) {
	for _, tag := range tags {
		cur := tag.TmpAssocToTag()
		for cur != nil && !cur.HasName() {
			cur = cur.AssocToTag
		}
		tag.AssocToTag = cur
	}
}

// commit persists every tag that ended up with a name. Nameless tags
// are transient placeholders (lazy allocations that were never
// visited, or DIEs whose DW_AT_name lookup failed) and are dropped
// here rather than surfacing a commit-fatal error.
func (t *Task) commit(tags []*model.Tag) error {
	for _, tag := range tags {
		if !tag.HasName() {
			continue
		}
		if err := t.Store.AddTag(tag); err != nil {
			return err
		}
	}
	return t.Store.Commit()
}
