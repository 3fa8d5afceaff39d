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

package tagextract

import (
	"testing"

	"github.com/dwarftags/btags/internal/btest"
	"github.com/dwarftags/btags/model"
)

func named(name string, kind model.TagKind) *model.Tag {
	n := name
	return &model.Tag{Name: &n, Kind: kind}
}

// TestFoldPassCollapsesAnonymousChain mirrors the typedef-chain
// scenario of the seed tests: typedef MyInt -> const (anonymous) ->
// int (BaseType). MyInt's association must collapse straight to int.
func TestFoldPassCollapsesAnonymousChain(t *testing.T) {
	intTag := named("int", model.BaseType)
	anonConst := &model.Tag{} // anonymous qualifier DIE, never named
	myInt := named("MyInt", model.Typedef)
	alias := named("Alias", model.Typedef)

	anonConst.SetTmpAssocToTag(intTag)
	myInt.SetTmpAssocToTag(anonConst)
	alias.SetTmpAssocToTag(myInt)

	tags := []*model.Tag{intTag, anonConst, myInt, alias}
	foldPass(tags)

	btest.ExpectEquality(t, myInt.AssocToTag, intTag)
	btest.ExpectEquality(t, alias.AssocToTag, myInt)
}

func TestFoldPassNilWhenNoAssociation(t *testing.T) {
	solo := named("solo", model.Variable)
	foldPass([]*model.Tag{solo})
	btest.ExpectEquality(t, solo.AssocToTag == nil, true)
}

// TestInheritEnumerationMemberFileWalksAssocFirst covers the enum seed
// scenario: an enumerator with no file of its own inherits the file of
// the enumeration it is associated to.
func TestInheritEnumerationMemberFileWalksAssocFirst(t *testing.T) {
	fileID := int64(7)
	color := named("Color", model.Enumeration)
	color.FileID = &fileID

	red := named("RED", model.EnumerationMember)
	red.SetTmpAssocToTag(color)

	inheritEnumerationMemberFile(red)

	btest.ExpectEquality(t, red.FileID != nil, true)
	btest.ExpectEquality(t, *red.FileID, fileID)
}

func TestInheritEnumerationMemberFileFallsBackToParent(t *testing.T) {
	fileID := int64(3)
	outer := named("outer", model.Function)
	outer.FileID = &fileID

	// no tmp_assoc_to_tag recorded; must fall back to parent_tag
	orphan := named("ANON", model.EnumerationMember)
	orphan.ParentTag = outer

	inheritEnumerationMemberFile(orphan)

	btest.ExpectEquality(t, orphan.FileID != nil, true)
	btest.ExpectEquality(t, *orphan.FileID, fileID)
}

func TestInheritEnumerationMemberFileNilWhenNoAncestorHasFile(t *testing.T) {
	parent := named("parent", model.Structure)
	member := named("member", model.EnumerationMember)
	member.ParentTag = parent

	inheritEnumerationMemberFile(member)

	btest.ExpectEquality(t, member.FileID == nil, true)
}

func TestIsAssociableAndAssociationTarget(t *testing.T) {
	btest.ExpectEquality(t, isAssociable(model.Member), true)
	btest.ExpectEquality(t, isAssociable(model.FormalParameter), true)
	btest.ExpectEquality(t, isAssociable(model.EnumerationMember), true)
	btest.ExpectEquality(t, isAssociable(model.Variable), false)

	btest.ExpectEquality(t, isAssociationTarget(model.Structure), true)
	btest.ExpectEquality(t, isAssociationTarget(model.Function), true)
	btest.ExpectEquality(t, isAssociationTarget(model.Class), true)
	btest.ExpectEquality(t, isAssociationTarget(model.Enumeration), true)
	btest.ExpectEquality(t, isAssociationTarget(model.Typedef), false)
}
