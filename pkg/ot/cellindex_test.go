package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiv248/kolabpad/pkg/notebook"
)

func TestSuccessorShouldMoveByIndex(t *testing.T) {
	a, b := notebook.NewID(), notebook.NewID()
	assert.True(t, successorShouldMove(0, a, PriorityNormal, 1, b, PriorityNormal))
	assert.False(t, successorShouldMove(1, a, PriorityNormal, 0, b, PriorityNormal))
}

func TestSuccessorShouldMoveByPriority(t *testing.T) {
	a, b := notebook.NewID(), notebook.NewID()
	assert.True(t, successorShouldMove(0, a, PriorityHigh, 0, b, PriorityNormal))
	assert.False(t, successorShouldMove(0, a, PriorityNormal, 0, b, PriorityHigh))
}

func TestSuccessorShouldMoveTieBreaksByID(t *testing.T) {
	lo, hi := notebook.NewID(), notebook.NewID()
	for lo.String() > hi.String() {
		lo, hi = notebook.NewID(), notebook.NewID()
	}
	assert.True(t, successorShouldMove(0, lo, PriorityNormal, 0, hi, PriorityNormal))
	assert.False(t, successorShouldMove(0, hi, PriorityNormal, 0, lo, PriorityNormal))
}

func TestGetCellIndexChangesInsertionOnly(t *testing.T) {
	newCell := cellWithIdx("new", 0)
	op := ReplaceCellsOperation{NewCells: []CellWithIndex{newCell}}
	changes := getCellIndexChanges(op)
	require.Len(t, changes, 1)
	assert.Equal(t, cellChangeInsertion, changes[0].kind)
	assert.Equal(t, newCell.Cell.ID, changes[0].cellID)
}

func TestGetCellIndexChangesRemovalOnly(t *testing.T) {
	oldCell := cellWithIdx("gone", 0)
	op := ReplaceCellsOperation{OldCells: []CellWithIndex{oldCell}}
	changes := getCellIndexChanges(op)
	require.Len(t, changes, 1)
	assert.Equal(t, cellChangeRemoval, changes[0].kind)
}

func TestGetCellIndexChangesReplacementKeepsSameID(t *testing.T) {
	cell := cellWithIdx("same", 0)
	op := ReplaceCellsOperation{OldCells: []CellWithIndex{cell}, NewCells: []CellWithIndex{cell}}
	changes := getCellIndexChanges(op)
	require.Len(t, changes, 1)
	assert.Equal(t, cellChangeReplacement, changes[0].kind)
}

func TestRebaseIndexShiftsAfterRemoval(t *testing.T) {
	removed := cellWithIdx("gone", 0)
	op := ReplaceCellsOperation{OldCells: []CellWithIndex{removed}}
	changes := getCellIndexChanges(op)

	idx, ok := rebaseIndex(changes, 1, notebook.NewID(), PriorityNormal)
	require.True(t, ok)
	assert.Equal(t, uint32(0), idx)
}

func TestRebaseIndexFailsWhenTargetRemoved(t *testing.T) {
	removed := cellWithIdx("gone", 0)
	op := ReplaceCellsOperation{OldCells: []CellWithIndex{removed}}
	changes := getCellIndexChanges(op)

	_, ok := rebaseIndex(changes, 0, notebook.NewID(), PriorityNormal)
	assert.False(t, ok)
}

func TestRebaseIndexShiftsAfterInsertion(t *testing.T) {
	inserted := cellWithIdx("new", 0)
	op := ReplaceCellsOperation{NewCells: []CellWithIndex{inserted}}
	changes := getCellIndexChanges(op)

	idx, ok := rebaseIndex(changes, 0, notebook.NewID(), PriorityLow)
	require.True(t, ok)
	assert.Equal(t, uint32(1), idx)
}
