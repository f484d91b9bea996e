package ot

import (
	"errors"
	"fmt"

	"github.com/shiv248/kolabpad/pkg/notebook"
)

// RejectReasonCode enumerates the reasons a client's operation is rejected,
// surfaced to the transport layer as the wire `rejected` message.
type RejectReasonCode string

const (
	ReasonCellIndexOutOfBounds RejectReasonCode = "cell_index_out_of_bounds"
	ReasonCellNotFound         RejectReasonCode = "cell_not_found"
	ReasonDuplicateCellID      RejectReasonCode = "duplicate_cell_id"
	ReasonDuplicateLabel       RejectReasonCode = "duplicate_label"
	ReasonInvalidLabel         RejectReasonCode = "invalid_label"
	ReasonInconsistentState    RejectReasonCode = "inconsistent_state"
	ReasonNoTextCell           RejectReasonCode = "no_text_cell"
	ReasonOutdated             RejectReasonCode = "outdated"
)

// RejectReason is the structured reason attached to a rejected operation.
// Only the fields relevant to Code are populated.
type RejectReason struct {
	Code            RejectReasonCode
	CellID          notebook.Base64Uuid
	LabelKey        string
	ValidationError error
	CurrentRevision uint32
}

func (r RejectReason) Error() string {
	switch r.Code {
	case ReasonCellNotFound, ReasonDuplicateCellID, ReasonNoTextCell:
		return fmt.Sprintf("ot: %s: %s", r.Code, r.CellID)
	case ReasonDuplicateLabel:
		return fmt.Sprintf("ot: %s: %s", r.Code, r.LabelKey)
	case ReasonInvalidLabel:
		return fmt.Sprintf("ot: %s: %s: %v", r.Code, r.LabelKey, r.ValidationError)
	case ReasonOutdated:
		return fmt.Sprintf("ot: %s: current revision %d", r.Code, r.CurrentRevision)
	default:
		return fmt.Sprintf("ot: %s", r.Code)
	}
}

func (r RejectReason) Unwrap() error { return r.ValidationError }

func rejectCellIndexOutOfBounds() error {
	return RejectReason{Code: ReasonCellIndexOutOfBounds}
}

func rejectCellNotFound(id notebook.Base64Uuid) error {
	return RejectReason{Code: ReasonCellNotFound, CellID: id}
}

func rejectDuplicateCellID(id notebook.Base64Uuid) error {
	return RejectReason{Code: ReasonDuplicateCellID, CellID: id}
}

func rejectDuplicateLabel(key string) error {
	return RejectReason{Code: ReasonDuplicateLabel, LabelKey: key}
}

func rejectInvalidLabel(key string, err error) error {
	return RejectReason{Code: ReasonInvalidLabel, LabelKey: key, ValidationError: err}
}

// ErrInconsistentState is returned whenever an operation's preconditions do
// not hold against the view it is applied to, including the causal-rejection
// case described for concurrent Transform (successor invalid after rebase).
var ErrInconsistentState = RejectReason{Code: ReasonInconsistentState}

func rejectNoTextCell(id notebook.Base64Uuid) error {
	return RejectReason{Code: ReasonNoTextCell, CellID: id}
}

// RejectOutdated builds an Outdated rejection carrying the log's current
// revision.
func RejectOutdated(currentRevision uint32) error {
	return RejectReason{Code: ReasonOutdated, CurrentRevision: currentRevision}
}

// AsRejectReason unwraps err into a RejectReason, if it is (or wraps) one.
func AsRejectReason(err error) (RejectReason, bool) {
	var r RejectReason
	if errors.As(err, &r) {
		return r, true
	}
	return RejectReason{}, false
}
