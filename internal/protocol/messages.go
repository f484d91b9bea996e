// Package protocol defines the realtime WebSocket message set between
// client and server for subscribing to, and editing, collaborative
// notebooks.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/shiv248/kolabpad/pkg/notebook"
	"github.com/shiv248/kolabpad/pkg/ot"
)

// ClientMsgType discriminates ClientMsg.
type ClientMsgType string

const (
	ClientAuthenticate       ClientMsgType = "authenticate"
	ClientSubscribe          ClientMsgType = "subscribe"
	ClientUnsubscribe        ClientMsgType = "unsubscribe"
	ClientApplyOperation     ClientMsgType = "apply_operation"
	ClientApplyOperationBatch ClientMsgType = "apply_operation_batch"
	ClientFocusInfo          ClientMsgType = "focus_info"
	ClientDebugRequest       ClientMsgType = "debug_request"
)

type AuthenticateMsg struct {
	Token string `json:"token"`
}

type SubscribeMsg struct {
	NotebookID notebook.Base64Uuid `json:"notebookId"`
	Revision   *uint32             `json:"revision,omitempty"`
}

type UnsubscribeMsg struct {
	NotebookID notebook.Base64Uuid `json:"notebookId"`
}

type ApplyOperationMsg struct {
	NotebookID notebook.Base64Uuid `json:"notebookId"`
	Operation  ot.Operation        `json:"operation"`
	Revision   uint32              `json:"revision"`
	OpID       *string             `json:"opId,omitempty"`
}

type ApplyOperationBatchMsg struct {
	NotebookID notebook.Base64Uuid `json:"notebookId"`
	Operations []ot.Operation      `json:"operations"`
	Revision   uint32              `json:"revision"`
	OpID       *string             `json:"opId,omitempty"`
}

type FocusInfoMsg struct {
	NotebookID notebook.Base64Uuid  `json:"notebookId"`
	CellID     *notebook.Base64Uuid `json:"cellId,omitempty"`
}

// ClientMsg is the tagged union of every message a client may send.
type ClientMsg struct {
	Type ClientMsgType `json:"type"`

	Authenticate       *AuthenticateMsg        `json:"-"`
	Subscribe          *SubscribeMsg           `json:"-"`
	Unsubscribe        *UnsubscribeMsg         `json:"-"`
	ApplyOperation     *ApplyOperationMsg      `json:"-"`
	ApplyOperationBatch *ApplyOperationBatchMsg `json:"-"`
	FocusInfo          *FocusInfoMsg           `json:"-"`
}

func (m ClientMsg) payload() any {
	switch m.Type {
	case ClientAuthenticate:
		return m.Authenticate
	case ClientSubscribe:
		return m.Subscribe
	case ClientUnsubscribe:
		return m.Unsubscribe
	case ClientApplyOperation:
		return m.ApplyOperation
	case ClientApplyOperationBatch:
		return m.ApplyOperationBatch
	case ClientFocusInfo:
		return m.FocusInfo
	case ClientDebugRequest:
		return struct{}{}
	default:
		return nil
	}
}

func (m ClientMsg) MarshalJSON() ([]byte, error) {
	payload := m.payload()
	if payload == nil {
		return nil, fmt.Errorf("protocol: unknown client message type %q", m.Type)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(`"` + string(m.Type) + `"`)
	return json.Marshal(fields)
}

func (m *ClientMsg) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type ClientMsgType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	m.Type = tag.Type
	switch tag.Type {
	case ClientAuthenticate:
		m.Authenticate = &AuthenticateMsg{}
		return json.Unmarshal(data, m.Authenticate)
	case ClientSubscribe:
		m.Subscribe = &SubscribeMsg{}
		return json.Unmarshal(data, m.Subscribe)
	case ClientUnsubscribe:
		m.Unsubscribe = &UnsubscribeMsg{}
		return json.Unmarshal(data, m.Unsubscribe)
	case ClientApplyOperation:
		m.ApplyOperation = &ApplyOperationMsg{}
		return json.Unmarshal(data, m.ApplyOperation)
	case ClientApplyOperationBatch:
		m.ApplyOperationBatch = &ApplyOperationBatchMsg{}
		return json.Unmarshal(data, m.ApplyOperationBatch)
	case ClientFocusInfo:
		m.FocusInfo = &FocusInfoMsg{}
		return json.Unmarshal(data, m.FocusInfo)
	case ClientDebugRequest:
		return nil
	default:
		return fmt.Errorf("protocol: unknown client message type %q", tag.Type)
	}
}

// ServerMsgType discriminates ServerMsg.
type ServerMsgType string

const (
	ServerAck                    ServerMsgType = "ack"
	ServerErr                    ServerMsgType = "err"
	ServerRejected               ServerMsgType = "rejected"
	ServerApplyOperation         ServerMsgType = "apply_operation"
	ServerSubscriberAdded        ServerMsgType = "subscriber_added"
	ServerSubscriberRemoved      ServerMsgType = "subscriber_removed"
	ServerSubscriberChangedFocus ServerMsgType = "subscriber_changed_focus"
	ServerMention                ServerMsgType = "mention"
	ServerDebugResponse          ServerMsgType = "debug_response"
)

type AckMsg struct {
	OpID *string `json:"opId,omitempty"`
}

type ErrMsg struct {
	Message string `json:"message"`
}

// RejectedMsg mirrors spec §6.4's rejected reason vocabulary, which in turn
// mirrors ot.RejectReason.
type RejectedMsg struct {
	Reason           ot.RejectReasonCode  `json:"reason"`
	CellID           *notebook.Base64Uuid `json:"cellId,omitempty"`
	LabelKey         *string              `json:"labelKey,omitempty"`
	ValidationError  *string              `json:"validationError,omitempty"`
	CurrentRevision  *uint32              `json:"currentRevision,omitempty"`
	OpID             *string              `json:"opId,omitempty"`
}

// NewRejectedMsg translates an ot.RejectReason into its wire form.
func NewRejectedMsg(reason ot.RejectReason, opID *string) RejectedMsg {
	msg := RejectedMsg{Reason: reason.Code, OpID: opID}
	if !reason.CellID.IsNil() {
		id := reason.CellID
		msg.CellID = &id
	}
	if reason.LabelKey != "" {
		key := reason.LabelKey
		msg.LabelKey = &key
	}
	if reason.ValidationError != nil {
		s := reason.ValidationError.Error()
		msg.ValidationError = &s
	}
	if reason.Code == ot.ReasonOutdated {
		rev := reason.CurrentRevision
		msg.CurrentRevision = &rev
	}
	return msg
}

type ApplyOperationBroadcastMsg struct {
	NotebookID notebook.Base64Uuid `json:"notebookId"`
	Operation  ot.Operation        `json:"operation"`
	Revision   uint32              `json:"revision"`
	UserID     uint64              `json:"userId"`
}

type SubscriberAddedMsg struct {
	NotebookID notebook.Base64Uuid `json:"notebookId"`
	UserID     uint64              `json:"userId"`
	Name       string              `json:"name"`
}

type SubscriberRemovedMsg struct {
	NotebookID notebook.Base64Uuid `json:"notebookId"`
	UserID     uint64              `json:"userId"`
}

type SubscriberChangedFocusMsg struct {
	NotebookID notebook.Base64Uuid  `json:"notebookId"`
	UserID     uint64               `json:"userId"`
	CellID     *notebook.Base64Uuid `json:"cellId,omitempty"`
}

type MentionMsg struct {
	NotebookID notebook.Base64Uuid `json:"notebookId"`
	CellID     notebook.Base64Uuid `json:"cellId"`
	UserID     string              `json:"userId"`
}

type DebugResponseMsg struct {
	ActiveSessions int `json:"activeSessions"`
}

// ServerMsg is the tagged union of every message the server may send.
type ServerMsg struct {
	Type ServerMsgType `json:"type"`

	Ack                    *AckMsg                     `json:"-"`
	Err                    *ErrMsg                     `json:"-"`
	Rejected               *RejectedMsg                `json:"-"`
	ApplyOperation         *ApplyOperationBroadcastMsg `json:"-"`
	SubscriberAdded        *SubscriberAddedMsg         `json:"-"`
	SubscriberRemoved      *SubscriberRemovedMsg       `json:"-"`
	SubscriberChangedFocus *SubscriberChangedFocusMsg  `json:"-"`
	Mention                *MentionMsg                 `json:"-"`
	DebugResponse          *DebugResponseMsg           `json:"-"`
}

func (m ServerMsg) payload() any {
	switch m.Type {
	case ServerAck:
		return m.Ack
	case ServerErr:
		return m.Err
	case ServerRejected:
		return m.Rejected
	case ServerApplyOperation:
		return m.ApplyOperation
	case ServerSubscriberAdded:
		return m.SubscriberAdded
	case ServerSubscriberRemoved:
		return m.SubscriberRemoved
	case ServerSubscriberChangedFocus:
		return m.SubscriberChangedFocus
	case ServerMention:
		return m.Mention
	case ServerDebugResponse:
		return m.DebugResponse
	default:
		return nil
	}
}

func (m ServerMsg) MarshalJSON() ([]byte, error) {
	payload := m.payload()
	if payload == nil {
		return nil, fmt.Errorf("protocol: unknown server message type %q", m.Type)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(`"` + string(m.Type) + `"`)
	return json.Marshal(fields)
}

func (m *ServerMsg) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type ServerMsgType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	m.Type = tag.Type
	switch tag.Type {
	case ServerAck:
		m.Ack = &AckMsg{}
		return json.Unmarshal(data, m.Ack)
	case ServerErr:
		m.Err = &ErrMsg{}
		return json.Unmarshal(data, m.Err)
	case ServerRejected:
		m.Rejected = &RejectedMsg{}
		return json.Unmarshal(data, m.Rejected)
	case ServerApplyOperation:
		m.ApplyOperation = &ApplyOperationBroadcastMsg{}
		return json.Unmarshal(data, m.ApplyOperation)
	case ServerSubscriberAdded:
		m.SubscriberAdded = &SubscriberAddedMsg{}
		return json.Unmarshal(data, m.SubscriberAdded)
	case ServerSubscriberRemoved:
		m.SubscriberRemoved = &SubscriberRemovedMsg{}
		return json.Unmarshal(data, m.SubscriberRemoved)
	case ServerSubscriberChangedFocus:
		m.SubscriberChangedFocus = &SubscriberChangedFocusMsg{}
		return json.Unmarshal(data, m.SubscriberChangedFocus)
	case ServerMention:
		m.Mention = &MentionMsg{}
		return json.Unmarshal(data, m.Mention)
	case ServerDebugResponse:
		m.DebugResponse = &DebugResponseMsg{}
		return json.Unmarshal(data, m.DebugResponse)
	default:
		return fmt.Errorf("protocol: unknown server message type %q", tag.Type)
	}
}

// Helper constructors for server messages.

func NewAckMsg(opID *string) ServerMsg {
	return ServerMsg{Type: ServerAck, Ack: &AckMsg{OpID: opID}}
}

func NewErrMsg(message string) ServerMsg {
	return ServerMsg{Type: ServerErr, Err: &ErrMsg{Message: message}}
}

func NewRejectedServerMsg(reason ot.RejectReason, opID *string) ServerMsg {
	msg := NewRejectedMsg(reason, opID)
	return ServerMsg{Type: ServerRejected, Rejected: &msg}
}

func NewApplyOperationMsg(notebookID notebook.Base64Uuid, op ot.Operation, revision uint32, userID uint64) ServerMsg {
	return ServerMsg{Type: ServerApplyOperation, ApplyOperation: &ApplyOperationBroadcastMsg{
		NotebookID: notebookID, Operation: op, Revision: revision, UserID: userID,
	}}
}

func NewSubscriberAddedMsg(notebookID notebook.Base64Uuid, userID uint64, name string) ServerMsg {
	return ServerMsg{Type: ServerSubscriberAdded, SubscriberAdded: &SubscriberAddedMsg{
		NotebookID: notebookID, UserID: userID, Name: name,
	}}
}

func NewSubscriberRemovedMsg(notebookID notebook.Base64Uuid, userID uint64) ServerMsg {
	return ServerMsg{Type: ServerSubscriberRemoved, SubscriberRemoved: &SubscriberRemovedMsg{
		NotebookID: notebookID, UserID: userID,
	}}
}

func NewSubscriberChangedFocusMsg(notebookID notebook.Base64Uuid, userID uint64, cellID *notebook.Base64Uuid) ServerMsg {
	return ServerMsg{Type: ServerSubscriberChangedFocus, SubscriberChangedFocus: &SubscriberChangedFocusMsg{
		NotebookID: notebookID, UserID: userID, CellID: cellID,
	}}
}

func NewDebugResponseMsg(activeSessions int) ServerMsg {
	return ServerMsg{Type: ServerDebugResponse, DebugResponse: &DebugResponseMsg{ActiveSessions: activeSessions}}
}
