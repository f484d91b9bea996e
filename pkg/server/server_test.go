package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/shiv248/kolabpad/internal/protocol"
	"github.com/shiv248/kolabpad/pkg/database"
	"github.com/shiv248/kolabpad/pkg/notebook"
	"github.com/shiv248/kolabpad/pkg/ot"
)

// testServer creates a test server with an in-memory database.
func testServer(t *testing.T) *Server {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return NewServer(db, testMaxCells, testBroadcastBufferSize, testWSReadTimeout, testWSWriteTimeout)
}

// testServerNoDb creates a test server without a database.
func testServerNoDb(t *testing.T) *Server {
	t.Helper()
	return NewServer(nil, testMaxCells, testBroadcastBufferSize, testWSReadTimeout, testWSWriteTimeout)
}

const (
	testMaxCells            = 1000
	testBroadcastBufferSize = 256
	testWSReadTimeout       = 5 * time.Minute
	testWSWriteTimeout      = 5 * time.Second
)

// connectWebSocket establishes a WebSocket connection to a test server.
func connectWebSocket(t *testing.T, ts *httptest.Server, notebookID notebook.Base64Uuid) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/socket/" + notebookID.String()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
	})

	return conn
}

func readServerMsg(t *testing.T, conn *websocket.Conn) *protocol.ServerMsg {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var msg protocol.ServerMsg
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return &msg
}

func sendClientMsg(t *testing.T, conn *websocket.Conn, msg *protocol.ClientMsg) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

// subscribeFresh subscribes conn to notebookID from scratch and reads the
// synthetic initial-state replace_cells broadcast the server sends back.
func subscribeFresh(t *testing.T, conn *websocket.Conn, notebookID notebook.Base64Uuid) *protocol.ServerMsg {
	t.Helper()
	sendClientMsg(t, conn, &protocol.ClientMsg{
		Type:      protocol.ClientSubscribe,
		Subscribe: &protocol.SubscribeMsg{NotebookID: notebookID},
	})
	return readServerMsg(t, conn)
}

func textCell(id notebook.Base64Uuid, content string) notebook.Cell {
	return notebook.Cell{
		CellHeader: notebook.CellHeader{ID: id},
		Kind:       notebook.CellKindText,
		Content:    content,
	}
}

// TestSingleUserSubscribe tests that a single user can subscribe and receive
// the initial empty-notebook snapshot.
func TestSingleUserSubscribe(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	notebookID := notebook.NewID()
	conn := connectWebSocket(t, ts, notebookID)

	msg := subscribeFresh(t, conn, notebookID)
	require.Equal(t, protocol.ServerApplyOperation, msg.Type)
	require.NotNil(t, msg.ApplyOperation)
	assert.Equal(t, notebookID, msg.ApplyOperation.NotebookID)
	assert.Equal(t, ot.OpReplaceCells, msg.ApplyOperation.Operation.Type)
	assert.Empty(t, msg.ApplyOperation.Operation.ReplaceCells.NewCells)
}

// TestMultipleUsersSubscribe tests that multiple users can subscribe to the
// same notebook and see each other join.
func TestMultipleUsersSubscribe(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	notebookID := notebook.NewID()

	conn1 := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn1, notebookID)

	sendClientMsg(t, conn1, &protocol.ClientMsg{
		Type:          protocol.ClientAuthenticate,
		Authenticate:  &protocol.AuthenticateMsg{Token: "alice"},
	})

	conn2 := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn2, notebookID)

	// conn1 should observe a subscriber_added broadcast for conn2 joining.
	msg := readServerMsg(t, conn1)
	require.Equal(t, protocol.ServerSubscriberAdded, msg.Type)
	require.NotNil(t, msg.SubscriberAdded)
	assert.Equal(t, notebookID, msg.SubscriberAdded.NotebookID)
}

// TestApplyOperationBroadcast tests that an accepted operation is broadcast
// to every subscriber and acked to the sender.
func TestApplyOperationBroadcast(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	notebookID := notebook.NewID()

	conn1 := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn1, notebookID)
	conn2 := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn2, notebookID)
	readServerMsg(t, conn1) // subscriber_added for conn2

	cellID := notebook.NewID()
	op := ot.NewReplaceCells(ot.ReplaceCellsOperation{
		NewCells: []ot.CellWithIndex{{Cell: textCell(cellID, "hello"), Index: 0}},
	})

	sendClientMsg(t, conn1, &protocol.ClientMsg{
		Type: protocol.ClientApplyOperation,
		ApplyOperation: &protocol.ApplyOperationMsg{
			NotebookID: notebookID,
			Operation:  op,
			Revision:   0,
		},
	})

	// The sender gets both its own broadcast (it is a subscriber too) and its
	// ack, in no guaranteed order since they travel over separate goroutines.
	first := readServerMsg(t, conn1)
	second := readServerMsg(t, conn1)
	msgs := map[protocol.ServerMsgType]*protocol.ServerMsg{first.Type: first, second.Type: second}

	require.Contains(t, msgs, protocol.ServerApplyOperation)
	require.Contains(t, msgs, protocol.ServerAck)
	broadcast1 := msgs[protocol.ServerApplyOperation]
	assert.Equal(t, uint32(1), broadcast1.ApplyOperation.Revision)
	assert.Equal(t, ot.OpReplaceCells, broadcast1.ApplyOperation.Operation.Type)

	broadcast2 := readServerMsg(t, conn2)
	require.Equal(t, protocol.ServerApplyOperation, broadcast2.Type)
}

// TestConcurrentInsertsConverge tests that two concurrent inserts at the same
// index are rebased against each other and both land without either client
// needing to resolve a conflict.
func TestConcurrentInsertsConverge(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	notebookID := notebook.NewID()

	conn1 := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn1, notebookID)
	conn2 := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn2, notebookID)
	readServerMsg(t, conn1) // subscriber_added for conn2

	cellA := notebook.NewID()
	opA := ot.NewReplaceCells(ot.ReplaceCellsOperation{
		NewCells: []ot.CellWithIndex{{Cell: textCell(cellA, "A"), Index: 0}},
	})
	cellB := notebook.NewID()
	opB := ot.NewReplaceCells(ot.ReplaceCellsOperation{
		NewCells: []ot.CellWithIndex{{Cell: textCell(cellB, "B"), Index: 0}},
	})

	sendClientMsg(t, conn1, &protocol.ClientMsg{
		Type:           protocol.ClientApplyOperation,
		ApplyOperation: &protocol.ApplyOperationMsg{NotebookID: notebookID, Operation: opA, Revision: 0},
	})
	sendClientMsg(t, conn2, &protocol.ClientMsg{
		Type:           protocol.ClientApplyOperation,
		ApplyOperation: &protocol.ApplyOperationMsg{NotebookID: notebookID, Operation: opB, Revision: 0},
	})

	// Drain four broadcasts plus two acks across both connections; both
	// operations must be accepted (neither rejected) since they target
	// disjoint new cell IDs.
	var revisions []uint32
	for i := 0; i < 3; i++ {
		msg := readServerMsg(t, conn1)
		if msg.Type == protocol.ServerApplyOperation {
			revisions = append(revisions, msg.ApplyOperation.Revision)
		}
	}
	for i := 0; i < 3; i++ {
		msg := readServerMsg(t, conn2)
		if msg.Type == protocol.ServerApplyOperation {
			revisions = append(revisions, msg.ApplyOperation.Revision)
		}
	}
	assert.ElementsMatch(t, []uint32{1, 2, 1, 2}, revisions)
}

// TestStaleEditAgainstDeletedCellBecomesNoOp tests that a ReplaceText
// targeting a cell a concurrent operation already deleted is rebased away to
// nothing (an obsolete transform outcome), acked but never broadcast, rather
// than corrupting or resurrecting the cell.
func TestStaleEditAgainstDeletedCellBecomesNoOp(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	notebookID := notebook.NewID()
	conn := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn, notebookID)

	cellID := notebook.NewID()
	insert := ot.NewReplaceCells(ot.ReplaceCellsOperation{
		NewCells: []ot.CellWithIndex{{Cell: textCell(cellID, "hello"), Index: 0}},
	})
	sendClientMsg(t, conn, &protocol.ClientMsg{
		Type:           protocol.ClientApplyOperation,
		ApplyOperation: &protocol.ApplyOperationMsg{NotebookID: notebookID, Operation: insert, Revision: 0},
	})
	readServerMsg(t, conn) // broadcast
	readServerMsg(t, conn) // ack

	// Delete the cell at revision 1...
	remove := ot.NewReplaceCells(ot.ReplaceCellsOperation{
		OldCells: []ot.CellWithIndex{{Cell: textCell(cellID, "hello"), Index: 0}},
	})
	sendClientMsg(t, conn, &protocol.ClientMsg{
		Type:           protocol.ClientApplyOperation,
		ApplyOperation: &protocol.ApplyOperationMsg{NotebookID: notebookID, Operation: remove, Revision: 1},
	})
	readServerMsg(t, conn) // broadcast
	readServerMsg(t, conn) // ack

	// ...then submit an edit against the now-deleted cell as if revision 1
	// (before the delete) were still current.
	staleEdit := ot.NewReplaceText(ot.ReplaceTextOperation{
		CellID: cellID, Offset: 0, NewText: "goodbye", OldText: "hello",
	})
	opID := "stale-op"
	sendClientMsg(t, conn, &protocol.ClientMsg{
		Type: protocol.ClientApplyOperation,
		ApplyOperation: &protocol.ApplyOperationMsg{
			NotebookID: notebookID, Operation: staleEdit, Revision: 1, OpID: &opID,
		},
	})

	// No broadcast follows — the rebase dropped the edit — only the ack.
	msg := readServerMsg(t, conn)
	require.Equal(t, protocol.ServerAck, msg.Type)
	require.NotNil(t, msg.Ack.OpID)
	assert.Equal(t, opID, *msg.Ack.OpID)
}

// TestFocusInfoBroadcast tests that focus changes are broadcast to the rest
// of the session but not echoed back to the sender.
func TestFocusInfoBroadcast(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	notebookID := notebook.NewID()
	conn1 := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn1, notebookID)
	conn2 := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn2, notebookID)
	readServerMsg(t, conn1) // subscriber_added

	cellID := notebook.NewID()
	sendClientMsg(t, conn1, &protocol.ClientMsg{
		Type:      protocol.ClientFocusInfo,
		FocusInfo: &protocol.FocusInfoMsg{NotebookID: notebookID, CellID: &cellID},
	})

	msg := readServerMsg(t, conn2)
	require.Equal(t, protocol.ServerSubscriberChangedFocus, msg.Type)
	require.NotNil(t, msg.SubscriberChangedFocus)
	assert.Equal(t, cellID, *msg.SubscriberChangedFocus.CellID)
}

// TestNotebookSnapshotEndpoint tests that /api/notebook/{id} returns the
// current JSON state of an in-memory notebook.
func TestNotebookSnapshotEndpoint(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	notebookID := notebook.NewID()
	conn := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn, notebookID)

	resp, err := http.Get(ts.URL + "/api/notebook/" + notebookID.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestStatsEndpoint tests the /api/stats endpoint.
func TestStatsEndpoint(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	notebookID := notebook.NewID()
	conn := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn, notebookID)

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.NumSessions)
}

// TestServerWithoutDatabase tests that the server works with persistence
// disabled.
func TestServerWithoutDatabase(t *testing.T) {
	server := testServerNoDb(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	notebookID := notebook.NewID()
	conn := connectWebSocket(t, ts, notebookID)
	msg := subscribeFresh(t, conn, notebookID)
	require.Equal(t, protocol.ServerApplyOperation, msg.Type)
}

// TestInvalidNotebookID tests that a malformed notebook ID on the socket
// route is rejected at the HTTP layer before any upgrade is attempted.
func TestInvalidNotebookID(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/socket/not-a-valid-id"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

// TestInvalidRevisionRejected tests that submitting an operation against a
// revision ahead of the session's current history is rejected with an error
// rather than silently accepted.
func TestInvalidRevisionRejected(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	notebookID := notebook.NewID()
	conn := connectWebSocket(t, ts, notebookID)
	subscribeFresh(t, conn, notebookID)

	cellID := notebook.NewID()
	op := ot.NewReplaceCells(ot.ReplaceCellsOperation{
		NewCells: []ot.CellWithIndex{{Cell: textCell(cellID, "x"), Index: 0}},
	})
	sendClientMsg(t, conn, &protocol.ClientMsg{
		Type: protocol.ClientApplyOperation,
		ApplyOperation: &protocol.ApplyOperationMsg{
			NotebookID: notebookID, Operation: op, Revision: 999,
		},
	})

	msg := readServerMsg(t, conn)
	assert.Equal(t, protocol.ServerErr, msg.Type)
}
