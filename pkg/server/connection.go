package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/shiv248/kolabpad/internal/protocol"
	"github.com/shiv248/kolabpad/pkg/notebook"
	"github.com/shiv248/kolabpad/pkg/ot"
)

// Connection represents a single client WebSocket connection, which may
// subscribe to any number of notebook sessions over its lifetime.
type Connection struct {
	userID uint64
	name   string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	sendMu sync.Mutex

	server *Server

	mu            sync.Mutex
	subscriptions map[notebook.Base64Uuid]*subscription
}

// subscription tracks one notebook this connection is streaming updates
// from: the session itself and the goroutine forwarding its broadcasts.
type subscription struct {
	session *Session
	done    chan struct{}
}

// NewConnection creates a new client connection handler.
func NewConnection(srv *Server, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		userID:        srv.nextUserID(),
		conn:          conn,
		ctx:           ctx,
		cancel:        cancel,
		server:        srv,
		subscriptions: make(map[notebook.Base64Uuid]*subscription),
	}
}

// Handle manages the WebSocket connection lifecycle: read client messages
// until the socket closes or the context is cancelled.
func (c *Connection) Handle(ctx context.Context) error {
	defer c.cleanup()

	log.Printf("connection! id = %d", c.userID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
		}

		readCtx, readCancel := context.WithTimeout(ctx, c.server.wsReadTimeout)
		var msg protocol.ClientMsg
		err := wsjson.Read(readCtx, c.conn, &msg)
		readCancel()
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		if err := c.handleMessage(&msg); err != nil {
			log.Printf("error handling message from user %d: %v", c.userID, err)
		}
	}
}

func (c *Connection) handleMessage(msg *protocol.ClientMsg) error {
	switch msg.Type {
	case protocol.ClientAuthenticate:
		// Token verification/identity resolution is out of scope; the token
		// itself stands in for the connection's display name.
		c.name = msg.Authenticate.Token
		return nil

	case protocol.ClientSubscribe:
		return c.subscribe(msg.Subscribe.NotebookID, msg.Subscribe.Revision)

	case protocol.ClientUnsubscribe:
		c.unsubscribe(msg.Unsubscribe.NotebookID)
		return nil

	case protocol.ClientApplyOperation:
		return c.applyOperation(msg.ApplyOperation.NotebookID, msg.ApplyOperation.Revision, []ot.Operation{msg.ApplyOperation.Operation}, msg.ApplyOperation.OpID)

	case protocol.ClientApplyOperationBatch:
		return c.applyOperation(msg.ApplyOperationBatch.NotebookID, msg.ApplyOperationBatch.Revision, msg.ApplyOperationBatch.Operations, msg.ApplyOperationBatch.OpID)

	case protocol.ClientFocusInfo:
		return c.focusInfo(msg.FocusInfo.NotebookID, msg.FocusInfo.CellID)

	case protocol.ClientDebugRequest:
		return c.send(protocol.NewDebugResponseMsg(c.server.activeSessionCount()))

	default:
		return nil
	}
}

// subscribe attaches this connection to notebookID's session, sending the
// initial snapshot (or missing history, when revision is already known) and
// starting a goroutine that forwards the session's broadcasts.
func (c *Connection) subscribe(notebookID notebook.Base64Uuid, fromRevision *uint32) error {
	session, err := c.server.getOrCreateSession(notebookID)
	if err != nil {
		return c.send(protocol.NewErrMsg(err.Error()))
	}

	c.mu.Lock()
	if _, already := c.subscriptions[notebookID]; already {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var startRevision uint32
	if fromRevision != nil {
		startRevision = *fromRevision
		entries, err := session.GetHistory(startRevision)
		if err != nil {
			return c.send(protocol.NewErrMsg(err.Error()))
		}
		for _, entry := range entries {
			if err := c.send(protocol.NewApplyOperationMsg(notebookID, entry.Operation, startRevision+1, entry.UserID)); err != nil {
				return err
			}
			startRevision++
		}
	} else {
		nb, revision := session.GetInitialState()
		if err := c.send(protocol.ServerMsg{Type: protocol.ServerApplyOperation, ApplyOperation: &protocol.ApplyOperationBroadcastMsg{
			NotebookID: notebookID,
			Operation:  ot.NewReplaceCells(ot.ReplaceCellsOperation{NewCells: cellsWithIndex(nb.Cells)}),
			Revision:   revision,
			UserID:     protocol.SystemUserID,
		}}); err != nil {
			return err
		}
		startRevision = revision
	}

	ch := session.Subscribe(c.userID, c.name)
	done := make(chan struct{})

	c.mu.Lock()
	c.subscriptions[notebookID] = &subscription{session: session, done: done}
	c.mu.Unlock()

	go c.forwardBroadcasts(notebookID, ch, done)
	return nil
}

func cellsWithIndex(cells []notebook.Cell) []ot.CellWithIndex {
	out := make([]ot.CellWithIndex, len(cells))
	for i, cell := range cells {
		out[i] = ot.CellWithIndex{Cell: cell, Index: uint32(i)}
	}
	return out
}

func (c *Connection) unsubscribe(notebookID notebook.Base64Uuid) {
	c.mu.Lock()
	sub, ok := c.subscriptions[notebookID]
	if ok {
		delete(c.subscriptions, notebookID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	sub.session.Unsubscribe(c.userID)
	close(sub.done)
}

func (c *Connection) forwardBroadcasts(notebookID notebook.Base64Uuid, ch <-chan *protocol.ServerMsg, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := c.send(*msg); err != nil {
				log.Printf("error broadcasting to user %d: %v", c.userID, err)
				c.cancel()
				return
			}
		}
	}
}

func (c *Connection) applyOperation(notebookID notebook.Base64Uuid, revision uint32, ops []ot.Operation, opID *string) error {
	c.mu.Lock()
	sub, ok := c.subscriptions[notebookID]
	c.mu.Unlock()
	if !ok {
		return c.send(protocol.NewErrMsg(fmt.Sprintf("not subscribed to notebook %s", notebookID)))
	}

	for _, op := range ops {
		accepted, newRevision, err := sub.session.ApplyOperation(c.userID, revision, op)
		if err != nil {
			if reason, ok := ot.AsRejectReason(err); ok {
				return c.send(protocol.NewRejectedServerMsg(reason, opID))
			}
			return c.send(protocol.NewErrMsg(err.Error()))
		}
		if accepted != nil {
			sub.session.broadcast(notebookID, protocol.NewApplyOperationMsg(notebookID, *accepted, newRevision, c.userID))
		}
		revision = newRevision
	}

	return c.send(protocol.NewAckMsg(opID))
}

func (c *Connection) focusInfo(notebookID notebook.Base64Uuid, cellID *notebook.Base64Uuid) error {
	c.mu.Lock()
	sub, ok := c.subscriptions[notebookID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	sub.session.SetFocus(c.userID, cellID)
	return nil
}

// send sends a message to the client (thread-safe).
func (c *Connection) send(msg protocol.ServerMsg) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	writeCtx, writeCancel := context.WithTimeout(c.ctx, c.server.wsWriteTimeout)
	defer writeCancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

// cleanup removes the connection from every session it subscribed to.
func (c *Connection) cleanup() {
	log.Printf("disconnection, id = %d", c.userID)

	c.mu.Lock()
	subs := c.subscriptions
	c.subscriptions = make(map[notebook.Base64Uuid]*subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.session.Unsubscribe(c.userID)
		close(sub.done)
	}
	c.cancel()
}
