package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/landfill/clairkeys/cache"
	"github.com/landfill/clairkeys/core/playback"
	"github.com/landfill/clairkeys/logger"
	"github.com/landfill/clairkeys/model"
	"github.com/landfill/clairkeys/storage"
)

// MessageType identifies a playback control or event message.
type MessageType string

const (
	// client -> server
	MsgTypeLoad      MessageType = "load"       // load a sheet into the session
	MsgTypePlay      MessageType = "play"       // start playback
	MsgTypePause     MessageType = "pause"      // pause playback
	MsgTypeStop      MessageType = "stop"       // stop and rewind
	MsgTypeSeek      MessageType = "seek"       // jump to a time
	MsgTypeSpeed     MessageType = "speed"      // change playback rate
	MsgTypeMode      MessageType = "mode"       // switch listen/follow
	MsgTypeNoteInput MessageType = "note_input" // follow-mode key press
	MsgTypeState     MessageType = "state"      // request a state snapshot
	MsgTypePing      MessageType = "ping"       // heartbeat

	// server -> client
	MsgTypeTimeUpdate      MessageType = "time_update"
	MsgTypePlayStateChange MessageType = "play_state_change"
	MsgTypeSpeedChange     MessageType = "speed_change"
	MsgTypeNoteStart       MessageType = "note_start"
	MsgTypeNoteEnd         MessageType = "note_end"
	MsgTypeSnapshot        MessageType = "snapshot"
	MsgTypeInputResult     MessageType = "input_result"
	MsgTypeError           MessageType = "error"
	MsgTypePong            MessageType = "pong"
)

// WSMessage is the playback WebSocket envelope.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// LoadData asks the session to load a sheet's animation.
type LoadData struct {
	SheetID int64 `json:"sheetId"`
}

// SeekData carries a seek target in seconds.
type SeekData struct {
	Time float64 `json:"time"`
}

// SpeedData carries a playback rate.
type SpeedData struct {
	Speed float64 `json:"speed"`
}

// ModeData carries a playback mode name.
type ModeData struct {
	Mode string `json:"mode"`
}

// NoteInputData carries a pitch the user played on their keyboard.
type NoteInputData struct {
	Pitch string `json:"pitch"`
}

// InputResultData reports whether a follow-mode input matched.
type InputResultData struct {
	Pitch   string `json:"pitch"`
	Matched bool   `json:"matched"`
}

// errSheetUnavailable deliberately hides whether a sheet is missing,
// private or unprocessed.
var errSheetUnavailable = errors.New("sheet not available")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one WebSocket connection bound to one playback session.
type wsClient struct {
	conn    *websocket.Conn
	send    chan []byte
	handler *APIHandler
	session *sessionRef
}

// sessionRef keeps the playback session plus its bus subscriptions so the
// read pump can drop them on disconnect.
type sessionRef struct {
	id   string
	subs []*playback.Subscription
}

// PlaybackSocketHandler upgrades the connection and binds it to a fresh
// playback session. Closing the socket closes the session; engines never
// outlive their only client.
func (h *APIHandler) PlaybackSocketHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	sess := h.sessions.Open(userID)
	client := &wsClient{
		conn:    conn,
		send:    make(chan []byte, 256),
		handler: h,
		session: &sessionRef{id: sess.ID},
	}

	client.subscribeEngine(sess.Engine())
	client.sendMessage(MsgTypeSnapshot, sess.Engine().State())

	go client.writePump()
	go client.readPump()
}

// subscribeEngine forwards the engine's event stream onto the socket.
func (c *wsClient) subscribeEngine(engine *playback.Engine) {
	forward := func(topic playback.Topic, msgType MessageType) {
		sub := engine.On(topic, func(event interface{}) {
			c.sendMessage(msgType, event)
		})
		c.session.subs = append(c.session.subs, sub)
	}

	forward(playback.TopicTimeUpdate, MsgTypeTimeUpdate)
	forward(playback.TopicPlayStateChange, MsgTypePlayStateChange)
	forward(playback.TopicSpeedChange, MsgTypeSpeedChange)
	forward(playback.TopicNoteStart, MsgTypeNoteStart)
	forward(playback.TopicNoteEnd, MsgTypeNoteEnd)
}

// readPump handles inbound control messages until the socket closes, then
// tears down the session.
func (c *wsClient) readPump() {
	defer func() {
		c.handler.sessions.Close(c.session.id)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.String("session", c.session.id))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleMessage(&msg)
	}
}

// handleMessage dispatches one control message against the session's engine.
func (c *wsClient) handleMessage(msg *WSMessage) {
	sess, err := c.handler.sessions.Get(c.session.id)
	if err != nil {
		c.sendError("session closed")
		return
	}
	sess.Touch()
	engine := sess.Engine()

	switch msg.Type {
	case MsgTypePing:
		c.sendMessage(MsgTypePong, nil)

	case MsgTypeLoad:
		var data LoadData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid load request")
			return
		}
		if err := c.loadSheet(sess.UserID, data.SheetID); err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendMessage(MsgTypeSnapshot, engine.State())

	case MsgTypePlay:
		engine.Play()

	case MsgTypePause:
		engine.Pause()

	case MsgTypeStop:
		engine.Stop()

	case MsgTypeSeek:
		var data SeekData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid seek request")
			return
		}
		engine.SeekTo(data.Time)

	case MsgTypeSpeed:
		var data SpeedData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid speed request")
			return
		}
		engine.SetSpeed(data.Speed)

	case MsgTypeMode:
		var data ModeData
		if err := json.Unmarshal(msg.Data, &data); err != nil || !playback.ValidMode(playback.Mode(data.Mode)) {
			c.sendError("invalid mode")
			return
		}
		engine.SetMode(playback.Mode(data.Mode))
		c.sendMessage(MsgTypeSnapshot, engine.State())

	case MsgTypeNoteInput:
		var data NoteInputData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid note input")
			return
		}
		matched := engine.ProcessInput(data.Pitch)
		c.sendMessage(MsgTypeInputResult, InputResultData{Pitch: data.Pitch, Matched: matched})

	case MsgTypeState:
		c.sendMessage(MsgTypeSnapshot, engine.State())

	default:
		c.sendError("unknown message type")
	}
}

// loadSheet fetches a sheet's animation (cache, then storage) and loads it
// into the session. The caller must own the sheet or it must be public.
func (c *wsClient) loadSheet(userID, sheetID int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sheet, err := c.handler.sheetRepo.GetByID(sheetID)
	if err != nil {
		return errSheetUnavailable
	}
	if !sheet.IsPublic && sheet.UserID != userID {
		return errSheetUnavailable
	}
	if sheet.Status != model.SheetStatusCompleted || sheet.AnimationKey == "" {
		return errSheetUnavailable
	}

	data, cacheErr := cache.GetAnimation(ctx, sheetID)
	if cacheErr != nil || data == nil {
		raw, err := storage.FetchAnimation(ctx, sheet.AnimationKey)
		if err != nil {
			return errSheetUnavailable
		}
		data, err = model.ParseAnimationData(raw)
		if err != nil {
			logger.Error("stored animation data is invalid",
				logger.Int64("sheet", sheetID), logger.ErrorField(err))
			return errSheetUnavailable
		}
		cache.SetAnimation(ctx, sheetID, data)
	}

	sess, err := c.handler.sessions.Get(c.session.id)
	if err != nil {
		return err
	}
	return sess.Load(sheetID, data)
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendMessage queues an envelope; full buffers drop the message rather than
// blocking an engine event callback.
func (c *wsClient) sendMessage(msgType MessageType, data interface{}) {
	msg := WSMessage{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			logger.Error("failed to encode ws payload", logger.ErrorField(err))
			return
		}
		msg.Data = raw
	}

	out, err := json.Marshal(msg)
	if err != nil {
		return
	}

	defer func() { recover() }() // send on closed channel after disconnect
	select {
	case c.send <- out:
	default:
	}
}

func (c *wsClient) sendError(msg string) {
	c.sendMessage(MsgTypeError, map[string]string{"message": msg})
}
