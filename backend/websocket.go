// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Subscribers only listen;
	// anything beyond a ping fits comfortably.
	maxMessageSize = 512
)

// ChangeEvent tells live subscribers which part of their session
// changed. Clients refetch the named resource.
type ChangeEvent struct {
	Type string `json:"type"` // players | teams | games | settings
	Date string `json:"date"`
}

type liveClient struct {
	hub  *liveHub
	conn *websocket.Conn
	send chan ChangeEvent
}

// readPump drains the connection so control frames are processed and
// closes the client when the peer goes away.
func (c *liveClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("live: read: %v", err)
			}
			break
		}
	}
}

// writePump pushes change events and keepalive pings to the peer.
func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// liveHub fans mutation events out to the subscribers of one
// (league, date) session.
type liveHub struct {
	key string

	clients    map[*liveClient]bool
	register   chan *liveClient
	unregister chan *liveClient
	events     chan ChangeEvent
	done       chan struct{} // closed when the hub retires

	feed *LiveFeed
}

func newLiveHub(key string, feed *LiveFeed) *liveHub {
	return &liveHub{
		key:        key,
		clients:    make(map[*liveClient]bool),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		events:     make(chan ChangeEvent, 16),
		done:       make(chan struct{}),
		feed:       feed,
	}
}

func (h *liveHub) run() {
	idleTimer := time.NewTicker(5 * time.Minute)
	defer idleTimer.Stop()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case event := <-h.events:
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					// Slow consumer, drop it.
					delete(h.clients, client)
					close(client.send)
				}
			}
		case <-idleTimer.C:
			if len(h.clients) == 0 && h.feed.retire(h) {
				return
			}
		}
	}
}

// LiveFeed owns the per-session hubs and upgrades subscriber
// connections.
type LiveFeed struct {
	mu       sync.Mutex
	hubs     map[string]*liveHub
	upgrader websocket.Upgrader
}

// NewLiveFeed creates the feed. Cross-origin upgrades are held to the
// same allowed-origin patterns as the rest of the API.
func NewLiveFeed(allowedOrigins []string) *LiveFeed {
	return &LiveFeed{
		hubs: make(map[string]*liveHub),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				return originAllowed(origin, allowedOrigins)
			},
		},
	}
}

func hubKey(leagueID, date string) string {
	return leagueID + "|" + date
}

func (f *LiveFeed) getHub(key string, create bool) *liveHub {
	f.mu.Lock()
	defer f.mu.Unlock()
	hub := f.hubs[key]
	if hub == nil && create {
		hub = newLiveHub(key, f)
		f.hubs[key] = hub
		go hub.run()
	}
	return hub
}

// retire removes an idle hub from the feed so its run loop can exit.
// It holds the feed lock, so no new Subscribe can fetch the hub while
// it winds down; a subscriber already blocked on register is adopted
// and aborts the retirement. Once retire returns true the hub is out
// of the map with done closed, and stragglers holding the stale
// pointer re-resolve onto a fresh hub.
func (f *LiveFeed) retire(h *liveHub) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case client := <-h.register:
		h.clients[client] = true
		return false
	default:
	}
	if len(h.clients) != 0 {
		return false
	}
	delete(f.hubs, h.key)
	close(h.done)
	return true
}

// Broadcast notifies the session's subscribers, if any, that a
// resource changed. Never blocks the mutating request.
func (f *LiveFeed) Broadcast(leagueID, date, typ string) {
	hub := f.getHub(hubKey(leagueID, date), false)
	if hub == nil {
		return
	}
	select {
	case hub.events <- ChangeEvent{Type: typ, Date: date}:
	default:
		log.Printf("live: event queue full for %s, dropping %s", hub.key, typ)
	}
}

// Subscribe upgrades the request and attaches the client to its
// session hub. The caller has already authenticated the request.
func (f *LiveFeed) Subscribe(w http.ResponseWriter, r *http.Request, leagueID, date string) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade: %v", err)
		return
	}
	client := &liveClient{conn: conn, send: make(chan ChangeEvent, 8)}
	for {
		hub := f.getHub(hubKey(leagueID, date), true)
		select {
		case hub.register <- client:
			client.hub = hub
			go client.writePump()
			go client.readPump()
			return
		case <-hub.done:
			// The hub retired between lookup and registration; the
			// next lookup creates a fresh one.
		}
	}
}
