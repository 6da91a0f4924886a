package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"parcelbot.ai/internal/agent/sensing"
	"parcelbot.ai/internal/grid"
	"parcelbot.ai/internal/protocol"
)

// gameServer speaks the server side of the protocol. It sends WELCOME plus
// extra after the HELLO and answers every ACT with onAct, if set.
func gameServer(t *testing.T, extra []any, onAct func(protocol.ActMsg) []any) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hello protocol.HelloMsg
		if err := conn.ReadJSON(&hello); err != nil || hello.Type != protocol.TypeHello || hello.AgentName == "" {
			return
		}
		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			AgentID:         "a1",
			Name:            hello.AgentName,
			Map: protocol.MapInfo{
				Width:  2,
				Height: 1,
				Tiles:  [][]int{{protocol.TileSpawner}, {protocol.TileDelivery}},
			},
			Game: protocol.GameParams{DecayIntervalMs: 1000, MovementDurationMs: 50, Capacity: 3},
		}
		if err := conn.WriteJSON(welcome); err != nil {
			return
		}
		for _, m := range extra {
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
		for {
			var act protocol.ActMsg
			if err := conn.ReadJSON(&act); err != nil {
				return
			}
			if onAct == nil {
				continue
			}
			for _, m := range onAct(act) {
				if err := conn.WriteJSON(m); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, opts Options) *Client {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "bot"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, opts, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func nextEvent(t *testing.T, c *Client) sensing.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatalf("events closed: %v", c.Err())
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return nil
}

func ack(act protocol.ActMsg, accepted bool, x, y int, parcels ...string) protocol.AckMsg {
	a := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          act.ReqID,
		Accepted:        accepted,
		X:               x,
		Y:               y,
		Parcels:         parcels,
	}
	if !accepted {
		a.Code = protocol.ErrBlocked
	}
	return a
}

func TestDialDeliversWelcomeThenSensing(t *testing.T) {
	url := gameServer(t, []any{
		protocol.YouMsg{Type: protocol.TypeYou, ProtocolVersion: protocol.Version, ID: "a1", Name: "bot", X: 0, Y: 0},
		protocol.ParcelsMsg{Type: protocol.TypeParcels, ProtocolVersion: protocol.Version, Parcels: []protocol.ParcelObs{
			{ID: "p1", X: 1, Y: 0, Reward: 7},
		}},
		protocol.AgentsMsg{Type: protocol.TypeAgents, ProtocolVersion: protocol.Version, Agents: []protocol.AgentObs{
			{ID: "a2", Name: "rival", X: 1, Y: 0.5},
		}},
	}, nil)
	c := dial(t, url, Options{Validate: true})

	w, ok := nextEvent(t, c).(sensing.Welcome)
	if !ok {
		t.Fatalf("first event should be the welcome")
	}
	if w.AgentID != "a1" || w.Map.Width != 2 || w.Map.Height != 1 || w.Game.Capacity != 3 {
		t.Fatalf("welcome: %+v", w)
	}
	if !w.Map.IsDelivery(grid.Position{X: 1}) || w.Game.DecayInterval != time.Second {
		t.Fatalf("welcome map/game not converted: %+v", w.Game)
	}
	if you, ok := nextEvent(t, c).(sensing.You); !ok || you.ID != "a1" {
		t.Fatalf("expected YOU")
	}
	ps, ok := nextEvent(t, c).(sensing.ParcelsSensed)
	if !ok || len(ps.Parcels) != 1 || ps.Parcels[0].Pos != (grid.Position{X: 1}) || ps.Parcels[0].Reward != 7 {
		t.Fatalf("parcels: %+v", ps)
	}
	as, ok := nextEvent(t, c).(sensing.AgentsSensed)
	if !ok || len(as.Agents) != 1 || as.Agents[0].Y != 0.5 {
		t.Fatalf("agents: %+v", as)
	}
}

func TestActionsRouteAcks(t *testing.T) {
	url := gameServer(t, nil, func(act protocol.ActMsg) []any {
		stray := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: "someone-else", Accepted: true}
		switch act.Action {
		case protocol.ActionMove:
			if act.Direction == string(grid.Left) {
				return []any{ack(act, false, 0, 0)}
			}
			return []any{stray, ack(act, true, 1, 0)}
		case protocol.ActionPickup:
			return []any{ack(act, true, 1, 0, "p1")}
		case protocol.ActionPutdown:
			return []any{ack(act, true, 1, 0, "p1")}
		}
		return nil
	})
	c := dial(t, url, Options{ActionsPerSecond: 1000})
	ctx := context.Background()

	pos, ok, err := c.Move(ctx, grid.Right)
	if err != nil || !ok || pos != (grid.Position{X: 1}) {
		t.Fatalf("move right: pos=%v ok=%v err=%v", pos, ok, err)
	}
	if _, ok, err := c.Move(ctx, grid.Left); err != nil || ok {
		t.Fatalf("move left should be rejected without error: ok=%v err=%v", ok, err)
	}
	ids, err := c.Pickup(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "p1" {
		t.Fatalf("pickup: %v %v", ids, err)
	}
	ids, err = c.Putdown(ctx)
	if err != nil || len(ids) != 1 {
		t.Fatalf("putdown: %v %v", ids, err)
	}
}

func TestAckTimeout(t *testing.T) {
	url := gameServer(t, nil, nil)
	c := dial(t, url, Options{AckTimeout: 50 * time.Millisecond})
	_, _, err := c.Move(context.Background(), grid.Up)
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("got %v, want ack timeout", err)
	}
}

func TestValidationDropsMalformedMessages(t *testing.T) {
	bad := map[string]any{"type": protocol.TypeYou, "protocol_version": protocol.Version, "x": 1, "y": 2}
	good := protocol.YouMsg{Type: protocol.TypeYou, ProtocolVersion: protocol.Version, ID: "a1", X: 1, Y: 2}
	url := gameServer(t, []any{bad, good}, nil)
	c := dial(t, url, Options{Validate: true})

	if _, ok := nextEvent(t, c).(sensing.Welcome); !ok {
		t.Fatalf("expected welcome first")
	}
	you, ok := nextEvent(t, c).(sensing.You)
	if !ok || you.ID != "a1" {
		t.Fatalf("expected the valid YOU, got %+v", you)
	}
}

func TestCloseEndsSession(t *testing.T) {
	url := gameServer(t, nil, nil)
	c := dial(t, url, Options{})
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatalf("done not closed")
	}
	if !errors.Is(c.Err(), ErrClosed) {
		t.Fatalf("err: %v", c.Err())
	}
	if _, err := c.Pickup(context.Background()); err == nil {
		t.Fatalf("actions after close should fail")
	}
}

func TestWelcomeRejectsBadMap(t *testing.T) {
	_, err := welcomeEvent(protocol.WelcomeMsg{Map: protocol.MapInfo{Width: 2, Height: 1, Tiles: [][]int{{3}}}})
	if err == nil {
		t.Fatalf("expected width mismatch error")
	}
	_, err = welcomeEvent(protocol.WelcomeMsg{Map: protocol.MapInfo{Width: 1, Height: 1, Tiles: [][]int{{9}}}})
	if err == nil {
		t.Fatalf("expected bad tile error")
	}
	raw, _ := json.Marshal(protocol.MapInfo{Width: 1, Height: 1, Tiles: [][]int{{protocol.TileWalkable}}})
	if !strings.Contains(string(raw), `"tiles":[[3]]`) {
		t.Fatalf("tiles encoding: %s", raw)
	}
}

func TestPushWaitsForParcelFrames(t *testing.T) {
	c := &Client{events: make(chan sensing.Event, 1), done: make(chan struct{})}
	c.events <- sensing.You{ID: "me"}

	c.push(sensing.AgentsSensed{})
	if c.Dropped() != 1 {
		t.Fatalf("agents frame should drop on a full buffer, dropped=%d", c.Dropped())
	}

	pushed := make(chan struct{})
	go func() {
		c.push(sensing.ParcelsSensed{})
		close(pushed)
	}()
	time.Sleep(20 * time.Millisecond)
	if _, ok := (<-c.events).(sensing.You); !ok {
		t.Fatalf("expected the queued position frame first")
	}
	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatalf("parcel push did not complete")
	}
	if _, ok := (<-c.events).(sensing.ParcelsSensed); !ok {
		t.Fatalf("parcel frame was not delivered")
	}
	if c.Dropped() != 1 {
		t.Fatalf("parcel frame dropped, dropped=%d", c.Dropped())
	}
}
