package websocket

import (
	"encoding/json"
	"testing"

	"github.com/courtiq/drill-engine/internal/drill"
)

func TestHub_CachesScoresFromUpdates(t *testing.T) {
	h := NewHub()
	scores := drill.Scores{Precision: 80, Pace: 60, Streak: 40, Total: 70}

	h.NotifySessionUpdate("session-1", map[string]interface{}{
		"type":   "bounce",
		"scores": scores,
	})

	got, ok := h.GetLastScores("session-1")
	if !ok {
		t.Fatal("scores from a bounce update must be cached")
	}
	if got != scores {
		t.Errorf("cached scores = %+v, want %+v", got, scores)
	}

	if _, ok := h.GetLastScores("session-2"); ok {
		t.Error("unknown session must not report scores")
	}
}

func TestHub_NonScoreUpdatesDoNotCache(t *testing.T) {
	h := NewHub()

	h.NotifySessionUpdate("session-1", map[string]interface{}{
		"type":   "status",
		"status": drill.StatusPaused,
	})

	if _, ok := h.GetLastScores("session-1"); ok {
		t.Error("status update without scores must not create a cache entry")
	}
}

func TestHub_BroadcastFiltersBySession(t *testing.T) {
	h := NewHub()
	go h.Run()

	subscribed := &Client{hub: h, send: make(chan []byte, 4), sessionID: "session-1"}
	other := &Client{hub: h, send: make(chan []byte, 4), sessionID: "session-2"}
	all := &Client{hub: h, send: make(chan []byte, 4)}
	h.register <- subscribed
	h.register <- other
	h.register <- all

	h.NotifySessionUpdate("session-1", map[string]interface{}{"type": "status"})

	frame := <-subscribed.send
	var update SessionUpdate
	if err := json.Unmarshal(frame, &update); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if update.SessionID != "session-1" {
		t.Errorf("session_id = %s, want session-1", update.SessionID)
	}

	// Клиент без session_id получает все
	<-all.send

	// Каналы FIFO: если бы чужое обновление дошло до other, первым
	// кадром пришло бы оно, а не обновление его собственной сессии
	h.NotifySessionUpdate("session-2", map[string]interface{}{"type": "status"})
	frame = <-other.send
	if err := json.Unmarshal(frame, &update); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if update.SessionID != "session-2" {
		t.Errorf("client of session-2 received update for %s", update.SessionID)
	}
}
