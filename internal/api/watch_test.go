package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/prefsets/internal/kv"
	"github.com/kalambet/prefsets/internal/preset"
)

func newWatchServer(t *testing.T) (*httptest.Server, *preset.Registry) {
	t.Helper()
	reg, err := preset.New(kv.NewMemory())
	if err != nil {
		t.Fatalf("preset.New: %v", err)
	}
	srv := httptest.NewServer(NewHandler(Deps{Registry: reg, Token: testToken}))
	t.Cleanup(srv.Close)
	return srv, reg
}

func dialWatch(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/watch" + query
	header := http.Header{"Authorization": []string{"Bearer " + testToken}}
	return websocket.DefaultDialer.Dial(wsURL, header)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return ev
}

func TestWatchUnknownPreset(t *testing.T) {
	srv, _ := newWatchServer(t)
	_, resp, err := dialWatch(t, srv, "?preset=GHOST")
	if err == nil {
		t.Fatal("expected dial error for unknown preset")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", resp)
	}
}

func TestWatchStreamsPresetChanges(t *testing.T) {
	srv, reg := newWatchServer(t)
	reg.Add("WORK")

	conn, _, err := dialWatch(t, srv, "?preset=WORK")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := readEvent(t, conn)
	if hello.Type != "hello" || hello.Preset != "WORK" || hello.Subscription == "" {
		t.Fatalf("hello = %+v", hello)
	}

	// DEFAULT changes are not reported on a WORK stream.
	reg.Default().Edit().PutString("theme", "light").Commit()
	reg.Preset("WORK").Edit().PutInt("fontSize", 14).Commit()

	ev := readEvent(t, conn)
	if ev.Type != "change" || ev.Key != "fontSize" || ev.Preset != "WORK" {
		t.Errorf("event = %+v, want change of fontSize", ev)
	}

	reg.Preset("WORK").SaveAsActive()
	ev = readEvent(t, conn)
	if ev.Type != "active" || ev.Preset != "WORK" {
		t.Errorf("event = %+v, want active WORK", ev)
	}
}

func TestWatchDefaultsToActivePreset(t *testing.T) {
	srv, reg := newWatchServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+"/watch?token="+testToken, nil)
	if err != nil {
		t.Fatalf("dial with query token: %v", err)
	}
	defer conn.Close()

	if hello := readEvent(t, conn); hello.Preset != preset.DefaultName {
		t.Errorf("hello preset = %q, want DEFAULT", hello.Preset)
	}
	reg.Default().Edit().PutBool("bold", true).Commit()
	if ev := readEvent(t, conn); ev.Key != "bold" {
		t.Errorf("event = %+v, want change of bold", ev)
	}
}
