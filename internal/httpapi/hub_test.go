package httpapi

import (
	"testing"
	"time"

	"github.com/collabdocs/trackd/internal/track"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(track.Notification{FileName: "a.docx", Version: 3})
	select {
	case n := <-events:
		if n.FileName != "a.docx" || n.Version != 3 {
			t.Fatalf("notification = %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
	}
}

func TestHubDropsEventsAfterUnsubscribe(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe()
	cancel()

	hub.Publish(track.Notification{FileName: "a.docx"})
	select {
	case n := <-events:
		t.Fatalf("unexpected notification %+v", n)
	default:
	}
}
