package ports

import (
	"context"
	"net/http"
	"time"
)

// RealtimeConn abstracts one websocket connection for testability. Writes
// are serialized by the caller.
type RealtimeConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

type RealtimeDialer interface {
	Dial(ctx context.Context, url string, header http.Header) (RealtimeConn, error)
}
