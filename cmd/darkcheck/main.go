package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/dark-chess/internal/notify"
	"github.com/park285/dark-chess/pkg/darkdto"
)

// darkcheck connects to a running server as one player, asks for the game
// summary and prints every frame received for a short window.
func main() {
	wsURL := os.Getenv("DARKCHESS_WS_URL")
	token := os.Getenv("DARKCHESS_TOKEN")
	if wsURL == "" || token == "" {
		log.Fatal("DARKCHESS_WS_URL and DARKCHESS_TOKEN are required")
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		log.Fatalf("bad DARKCHESS_WS_URL: %v", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	conn, _, err := websocket.Dial(cctx, u.String(), nil)
	if err != nil {
		log.Fatalf("WS connect error: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	req, _ := notify.NewFrame(darkdto.TypeGetInfo, "check-1", nil)
	if err := wsjson.Write(cctx, conn, req); err != nil {
		log.Fatalf("WS write error: %v", err)
	}

	// Observe for a short window
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		var f notify.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			log.Printf("WS read stopped: %v", err)
			return
		}
		fmt.Printf("WS frame t=%s id=%s m=%s\n", f.T, f.ID, f.M)
	}
}
