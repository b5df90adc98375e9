// panic-sim - simulated panic button for exercising a Guardian server
// Connects as a device, reports a location, optionally presses the button,
// and prints every command the server sends back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-guardian/internal/log"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/protocol"
)

func main() {
	server := flag.String("server", "ws://localhost:8080", "Guardian server websocket base URL")
	id := flag.String("id", "panic-sim", "Device ID")
	lat := flag.Float64("lat", 37.7749, "Reported latitude")
	lng := flag.Float64("lng", -122.4194, "Reported longitude")
	accuracy := flag.Float64("accuracy", 15, "Reported accuracy in meters")
	battery := flag.Float64("battery", 87, "Reported battery percent")
	press := flag.Duration("press", 3*time.Second, "Press the button after this delay (0 disables)")
	ping := flag.Duration("ping", 10*time.Second, "Ping interval")
	flag.Parse()

	log.Init("info")
	logger := log.Component("panic-sim")

	url := fmt.Sprintf("%s/ws/device/%s", *server, *id)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		logger.Error("dial failed", "url", url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("connected", "url", url)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				logger.Warn("connection closed", "error", err)
				return
			}
			printMessage(data)
		}
	}()

	send := func(msg *protocol.Message, err error) {
		if err != nil {
			logger.Error("encode", "error", err)
			return
		}
		data, err := msg.Bytes()
		if err != nil {
			logger.Error("encode", "error", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Error("send", "type", msg.Type, "error", err)
			cancel()
		}
	}

	send(protocol.NewLocationMessage(geo.Position{
		Lat:       *lat,
		Lng:       *lng,
		Accuracy:  *accuracy,
		Timestamp: time.Now(),
	}))

	var pressC <-chan time.Time
	if *press > 0 {
		pressC = time.After(*press)
	}
	ticker := time.NewTicker(*ping)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-pressC:
			logger.Info("button pressed", "battery", *battery)
			send(protocol.NewBLETriggerMessage("main", *battery))
		case <-ticker.C:
			seq++
			send(protocol.NewPingMessage(fmt.Sprintf("sim-%d", seq)))
		}
	}
}

func printMessage(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		fmt.Printf("⚠️  unparseable message: %s\n", data)
		return
	}

	switch msg.Type {
	case protocol.TypeSiren:
		if cmd, err := msg.GetSirenCommand(); err == nil {
			fmt.Printf("🚨 SIREN for %s\n", time.Duration(cmd.DurationMs)*time.Millisecond)
		}
	case protocol.TypeRecord:
		if cmd, err := msg.GetRecordCommand(); err == nil {
			fmt.Printf("🔴 RECORD alert=%s source=%s\n", cmd.AlertID, cmd.Source)
		}
	case protocol.TypePong:
		if pong, err := msg.GetPongData(); err == nil {
			fmt.Printf("🏓 pong %s\n", pong.ID)
		}
	default:
		fmt.Printf("📨 %s: %s\n", msg.Type, msg.Data)
	}
}
