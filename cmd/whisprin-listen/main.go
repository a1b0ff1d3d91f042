package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// whisprin-listen - status WebSocket debug client
// ============================================================================
// Connects to a running whisprin daemon's status WebSocket and prints every
// status change as it arrives. Optionally sends a single control command
// over the same connection first.
//
// Usage:
//   whisprin-listen
//   whisprin-listen -ws ws://127.0.0.1:3124/ws
//   whisprin-listen -cmd disable
//   whisprin-listen -cmd "offset -6"
// ============================================================================

// statusData mirrors the daemon's snapshot payload.
type statusData struct {
	Enabled        bool    `json:"enabled"`
	ActiveProvider string  `json:"active_provider"`
	OffsetDb       float64 `json:"offset_db"`
	Playing        bool    `json:"playing"`
	LastPressure   float64 `json:"last_pressure"`
}

type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type actionEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func main() {
	var (
		wsURL   = flag.String("ws", "ws://127.0.0.1:3124/ws", "Whisprin status websocket URL")
		command = flag.String("cmd", "", "Send a control command first: enable | disable | \"offset <db>\" | status")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(20 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	if *command != "" {
		if err := sendControl(conn, &writeMu, *command); err != nil {
			log.Fatalf("send command: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var last *statusData
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			last = handleFrame(message, last)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleFrame decodes one status envelope and prints only what changed.
func handleFrame(message []byte, last *statusData) *statusData {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return last
	}

	switch env.Type {
	case "status_init", "status":
		var s statusData
		if err := json.Unmarshal(env.Data, &s); err != nil {
			fmt.Printf("[%s] %s\n", env.Type, string(env.Data))
			return last
		}
		printChanges(env.Type, last, &s)
		return &s

	default:
		pretty, _ := json.MarshalIndent(env, "", "  ")
		fmt.Printf("[FRAME]\n%s\n\n", string(pretty))
		return last
	}
}

func printChanges(kind string, last, s *statusData) {
	if kind == "status_init" || last == nil {
		fmt.Printf("[INIT] enabled=%v provider=%s offset=%.1fdB playing=%v pressure=%.3f\n",
			s.Enabled, s.ActiveProvider, s.OffsetDb, s.Playing, s.LastPressure)
		return
	}

	if s.Enabled != last.Enabled {
		state := "ENABLED"
		if !s.Enabled {
			state = "DISABLED"
		}
		fmt.Printf("[GATE] %s\n", state)
	}
	if s.Playing != last.Playing {
		state := "PLAYING"
		if !s.Playing {
			state = "STOPPED"
		}
		fmt.Printf("[AUDIO] %s\n", state)
	}
	if s.OffsetDb != last.OffsetDb {
		fmt.Printf("[OFFSET] %.1f dB\n", s.OffsetDb)
	}
	if s.LastPressure != last.LastPressure {
		fmt.Printf("[PRESSURE] %.3f\n", s.LastPressure)
	}
}

// sendControl sends one control action over the websocket.
func sendControl(conn *websocket.Conn, writeMu *sync.Mutex, command string) error {
	var env actionEnvelope

	args := splitCommand(command)
	switch args[0] {
	case "enable", "disable", "status":
		env.Type = args[0]
	case "offset":
		if len(args) < 2 {
			return fmt.Errorf("offset requires a dB value")
		}
		db, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid dB value %q", args[1])
		}
		env.Type = "set_volume_offset"
		env.Data = map[string]float64{"db": db}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func splitCommand(command string) []string {
	var out []string
	field := ""
	for _, r := range command {
		if r == ' ' || r == '\t' {
			if field != "" {
				out = append(out, field)
				field = ""
			}
			continue
		}
		field += string(r)
	}
	if field != "" {
		out = append(out, field)
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}
