package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

// 16kHz mono PCM16, one second.
const bytesPerSecond = 16000 * 2

type Message struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Role     string `json:"role,omitempty"`
	Text     string `json:"text,omitempty"`
	Metadata any    `json:"metadata,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := os.Getenv("ECHO_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	token := os.Getenv("ECHO_TOKEN")
	maxSeconds, _ := strconv.Atoi(os.Getenv("ECHO_MAX_SECONDS"))

	http.HandleFunc("/voice/", func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.URL.Query().Get("token") != token {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		sessionID := strings.TrimPrefix(r.URL.Path, "/voice/")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			fmt.Printf("[ECHO] Upgrade failed: %v\n", err)
			return
		}
		fmt.Printf("[ECHO] Session %q connected\n", sessionID)
		serve(conn, sessionID, maxSeconds)
	})

	fmt.Printf("[ECHO] Listening on %s\n", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func serve(conn *websocket.Conn, sessionID string, maxSeconds int) {
	defer conn.Close()

	var pending []byte
	seconds := 0

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("[ECHO] Session %q closed: %v\n", sessionID, err)
			return
		}

		if mt == websocket.TextMessage {
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				fmt.Printf("[ECHO] Unmarshal error: %v\n", err)
				continue
			}
			if msg.Type == "session_start" {
				send(conn, Message{Type: "transcript", Role: "assistant", Text: "Hi, I'm the echo agent. Say something and I'll play it back."})
				send(conn, Message{Type: "metadata", Metadata: map[string]any{"agent": "echo", "session_id": sessionID}})
			} else {
				fmt.Printf("[ECHO] Ignoring message type: %s\n", msg.Type)
			}
			continue
		}

		pending = append(pending, data...)
		for len(pending) >= bytesPerSecond {
			chunk := pending[:bytesPerSecond]
			pending = pending[bytesPerSecond:]
			seconds++

			send(conn, Message{Type: "transcript", Role: "user", Text: fmt.Sprintf("(%ds of audio)", seconds)})
			send(conn, Message{
				Type:     "audio",
				Data:     base64.StdEncoding.EncodeToString(chunk),
				MimeType: "audio/pcm;rate=16000",
			})

			if maxSeconds > 0 && seconds >= maxSeconds {
				fmt.Printf("[ECHO] Session %q reached %ds, ending\n", sessionID, seconds)
				send(conn, Message{Type: "session_end"})
				return
			}
		}
	}
}

func send(conn *websocket.Conn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		fmt.Printf("[ECHO] Marshal error: %v\n", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		fmt.Printf("[ECHO] WriteMessage error: %v\n", err)
	}
}
