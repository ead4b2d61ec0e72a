package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"

	"contest-settlement/internal/app"
	"contest-settlement/internal/domain"
)

type WSHandler struct {
	service  *app.ContestService
	log      slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ContestService, log slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitPayload struct {
	Answers    []domain.SubmittedAnswer `json:"answers"`
	FinishedAt time.Time                `json:"finishedAt"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS streams standings for one contest. A connection that names a
// player may also submit that player's answer sheet.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	contestID := r.URL.Query().Get("contestId")
	playerID := r.URL.Query().Get("playerId")
	if contestID == "" {
		http.Error(w, "missing contestId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	contest, err := h.service.Contest(r.Context(), contestID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	updates, cancel, err := h.service.Subscribe(r.Context(), contestID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// only the writer goroutine touches conn for writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debugf("ws write error: %v", err)
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "contest", Payload: contest}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "standings", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "submit":
			if playerID == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "connect with a playerId to submit"}}
				continue
			}
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submit payload"}}
				continue
			}
			scored, err := h.service.Submit(r.Context(), contestID, domain.PlayerSubmission{
				PlayerID:   playerID,
				Answers:    payload.Answers,
				FinishedAt: payload.FinishedAt,
			})
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "scored", Payload: newScoreResponse(scored)}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
