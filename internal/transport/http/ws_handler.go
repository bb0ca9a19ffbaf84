package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"exam-practice-service/internal/app"
	"exam-practice-service/internal/domain"
	"github.com/gorilla/websocket"
)

const resumeTimeout = 2 * time.Minute

type WSHandler struct {
	service  *app.ExamService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ExamService) *WSHandler {
	return &WSHandler{
		service: service,
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

type selectPayload struct {
	Option domain.Option `json:"option"`
}

type jumpPayload struct {
	Index int `json:"index"`
}

type resumePayload struct {
	Accept bool `json:"accept"`
}

type resumeOffer struct {
	Category      domain.Category `json:"category"`
	CurrentIndex  int             `json:"currentIndex"`
	Answered      int             `json:"answered"`
	Score         int             `json:"score"`
	TimeRemaining int             `json:"timeRemaining"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type answerResult struct {
	Index   int  `json:"index"`
	Correct bool `json:"correct"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// ServeWS upgrades HTTP requests to websockets and runs one exam attempt over
// the connection. Closing the connection disposes the attempt; the last
// autosave stays resumable.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	category := r.URL.Query().Get("category")
	if userID == "" || category == "" {
		http.Error(w, "missing userId or category", http.StatusBadRequest)
		return
	}
	if _, err := domain.ParseCategory(category); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The connection is not shared yet, so the prompt may read and write it
	// directly while the controller loads.
	controller, err := h.service.Start(ctx, userID, category, connPrompt{conn: conn})
	if err != nil {
		if controller != nil {
			_ = conn.WriteJSON(outboundMessage[app.View]{Type: "view", Payload: controller.View()})
		}
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer controller.Dispose()

	updates, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "view", Payload: view}:
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
		if reply, ok := h.dispatch(ctx, controller, inbound); ok {
			send <- reply
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// dispatch applies one client command. Views arrive on the subscription, so
// only answers and errors produce a direct reply.
func (h *WSHandler) dispatch(ctx context.Context, c *app.Controller, inbound inboundMessage) (outboundMessage[any], bool) {
	var err error
	switch inbound.Type {
	case "select":
		var payload selectPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}}, true
		}
		err = c.SelectOption(ctx, payload.Option)
	case "commit":
		correct, cerr := c.CommitAnswer(ctx)
		if cerr == nil {
			return outboundMessage[any]{Type: "answerResult", Payload: answerResult{Index: c.View().Index, Correct: correct}}, true
		}
		err = cerr
	case "next":
		err = c.Next(ctx)
	case "jump":
		var payload jumpPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid jump payload"}}, true
		}
		err = c.JumpTo(ctx, payload.Index)
	case "review":
		err = c.OpenReview(ctx)
	case "submit":
		err = c.Submit(ctx)
	case "sync":
		view, serr := c.Sync(ctx)
		if serr != nil {
			return errorMessage(serr), true
		}
		return outboundMessage[any]{Type: "view", Payload: view}, true
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}, true
	}
	if err == nil {
		return outboundMessage[any]{}, false
	}
	var fe *domain.FinalizationError
	if errors.As(err, &fe) {
		log.Printf("exam finished with finalization errors: %v", fe)
	}
	return errorMessage(err), true
}

// connPrompt asks the client whether to resume a stored attempt.
type connPrompt struct {
	conn *websocket.Conn
}

func (p connPrompt) ConfirmResume(ctx context.Context, state domain.SessionState) (bool, error) {
	offer := resumeOffer{
		Category:      state.CategoryID,
		CurrentIndex:  state.CurrentIndex,
		Answered:      len(state.Answers),
		Score:         state.Score,
		TimeRemaining: state.TimeRemaining,
		UpdatedAt:     state.UpdatedAt,
	}
	if err := p.conn.WriteJSON(outboundMessage[resumeOffer]{Type: "resumeOffer", Payload: offer}); err != nil {
		return false, err
	}

	deadline := time.Now().Add(resumeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = p.conn.SetReadDeadline(deadline)
	defer p.conn.SetReadDeadline(time.Time{})

	for {
		var inbound inboundMessage
		if err := p.conn.ReadJSON(&inbound); err != nil {
			return false, err
		}
		if inbound.Type != "resume" {
			_ = p.conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "answer the resume offer first"}})
			continue
		}
		var payload resumePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return false, err
		}
		return payload.Accept, nil
	}
}
