package assessment

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edupath/guidance-backend/internal/auth/jwt"
	"github.com/edupath/guidance-backend/internal/server"
	httperrors "github.com/edupath/guidance-backend/pkg/http/errors"
	ws "github.com/edupath/guidance-backend/pkg/http/ws"
)

// StreamHandler serves the live countdown over WebSocket so the session
// screen can render ticks without polling. Each connection carries at most
// one tick stream at a time: a new watch request cancels the previous one.
type StreamHandler struct {
	svc       *Service
	hub       *ws.Hub
	validator *jwt.Validator
	logger    zerolog.Logger

	mu      sync.Mutex
	streams map[*ws.Connection]context.CancelFunc
}

func NewStreamHandler(svc *Service, hub *ws.Hub, validator *jwt.Validator, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		svc:       svc,
		hub:       hub,
		validator: validator,
		logger:    logger.With().Str("component", "assessment_stream").Logger(),
		streams:   make(map[*ws.Connection]context.CancelFunc),
	}
}

// replaceStream cancels any tick stream already running for conn and hands
// back a context for the next one.
func (h *StreamHandler) replaceStream(parent context.Context, conn *ws.Connection) context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.streams[conn]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	h.streams[conn] = cancel
	return ctx
}

// releaseStream stops the tick stream for conn, if any.
func (h *StreamHandler) releaseStream(conn *ws.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.streams[conn]; ok {
		cancel()
		delete(h.streams, conn)
	}
}

// HandleWebSocket authenticates via the token query parameter, upgrades, and
// serves watch requests until the socket drops.
func (h *StreamHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Missing token")
		return
	}

	claims, err := h.validator.Validate(token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("stream token validation failed")
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid token")
		return
	}

	rawConn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConnection(rawConn, h.logger)
	h.hub.RegisterConnection(claims.UserID, conn)

	ctx, cancel := context.WithCancel(context.Background())
	go conn.WritePump()
	go func() {
		conn.ReadPump(func(msg ws.Message) error {
			return h.handleMessage(ctx, conn, claims.UserID, msg)
		})
		cancel()
		h.releaseStream(conn)
		h.hub.UnregisterConnection(claims.UserID, conn)
	}()
}

func (h *StreamHandler) handleMessage(ctx context.Context, conn *ws.Connection, userID string, msg ws.Message) error {
	switch msg.Type {
	case ws.TypePing:
		return conn.Send(ws.Message{Type: ws.TypePong, RequestID: msg.RequestID})

	case ws.TypeWatchAssessment:
		var payload ws.WatchAssessmentPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return h.sendError(conn, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid watch payload")
		}
		assessmentID, err := uuid.Parse(payload.AssessmentID)
		if err != nil {
			return h.sendError(conn, msg.RequestID, httperrors.ErrCodeInvalidAssessmentID, "Invalid assessment id")
		}

		view, err := h.svc.Resume(ctx, userID, assessmentID)
		if err != nil {
			return h.sendError(conn, msg.RequestID, httperrors.ErrCodeAssessmentNotFound, "Assessment not found")
		}

		ack := ws.Encode(ws.TypeWatchAck, ws.WatchAckPayload{
			AssessmentID:     assessmentID.String(),
			RemainingSeconds: view.RemainingSeconds,
			TotalSeconds:     view.Assessment.TotalSeconds,
			Expired:          view.Expired,
		})
		ack.RequestID = msg.RequestID
		if err := conn.Send(ack); err != nil {
			return err
		}

		if !view.Expired && view.Attempt == nil {
			streamCtx := h.replaceStream(ctx, conn)
			go h.streamTicks(streamCtx, conn, assessmentID, view.Assessment.TotalSeconds)
		}
		return nil

	default:
		return h.sendError(conn, msg.RequestID, httperrors.ErrCodeUnknownMessageType, "Unknown message type")
	}
}

// streamTicks pushes one tick per second until the countdown ends or the
// connection goes away.
func (h *StreamHandler) streamTicks(ctx context.Context, conn *ws.Connection, assessmentID uuid.UUID, totalSeconds int) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := h.svc.arena.Snapshot(ctx, sessionKey(assessmentID))
			if err != nil || snap == nil {
				return
			}

			if snap.Expired {
				conn.Send(ws.Encode(ws.TypeTimerExpired, ws.TimerExpiredPayload{
					AssessmentID: assessmentID.String(),
				}))
				return
			}

			if err := conn.Send(ws.Encode(ws.TypeTimerTick, ws.TimerTickPayload{
				AssessmentID:     assessmentID.String(),
				RemainingSeconds: snap.RemainingSeconds,
				TotalSeconds:     totalSeconds,
			})); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) sendError(conn *ws.Connection, requestID, code, message string) error {
	msg := ws.Encode(ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
	msg.RequestID = requestID
	return conn.Send(msg)
}
