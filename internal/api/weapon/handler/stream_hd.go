package weaponHandler

import (
	"WeaponGuard/internal/api/weapon"
	contextPkg "WeaponGuard/pkg/context"
	"WeaponGuard/pkg/log"
	"WeaponGuard/pkg/response"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
)

const (
	streamReadTimeout  = 60 * time.Second
	streamWriteTimeout = 10 * time.Second
)

// handleStream answers every binary frame with a detection report. Frames are
// neither cached nor recorded. Errors are reported on the socket without
// closing it.
func (h *WeaponHandler) handleStream(c *websocket.Conn) {
	requestID, ok := c.Locals("X-Request-ID").(string)
	if !ok || requestID == "" {
		requestID = "unknown"
	}

	fields := log.Fields{"request_id": requestID}
	h.log.WithFields(fields).Info("Detection stream client connected")
	defer h.log.WithFields(fields).Info("Detection stream client disconnected")

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.WithFields(fields).Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	frame := 0
	for {
		if err := c.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
			h.log.WithFields(fields).Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.WithFields(fields).Errorf("Detection stream error: %v", err)
			}
			break
		}

		if messageType != websocket.BinaryMessage {
			h.log.WithFields(fields).Warnf("Received unexpected message type: %d", messageType)
			continue
		}
		frame++

		var reply interface{}
		result, err := h.detectFrame(requestID, frame, message)
		if err != nil {
			h.log.WithFields(log.Fields{
				"request_id": requestID,
				"frame":      frame,
				"error":      err.Error(),
			}).Warn("Error processing stream frame")
			reply = weapon.StreamErrorResponse{Error: streamErrorMessage(err)}
		} else {
			reply = result
		}

		if err := c.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			h.log.WithFields(fields).Errorf("Error setting write deadline: %v", err)
			break
		}

		if err := c.WriteJSON(reply); err != nil {
			h.log.WithFields(fields).Errorf("Error writing JSON response: %v", err)
			break
		}

		if err := c.SetWriteDeadline(time.Time{}); err != nil {
			h.log.WithFields(fields).Errorf("Error resetting write deadline: %v", err)
			break
		}
	}
}

func (h *WeaponHandler) detectFrame(requestID string, frame int, data []byte) (*weapon.DetectResponse, error) {
	c, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), requestID), h.detectTimeout)
	defer cancel()

	return h.weaponService.Detect(c, weapon.DetectRequest{
		Filename: "frame",
		Data:     data,
		Source:   weapon.SourceStream,
	})
}

// streamErrorMessage hides internal causes of unexpected errors.
func streamErrorMessage(err error) string {
	var respErr *response.Error
	if errors.As(err, &respErr) {
		return respErr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "detection timed out"
	}
	return "An unexpected error occurred"
}
