package model

import (
	"WeaponGuard/internal/entity"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type remoteInfo struct {
	ModelType string   `json:"model_type"`
	Names     []string `json:"names"`
}

type remoteRequest struct {
	Type string `json:"type"`
}

type remoteReply struct {
	Detections [][]float64 `json:"detections"`
	Error      string      `json:"error,omitempty"`
}

// remoteModel talks to an inference service over a websocket. Each binary
// frame is a JPEG image; each reply is a JSON list of raw boxes.
type remoteModel struct {
	url          string
	conn         *websocket.Conn
	mu           sync.Mutex
	readTimeout  time.Duration
	writeTimeout time.Duration
	renderer     *renderer
	log          *logrus.Logger
}

func newRemoteModel(url string, palette map[string][3]uint8, log *logrus.Logger) (*remoteModel, remoteInfo, error) {
	if url == "" {
		return nil, remoteInfo{}, fmt.Errorf("remote model URL not configured")
	}

	m := &remoteModel{
		url:          url,
		readTimeout:  30 * time.Second,
		writeTimeout: 5 * time.Second,
		log:          log,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.reconnect(); err != nil {
		return nil, remoteInfo{}, err
	}

	info, err := m.fetchInfo()
	if err != nil {
		m.closeConn()
		return nil, remoteInfo{}, err
	}
	if len(info.Names) == 0 {
		m.closeConn()
		return nil, remoteInfo{}, fmt.Errorf("remote model at %s reported no class names", url)
	}

	m.renderer = newRenderer(info.Names, palette)
	return m, info, nil
}

// reconnect must be called with mu held.
func (m *remoteModel) reconnect() error {
	m.closeConn()

	m.log.WithField("url", m.url).Info("Connecting to remote detection model")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(m.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", m.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(m.writeTimeout))
		if err != nil {
			m.log.WithField("error", err.Error()).Warn("Error sending pong to remote model")
		}
		return nil
	})

	m.conn = conn
	return nil
}

func (m *remoteModel) closeConn() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

func (m *remoteModel) fetchInfo() (remoteInfo, error) {
	var info remoteInfo

	if err := m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout)); err != nil {
		return info, err
	}
	if err := m.conn.WriteJSON(remoteRequest{Type: "info"}); err != nil {
		return info, fmt.Errorf("failed to request model info: %w", err)
	}

	if err := m.conn.SetReadDeadline(time.Now().Add(m.readTimeout)); err != nil {
		return info, err
	}
	if err := m.conn.ReadJSON(&info); err != nil {
		return info, fmt.Errorf("failed to read model info: %w", err)
	}

	return info, nil
}

func (m *remoteModel) Detect(ctx context.Context, img image.Image) ([]entity.RawDetection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		if err := m.reconnect(); err != nil {
			return nil, err
		}
	}

	readDeadline := time.Now().Add(m.readTimeout)
	boundByContext := false
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(readDeadline) {
		readDeadline = deadline
		boundByContext = true
	}

	if err := m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout)); err != nil {
		m.closeConn()
		return nil, err
	}
	if err := m.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		m.closeConn()
		return nil, fmt.Errorf("failed to send frame: %w", err)
	}

	if err := m.conn.SetReadDeadline(readDeadline); err != nil {
		m.closeConn()
		return nil, err
	}

	var reply remoteReply
	if err := m.conn.ReadJSON(&reply); err != nil {
		m.closeConn()
		var netErr net.Error
		if boundByContext && errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("failed to read detections: %w", context.DeadlineExceeded)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("failed to read detections: %w", ctxErr)
		}
		return nil, fmt.Errorf("failed to read detections: %w", err)
	}

	if reply.Error != "" {
		return nil, fmt.Errorf("remote model error: %s", reply.Error)
	}

	return parseRemoteDetections(reply.Detections)
}

func parseRemoteDetections(rows [][]float64) ([]entity.RawDetection, error) {
	detections := make([]entity.RawDetection, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("detection %d has %d fields, want 6", i, len(row))
		}
		detections = append(detections, entity.RawDetection{
			X1:         row[0],
			Y1:         row[1],
			X2:         row[2],
			Y2:         row[3],
			Confidence: row[4],
			ClassIndex: int(row[5]),
		})
	}
	return detections, nil
}

func (m *remoteModel) Render(img image.Image, detections []entity.RawDetection, labels []string) (image.Image, error) {
	return m.renderer.Draw(img, detections, labels)
}

func (m *remoteModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}

	_ = m.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(m.writeTimeout),
	)
	m.closeConn()
	return nil
}
