package middleware

import (
	"WeaponGuard/pkg/log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const maxLoggedBody = 2048

type loggingMiddleware struct {
	logger *logrus.Logger
}

func newLoggingMiddleware(logger *logrus.Logger) *loggingMiddleware {
	return &loggingMiddleware{
		logger: logger,
	}
}

func (m *loggingMiddleware) handler(c *fiber.Ctx) error {
	start := time.Now()

	requestID, ok := c.Locals(RequestIDKey).(string)
	if !ok || requestID == "" {
		requestID = "unknown"
	}

	c.Locals(log.RequestIDKey, requestID)

	err := c.Next()

	latency := time.Since(start)
	status := c.Response().StatusCode()

	logFields := log.Fields{
		"request_id":    requestID,
		"method":        c.Method(),
		"path":          c.Path(),
		"status":        status,
		"latency_ms":    latency.Milliseconds(),
		"ip":            c.IP(),
		"host":          c.Hostname(),
		"user_agent":    c.Get(fiber.HeaderUserAgent),
		"response_size": len(c.Response().Body()),
	}

	if body := c.Request().Body(); len(body) > 0 {
		logFields["request_body"] = describeRequestBody(c.Get(fiber.HeaderContentType), body)
	}

	entry := m.logger.WithFields(logFields)
	switch {
	case status >= fiber.StatusInternalServerError:
		entry.Error("Server error")
	case status >= fiber.StatusBadRequest:
		entry.Warn("Client error")
	default:
		entry.Info("Success")
	}

	return err
}

// describeRequestBody keeps image uploads out of the access log.
func describeRequestBody(contentType string, body []byte) string {
	switch {
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		return "[multipart body]"
	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		return sanitizeRequestBody(body)
	default:
		return "[non-JSON body]"
	}
}

func sanitizeRequestBody(body []byte) string {
	var jsonBody map[string]interface{}
	if err := jsoniter.Unmarshal(body, &jsonBody); err != nil {
		return "[non-JSON body]"
	}

	sensitiveFields := []string{
		"password", "token", "secret", "key", "auth",
		"credential", "authorization", "image", "file",
	}

	for _, field := range sensitiveFields {
		if _, exists := jsonBody[field]; exists {
			jsonBody[field] = "[SECRET]"
		}
	}

	sanitized, err := jsoniter.Marshal(jsonBody)
	if err != nil {
		return "[sanitization-failed]"
	}

	if len(sanitized) > maxLoggedBody {
		return string(sanitized[:maxLoggedBody]) + "...[truncated]"
	}
	return string(sanitized)
}
