package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(cfg Config) *fiber.App {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := New(logger, cfg)

	app := fiber.New()
	app.Use(m.NewRequestIDMiddleware())
	app.Use(m.NewLoggingMiddleware())
	app.Post("/detect", m.NewRateLimiter, func(c *fiber.Ctx) error {
		return c.SendString(m.GetRequestID(c))
	})
	return app
}

func TestRequestIDGenerated(t *testing.T) {
	app := newTestApp(Config{})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/detect", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	requestID := resp.Header.Get(RequestIDKey)
	_, parseErr := ulid.Parse(requestID)
	assert.NoError(t, parseErr)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, requestID, string(body))
}

func TestRequestIDPropagated(t *testing.T) {
	app := newTestApp(Config{})

	req := httptest.NewRequest(http.MethodPost, "/detect", nil)
	req.Header.Set(RequestIDKey, "client-supplied")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "client-supplied", resp.Header.Get(RequestIDKey))
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	app := newTestApp(Config{RateLimitRPS: 0.001, RateLimitBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/detect", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
		resp.Body.Close()
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestDescribeRequestBody(t *testing.T) {
	assert.Equal(t, "[multipart body]", describeRequestBody("multipart/form-data; boundary=x", []byte("--x")))
	assert.Equal(t, "[non-JSON body]", describeRequestBody("image/jpeg", []byte{0xff, 0xd8}))
	assert.Equal(t, `{"password":"[SECRET]"}`, describeRequestBody("application/json", []byte(`{"password":"hunter2"}`)))
}
