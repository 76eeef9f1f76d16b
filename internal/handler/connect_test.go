package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"qbsync/internal/service"
)

func newConnectRouter(queue *service.OnboardingQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := &ConnectHandler{Queue: queue}
	h.Register(r)
	return r
}

func postConnected(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/hooks/qb/connected", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConnected_Accepted(t *testing.T) {
	// Workers deliberately not started: Submit only needs the channel.
	queue := service.NewOnboardingQueue(nil, nil, nil, 1, 4)
	r := newConnectRouter(queue)

	w := postConnected(r, `{"tenant_id": 7}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d want 202, body=%s", w.Code, w.Body.String())
	}
}

func TestConnected_BadBody(t *testing.T) {
	queue := service.NewOnboardingQueue(nil, nil, nil, 1, 4)
	r := newConnectRouter(queue)

	for _, body := range []string{``, `{}`, `{"tenant_id": "seven"}`} {
		w := postConnected(r, body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d want 400", body, w.Code)
		}
	}
}

func TestConnected_QueueFull(t *testing.T) {
	queue := service.NewOnboardingQueue(nil, nil, nil, 1, 1)
	if err := queue.Submit(1); err != nil {
		t.Fatalf("fill queue: %v", err)
	}
	r := newConnectRouter(queue)

	w := postConnected(r, `{"tenant_id": 2}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d want 429, body=%s", w.Code, w.Body.String())
	}
}
