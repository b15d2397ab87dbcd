package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/hookrelay/internal/dispatch"
	"github.com/nextlevelbuilder/hookrelay/internal/events"
	"github.com/nextlevelbuilder/hookrelay/internal/mention"
)

const testSecret = "s3cret"

const prOpened = `{
  "action": "opened",
  "number": 7,
  "pull_request": {"number": 7, "title": "Fix bug", "user": {"login": "octocat"},
                   "html_url": "https://github.com/acme/app/pull/7"},
  "repository": {"full_name": "acme/app"}
}`

const reviewRequested = `{
  "action": "review_requested",
  "number": 7,
  "pull_request": {"number": 7, "title": "Fix bug", "user": {"login": "octocat"}},
  "requested_reviewer": {"login": "jacqu3sk"},
  "sender": {"login": "octocat"},
  "repository": {"full_name": "acme/app"}
}`

type fakeQueue struct {
	mu   sync.Mutex
	msgs []dispatch.Message
	err  error
}

func (q *fakeQueue) Enqueue(m dispatch.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, m)
	return nil
}

func newTestHandler(t *testing.T, q *fakeQueue, secret string) *Handler {
	t.Helper()
	dir, err := mention.NewDirectory(map[string]string{"jacqu3sk": "<@123456789>"})
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	c := events.NewClassifier(events.Routes{PullRequest: "pr", ReviewRequested: "review", WorkflowRun: "ci"}, dir)
	return NewHandler(Options{Secret: secret, Classifier: c, Queue: q})
}

func newRequest(event, delivery, body, secret string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/github-webhook", strings.NewReader(body))
	if event != "" {
		r.Header.Set(eventHeader, event)
	}
	if delivery != "" {
		r.Header.Set(deliveryHeader, delivery)
	}
	if secret != "" {
		r.Header.Set(SignatureHeader, SignatureValue([]byte(secret), []byte(body)))
	}
	return r
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHandler_QueuesPullRequest(t *testing.T) {
	q := &fakeQueue{}
	h := newTestHandler(t, q, testSecret)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("pull_request", "72d3162e-cc78-11e3-81ab-4c9367dc0958", prOpened, testSecret))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp.Status != "queued" || resp.Channel != "pr" {
		t.Errorf("response = %+v", resp)
	}
	if len(q.msgs) != 1 {
		t.Fatalf("queued %d messages", len(q.msgs))
	}
	m := q.msgs[0]
	if !strings.Contains(m.Text, "opened") || !strings.Contains(m.Text, "Fix bug") {
		t.Errorf("text = %q", m.Text)
	}
	if m.ID.String() != "72d3162e-cc78-11e3-81ab-4c9367dc0958" {
		t.Errorf("message ID = %s, want delivery ID", m.ID)
	}
}

func TestHandler_ReviewMentions(t *testing.T) {
	q := &fakeQueue{}
	h := newTestHandler(t, q, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("pull_request", "d1", reviewRequested, ""))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(q.msgs) != 1 || q.msgs[0].Channel != "review" {
		t.Fatalf("msgs = %+v", q.msgs)
	}
	if got := q.msgs[0].Mentions; len(got) != 1 || got[0] != "<@123456789>" {
		t.Errorf("mentions = %v", got)
	}
}

func TestHandler_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  func() *http.Request
		want int
	}{
		{"wrong method", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/github-webhook", nil)
		}, http.StatusMethodNotAllowed},
		{"bad signature", func() *http.Request {
			return newRequest("pull_request", "d", prOpened, "other-secret")
		}, http.StatusUnauthorized},
		{"missing signature", func() *http.Request {
			return newRequest("pull_request", "d", prOpened, "")
		}, http.StatusUnauthorized},
		{"missing event header", func() *http.Request {
			return newRequest("", "d", prOpened, testSecret)
		}, http.StatusBadRequest},
		{"empty body", func() *http.Request {
			return newRequest("pull_request", "d", "", "")
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{}
			h := newTestHandler(t, q, testSecret)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req())
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if len(q.msgs) != 0 {
				t.Errorf("rejected request queued %d messages", len(q.msgs))
			}
		})
	}
}

func TestHandler_TooLarge(t *testing.T) {
	h := newTestHandler(t, &fakeQueue{}, "")
	body := bytes.Repeat([]byte("a"), MaxBodySize+1)
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	r.Header.Set(eventHeader, "pull_request")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandler_PingAndIgnored(t *testing.T) {
	q := &fakeQueue{}
	h := newTestHandler(t, q, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("ping", "p1", `{"zen":"Keep it logically awesome."}`, ""))
	if rec.Code != http.StatusOK || decode(t, rec).Status != "pong" {
		t.Errorf("ping: %d %s", rec.Code, rec.Body.String())
	}

	for _, tc := range []struct{ event, body string }{
		{"push", `{"ref":"refs/heads/main"}`},
		{"pull_request", `{"action":"labeled"}`},
		{"pull_request", `not json`},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newRequest(tc.event, "", tc.body, ""))
		if rec.Code != http.StatusAccepted || decode(t, rec).Status != "ignored" {
			t.Errorf("%s %s: %d %s", tc.event, tc.body, rec.Code, rec.Body.String())
		}
	}
	if len(q.msgs) != 0 {
		t.Errorf("queued %d messages", len(q.msgs))
	}
}

func TestHandler_DuplicateDelivery(t *testing.T) {
	q := &fakeQueue{}
	h := newTestHandler(t, q, "")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	for i, want := range []string{"queued", "duplicate"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newRequest("pull_request", "same", prOpened, ""))
		if got := decode(t, rec).Status; got != want {
			t.Errorf("delivery %d: status %q, want %q", i, got, want)
		}
	}

	now = now.Add(deduplicationWindow + time.Minute)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("pull_request", "same", prOpened, ""))
	if got := decode(t, rec).Status; got != "queued" {
		t.Errorf("after window: status %q", got)
	}
	if len(q.msgs) != 2 {
		t.Errorf("queued %d, want 2", len(q.msgs))
	}
}

func TestHandler_QueueUnavailable(t *testing.T) {
	q := &fakeQueue{err: dispatch.ErrQueueClosed}
	h := newTestHandler(t, q, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("pull_request", "d1", prOpened, ""))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}

	// The failed delivery is not remembered, so a redelivery goes through.
	q.err = nil
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("pull_request", "d1", prOpened, ""))
	if rec.Code != http.StatusAccepted {
		t.Errorf("redelivery status = %d", rec.Code)
	}
}

func TestHandler_RateLimited(t *testing.T) {
	q := &fakeQueue{}
	dir, _ := mention.NewDirectory(nil)
	h := NewHandler(Options{
		Classifier: events.NewClassifier(events.Routes{PullRequest: "pr"}, dir),
		Queue:      q,
		Limiter:    NewRateLimiter(2),
	})

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newRequest("pull_request", fmt.Sprint(i), prOpened, ""))
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	good := SignatureValue([]byte(testSecret), body)
	if err := VerifySignature([]byte(testSecret), body, good); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	for name, sig := range map[string]string{
		"empty":     "",
		"sha1":      "sha1=abcdef",
		"not hex":   "sha256=zz",
		"truncated": good[:len(good)-2],
		"other key": SignatureValue([]byte("nope"), body),
	} {
		if err := VerifySignature([]byte(testSecret), body, sig); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	if !(*RateLimiter)(nil).Allow("x") || NewRateLimiter(0) != nil {
		t.Fatal("disabled limiter must allow everything")
	}

	rl := NewRateLimiter(3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d rejected", i)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("4th request allowed")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("other key limited")
	}
	now = now.Add(rateLimitWindow)
	if !rl.Allow("1.2.3.4") {
		t.Error("new window still limited")
	}

	for i := 0; i < maxTrackedKeys+10; i++ {
		rl.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}
	if n := rl.tracked(); n > maxTrackedKeys {
		t.Errorf("tracked = %d, exceeds cap", n)
	}
}
