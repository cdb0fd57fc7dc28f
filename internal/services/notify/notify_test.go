package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JAY4T/kaakazini/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type memQueue struct {
	ch chan Event
}

func newMemQueue() *memQueue { return &memQueue{ch: make(chan Event, 16)} }

func (q *memQueue) Publish(_ context.Context, ev Event) error {
	q.ch <- ev
	return nil
}

func (q *memQueue) Pop(ctx context.Context, timeout time.Duration) (*Event, error) {
	select {
	case ev := <-q.ch:
		return &ev, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type sent struct {
	to, subject, body string
}

type fakeSender struct {
	mu    sync.Mutex
	fail  int
	calls int
	out   []sent
	done  chan struct{}
}

func newFakeSender(fail int) *fakeSender {
	return &fakeSender{fail: fail, done: make(chan struct{}, 16)}
}

func (f *fakeSender) record(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	defer func() { f.done <- struct{}{} }()
	if f.calls <= f.fail {
		return errors.New("provider down")
	}
	f.out = append(f.out, sent{to, subject, body})
	return nil
}

func (f *fakeSender) SendEmail(_ context.Context, toEmail, _, subject, html string) error {
	return f.record(toEmail, subject, html)
}

func (f *fakeSender) SendSMS(_ context.Context, to, message string) error {
	return f.record(to, "", message)
}

func (f *fakeSender) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i+1)
		}
	}
}

func newTestWorker(q Source, email, sms *fakeSender, maxAttempts int) *Worker {
	w := NewWorker(q, email, sms, logging.Discard(), 1, maxAttempts, "254")
	w.PopTimeout = 10 * time.Millisecond
	w.Backoff = func(int) time.Duration { return time.Millisecond }
	return w
}

func TestWorkerDeliversEmailAndSMS(t *testing.T) {
	q := newMemQueue()
	email, sms := newFakeSender(0), newFakeSender(0)
	w := newTestWorker(q, email, sms, 3)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	require.NoError(t, q.Publish(ctx, Event{
		Type: TypeWelcome, Name: "Jane", Email: "jane@example.com", Phone: "0712345678",
		Data: map[string]string{"role": "craftsman"},
	}))
	email.wait(t, 1)
	sms.wait(t, 1)
	cancel()
	w.Wait()

	require.Len(t, email.out, 1)
	assert.Equal(t, "jane@example.com", email.out[0].to)
	assert.Equal(t, "Welcome to Kaakazini!", email.out[0].subject)
	assert.Contains(t, email.out[0].body, "registered as a craftsman")

	require.Len(t, sms.out, 1)
	assert.Equal(t, "+254712345678", sms.out[0].to)
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	q := newMemQueue()
	email := newFakeSender(2)
	w := newTestWorker(q, email, nil, 3)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	require.NoError(t, q.Publish(ctx, Event{Type: TypeCraftsmanApproved, Email: "c@example.com"}))
	email.wait(t, 3)
	cancel()
	w.Wait()

	assert.Equal(t, 3, email.calls)
	assert.Len(t, email.out, 1)
}

func TestWorkerRetriesOnlyFailedChannel(t *testing.T) {
	q := newMemQueue()
	email, sms := newFakeSender(0), newFakeSender(1)
	w := newTestWorker(q, email, sms, 3)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	require.NoError(t, q.Publish(ctx, Event{
		Type: TypeWelcome, Name: "Jane", Email: "jane@example.com", Phone: "0712345678",
		Data: map[string]string{"role": "client"},
	}))
	email.wait(t, 1)
	sms.wait(t, 2)
	time.Sleep(50 * time.Millisecond)
	cancel()
	w.Wait()

	assert.Equal(t, 1, email.calls)
	assert.Len(t, email.out, 1)
	assert.Equal(t, 2, sms.calls)
	assert.Len(t, sms.out, 1)
}

func TestDeliverMarksChannels(t *testing.T) {
	email, sms := newFakeSender(0), newFakeSender(1)
	w := newTestWorker(newMemQueue(), email, sms, 3)
	ev := &Event{Type: TypeWelcome, Email: "a@example.com", Phone: "0712345678"}

	assert.Error(t, w.Deliver(context.Background(), ev))
	assert.True(t, ev.EmailSent)
	assert.False(t, ev.SMSSent)

	require.NoError(t, w.Deliver(context.Background(), ev))
	assert.True(t, ev.SMSSent)
	assert.Equal(t, 1, email.calls)
	assert.Equal(t, 2, sms.calls)
}

func TestWorkerGivesUp(t *testing.T) {
	q := newMemQueue()
	email := newFakeSender(100)
	w := newTestWorker(q, email, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	require.NoError(t, q.Publish(ctx, Event{Type: TypeCraftsmanApproved, Email: "c@example.com"}))
	email.wait(t, 2)
	time.Sleep(50 * time.Millisecond)
	cancel()
	w.Wait()

	assert.Equal(t, 2, email.calls)
	assert.Empty(t, email.out)
	assert.Empty(t, q.ch)
}

func TestRender(t *testing.T) {
	msg, err := Render(Event{Type: TypeJobUpdate, Data: map[string]string{"service": "Plumbing", "status": "Assigned"}})
	require.NoError(t, err)
	assert.Equal(t, "Job update: Assigned", msg.Subject)
	assert.Contains(t, msg.HTML, "Hi User,")
	assert.Equal(t, "Kaakazini: Your Plumbing job is now Assigned.", msg.SMS)

	msg, err = Render(Event{Type: TypePasswordReset, Name: "Ann", Data: map[string]string{"link": "https://x/reset"}})
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, `href="https://x/reset"`)
	assert.Empty(t, msg.SMS)

	_, err = Render(Event{Type: "nope"})
	assert.Error(t, err)
}

func TestRenderEscapesUserText(t *testing.T) {
	msg, err := Render(Event{Type: TypeCraftsmanApproved, Name: `<a href="https://evil.example/login">Click to verify</a>`})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<a ")
	assert.Contains(t, msg.HTML, "Hi &lt;a href=")
	assert.Contains(t, msg.HTML, "<b>Kaakazini</b>")

	msg, err = Render(Event{Type: TypeJobUpdate, Name: "Ann", Data: map[string]string{"service": "<script>x</script>", "status": "Paid"}})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
	assert.Equal(t, "Kaakazini: Your <script>x</script> job is now Paid.", msg.SMS)
}

func TestBrevoSendEmail(t *testing.T) {
	var got brevoEmail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	b := NewBrevo("k", "no-reply@kaakazini.com", "Kaakazini")
	b.BaseURL = srv.URL
	require.NoError(t, b.SendEmail(context.Background(), "a@b.co", "A", "Hello", "<p>hi</p>"))

	assert.Equal(t, "no-reply@kaakazini.com", got.Sender.Email)
	assert.Equal(t, []brevoContact{{Email: "a@b.co", Name: "A"}}, got.To)
	assert.Equal(t, "<p>hi</p>", got.HTMLContent)

	assert.Error(t, NewBrevo("", "x", "y").SendEmail(context.Background(), "a@b.co", "A", "s", "h"))
}

func TestBrevoErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized"}`))
	}))
	defer srv.Close()

	b := NewBrevo("k", "x@y.z", "K")
	b.BaseURL = srv.URL
	err := b.SendEmail(context.Background(), "a@b.co", "A", "s", "h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestAfricasTalkingSendSMS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "key", r.Header.Get("apiKey"))
		assert.Equal(t, "sandbox", r.PostForm.Get("username"))
		assert.Equal(t, "+254712345678", r.PostForm.Get("to"))
		status := "Success"
		if r.PostForm.Get("message") == "fail" {
			status = "InvalidPhoneNumber"
		}
		_, _ = w.Write([]byte(`{"SMSMessageData":{"Message":"Sent","Recipients":[{"number":"+254712345678","status":"` + status + `"}]}}`))
	}))
	defer srv.Close()

	at := NewAfricasTalking("sandbox", "key", "")
	assert.Equal(t, atSandboxURL, at.BaseURL)
	at.BaseURL = srv.URL

	assert.NoError(t, at.SendSMS(context.Background(), "+254712345678", "hello"))
	assert.Error(t, at.SendSMS(context.Background(), "+254712345678", "fail"))
}

func TestDropperLogsEachEvent(t *testing.T) {
	log, hook := test.NewNullLogger()
	var p Publisher = Dropper{Log: log}

	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeWelcome, Email: "a@example.com"}))
	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeJobUpdate, Phone: "0712345678"}))

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, TypeJobUpdate, hook.LastEntry().Data["type"])
	assert.Equal(t, true, hook.LastEntry().Data["phone"])
}
