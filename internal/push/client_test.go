package push

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
)

type fakeBackend struct {
	mu    sync.Mutex
	sent  []Message
	fail  map[string]error
	calls int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Send(ctx context.Context, msg Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.fail[msg.Token]; ok {
		return "", err
	}
	f.sent = append(f.sent, msg)
	return "msg-" + msg.Token + msg.Topic, nil
}

func envelope(token string) Envelope {
	return Envelope{
		Token:        token,
		Notification: Notification{Title: "Alerta", Body: "body"},
		Data:         map[string]any{"moduleId": 4},
	}
}

func TestClient_MockModeWhenUnconfigured(t *testing.T) {
	c := NewClient(Config{}, zap.NewNop())
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("unconfigured provider should not report an error: %v", err)
	}
	if !c.IsMockMode() {
		t.Fatal("expected mock mode")
	}
	if c.Provider() != ProviderMock {
		t.Errorf("expected provider mock, got %s", c.Provider())
	}
}

func TestClient_MockModeOnInitFailure(t *testing.T) {
	c := NewClient(Config{Provider: ProviderFCM}, zap.NewNop())

	err := c.Init(context.Background())
	if err == nil {
		t.Fatal("expected missing credentials error")
	}
	if !c.IsMockMode() {
		t.Fatal("init failure should switch to mock mode")
	}

	// second Init is a no-op and keeps the original outcome
	if err2 := c.Init(context.Background()); err2 != err {
		t.Errorf("expected same init error, got %v", err2)
	}
}

func TestClient_UnknownProvider(t *testing.T) {
	c := NewClient(Config{Provider: "carrier-pigeon"}, zap.NewNop())
	if err := c.Init(context.Background()); err == nil {
		t.Error("expected unknown provider error")
	}
	if !c.IsMockMode() {
		t.Error("unknown provider should fall back to mock mode")
	}
}

func TestClient_InitConcurrent(t *testing.T) {
	built := 0
	var mu sync.Mutex
	c := NewClient(Config{Provider: "fake"}, zap.NewNop())
	c.factories["fake"] = func(ctx context.Context, cfg Config, logger *zap.Logger) (Backend, error) {
		mu.Lock()
		built++
		mu.Unlock()
		return &fakeBackend{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Init(context.Background())
		}()
	}
	wg.Wait()

	if built != 1 {
		t.Errorf("backend built %d times, want 1", built)
	}
	if c.IsMockMode() {
		t.Error("client should be live")
	}
}

func TestClient_MockSendUniqueIDs(t *testing.T) {
	c := NewClientWithBackend(nil, zap.NewNop())

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		res, err := c.Send(context.Background(), envelope("device-token"))
		if err != nil {
			t.Fatalf("mock send failed: %v", err)
		}
		if !res.Success || !res.Mock {
			t.Fatalf("expected mock success, got %+v", res)
		}
		if seen[res.MessageID] {
			t.Fatalf("duplicate message id %s", res.MessageID)
		}
		seen[res.MessageID] = true
	}
}

func TestClient_SendMissingToken(t *testing.T) {
	backend := &fakeBackend{}
	c := NewClientWithBackend(backend, zap.NewNop())

	for _, token := range []string{"", "   ", TopicPrefix} {
		_, err := c.Send(context.Background(), envelope(token))
		var verr *apperr.ValidationError
		if !errors.As(err, &verr) || verr.Field != "recipientToken" {
			t.Errorf("token %q: expected recipientToken validation error, got %v", token, err)
		}
	}
	if backend.calls != 0 {
		t.Errorf("backend should not be called, got %d calls", backend.calls)
	}
}

func TestClient_SendTopicAndDevice(t *testing.T) {
	backend := &fakeBackend{}
	c := NewClientWithBackend(backend, zap.NewNop())

	if _, err := c.Send(context.Background(), envelope("/topics/farm-3")); err != nil {
		t.Fatalf("topic send failed: %v", err)
	}
	if _, err := c.Send(context.Background(), envelope("device-1")); err != nil {
		t.Fatalf("device send failed: %v", err)
	}

	if backend.sent[0].Topic != "farm-3" || backend.sent[0].Token != "" {
		t.Errorf("expected topic message, got %+v", backend.sent[0])
	}
	if backend.sent[1].Token != "device-1" || backend.sent[1].Topic != "" {
		t.Errorf("expected device message, got %+v", backend.sent[1])
	}
	if backend.sent[1].Data["moduleId"] != "4" {
		t.Errorf("data should be stringified, got %q", backend.sent[1].Data["moduleId"])
	}
}

func TestClient_SendTransportError(t *testing.T) {
	backend := &fakeBackend{fail: map[string]error{
		"stale": newTransportError(CodeUnregistered, errors.New("requested entity was not found")),
		"boom":  errors.New("connection reset"),
	}}
	c := NewClientWithBackend(backend, zap.NewNop())

	res, err := c.Send(context.Background(), envelope("stale"))
	if !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if res.Success || res.Code != CodeUnregistered {
		t.Errorf("unexpected result %+v", res)
	}

	res, err = c.Send(context.Background(), envelope("boom"))
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Code != CodeUnknown {
		t.Fatalf("expected unknown transport error, got %v", err)
	}
	if res.Code != CodeUnknown {
		t.Errorf("expected unknown code, got %s", res.Code)
	}
}

func TestClient_SendBatchTooLarge(t *testing.T) {
	backend := &fakeBackend{}
	c := NewClientWithBackend(backend, zap.NewNop())

	envs := make([]Envelope, MaxBatchSize+1)
	for i := range envs {
		envs[i] = envelope("device")
	}

	_, err := c.SendBatch(context.Background(), envs)
	if !errors.Is(err, apperr.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if backend.calls != 0 {
		t.Errorf("no send should be attempted, got %d calls", backend.calls)
	}
}

func TestClient_SendBatchMaxSizeAllowed(t *testing.T) {
	c := NewClientWithBackend(nil, zap.NewNop())

	envs := make([]Envelope, MaxBatchSize)
	for i := range envs {
		envs[i] = envelope("device")
	}

	res, err := c.SendBatch(context.Background(), envs)
	if err != nil {
		t.Fatalf("batch of %d should be accepted: %v", MaxBatchSize, err)
	}
	if res.SuccessCount != MaxBatchSize || !res.Success {
		t.Errorf("unexpected batch result: success=%d failure=%d", res.SuccessCount, res.FailureCount)
	}
}

func TestClient_SendBatchPartialFailure(t *testing.T) {
	backend := &fakeBackend{fail: map[string]error{"bad": errors.New("rejected")}}
	c := NewClientWithBackend(backend, zap.NewNop())

	res, err := c.SendBatch(context.Background(), []Envelope{
		envelope("good"),
		envelope(""),
		envelope("bad"),
		envelope("also-good"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.SuccessCount != 2 || res.FailureCount != 2 {
		t.Errorf("expected 2/2, got %d/%d", res.SuccessCount, res.FailureCount)
	}
	if res.Success {
		t.Error("batch with failures should not report success")
	}
	if res.Responses[1].Code != CodeInvalidRecipient {
		t.Errorf("missing token response should be invalid-recipient, got %s", res.Responses[1].Code)
	}
	if !res.Responses[3].Success || res.Responses[3].MessageID != "msg-also-good" {
		t.Errorf("responses out of order: %+v", res.Responses[3])
	}
}

func TestClient_SendBatchEmpty(t *testing.T) {
	c := NewClientWithBackend(&fakeBackend{}, zap.NewNop())

	res, err := c.SendBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SuccessCount != 0 || res.FailureCount != 0 || !res.Success {
		t.Errorf("unexpected empty batch result %+v", res)
	}
}
