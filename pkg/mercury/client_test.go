package mercury

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// testKey32 - ключ AES-256 в base64 (32 нулевых байта)
const testKey32 = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

var testProcessID = uuid.MustParse("e6de8dd5-4e9a-4c6b-8f3a-1234567890ab")

// keyServer - минимальный сервис ключей с burn-on-read
func keyServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	keys := map[string]string{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/keys/bind", func(w http.ResponseWriter, r *http.Request) {
		var req BindKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProcessID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		mu.Lock()
		keys[req.ProcessID] = testKey32
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(KeyBinding{KeyB64: testKey32, HMAC: Sign(req.ProcessID, secret)})
	})
	mux.HandleFunc("/api/keys/retrieve", func(w http.ResponseWriter, r *http.Request) {
		var req RetrieveKeyRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		key, ok := keys[req.ProcessID]
		delete(keys, req.ProcessID)
		mu.Unlock()
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"key_b64": key})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func statusServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConfig(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("empty config must be disabled")
	}
	if !(Config{URL: "local"}).Local() {
		t.Error(`Local() = false for "local"`)
	}
	if (Config{URL: "http://mercury:3000"}).Local() {
		t.Error("Local() = true for http url")
	}
}

func TestClient_BindRetrieve(t *testing.T) {
	srv := keyServer(t, "s3cret")
	c := NewClient(Config{URL: srv.URL + "/", ServerSecret: "s3cret"})
	ctx := context.Background()

	key, err := c.BindKey(ctx, testProcessID, "cleanup")
	if err != nil {
		t.Fatalf("BindKey() error = %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("len(key) = %d, want 32", len(key))
	}

	got, err := c.RetrieveKey(ctx, testProcessID)
	if err != nil {
		t.Fatalf("RetrieveKey() error = %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Errorf("RetrieveKey() = %x, want %x", got, key)
	}

	// второй раз ключа уже нет
	if _, err := c.RetrieveKey(ctx, testProcessID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("second RetrieveKey() error = %v, want ErrKeyNotFound", err)
	}
}

func TestClient_BindKey_HMACMismatch(t *testing.T) {
	srv := keyServer(t, "server-secret")
	c := NewClient(Config{URL: srv.URL, ServerSecret: "other-secret"})

	_, err := c.BindKey(context.Background(), testProcessID, "cleanup")
	if !errors.Is(err, ErrHMACVerificationFailed) {
		t.Errorf("BindKey() error = %v, want ErrHMACVerificationFailed", err)
	}

	// без секрета подпись не проверяется
	if _, err := NewClient(Config{URL: srv.URL}).BindKey(context.Background(), testProcessID, "cleanup"); err != nil {
		t.Errorf("BindKey() without secret error = %v", err)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, "boom", ErrServiceError},
		{"forbidden", http.StatusForbidden, "acl", ErrKeyBindRejected},
		{"quota", http.StatusTooManyRequests, "quota", ErrKeyBindRejected},
		{"not found", http.StatusNotFound, "", ErrKeyNotFound},
		{"bad request", http.StatusBadRequest, "nope", ErrServiceError},
		{"bad json", http.StatusOK, "{", ErrServiceError},
		{"short key", http.StatusOK, `{"key_b64":"` + base64.StdEncoding.EncodeToString([]byte("short")) + `"}`, ErrServiceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(Config{URL: statusServer(t, tt.status, tt.body).URL})
			_, err := c.BindKey(context.Background(), testProcessID, "p")
			if !errors.Is(err, tt.want) {
				t.Errorf("BindKey() error = %v, want %v", err, tt.want)
			}
			if ErrorCode(err) != tt.want.Error() {
				t.Errorf("ErrorCode() = %q, want %q", ErrorCode(err), tt.want.Error())
			}
		})
	}
}

func TestClient_Unavailable(t *testing.T) {
	// порт 1 - connection refused
	c := NewClient(Config{URL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	_, err := c.RetrieveKey(context.Background(), testProcessID)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("RetrieveKey() error = %v, want ErrUnavailable", err)
	}
	if ErrorCode(errors.New("other")) != "" {
		t.Error("ErrorCode() of a foreign error must be empty")
	}
}

func TestVerifyHMAC(t *testing.T) {
	sig := Sign(testProcessID.String(), "secret")
	if !VerifyHMAC(testProcessID.String(), sig, "secret") {
		t.Error("VerifyHMAC() = false for a valid signature")
	}
	if VerifyHMAC(testProcessID.String(), sig, "wrong") {
		t.Error("VerifyHMAC() = true for a wrong secret")
	}
}

func TestLocal(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	key, err := l.BindKey(ctx, testProcessID, "cleanup")
	if err != nil || len(key) != 32 {
		t.Fatalf("BindKey() = %d bytes, %v", len(key), err)
	}
	other, _ := l.BindKey(ctx, uuid.New(), "other")
	if bytes.Equal(key, other) {
		t.Error("keys must differ per process")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}

	got, err := l.RetrieveKey(ctx, testProcessID)
	if err != nil || !bytes.Equal(got, key) {
		t.Fatalf("RetrieveKey() = %x, %v", got, err)
	}
	if _, err := l.RetrieveKey(ctx, testProcessID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("second RetrieveKey() error = %v, want ErrKeyNotFound", err)
	}
}
