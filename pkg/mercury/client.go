// Package mercury - клиент сервиса ключей шифрования процессов.
// Отправитель привязывает новый ключ к ID процесса, получатель забирает его
// один раз: после чтения ключ удаляется на стороне сервиса.
package mercury

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 5 * time.Second

// Config - настройки клиента
type Config struct {
	// URL сервиса, например "http://mercury:3000"; "local" = ключи в памяти процесса
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"` // 0 = 5s

	// ServerSecret - общий секрет для проверки HMAC привязки; пусто = не проверять
	ServerSecret string `yaml:"server_secret"`
}

// Enabled сообщает, задан ли сервис ключей
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Local сообщает, что ключи хранятся в памяти процесса
func (c Config) Local() bool {
	return c.URL == "local"
}

// Client - HTTP-клиент сервиса ключей
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient создает клиент
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		secret:     cfg.ServerSecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BindKey привязывает новый ключ AES-256 к процессу.
// POST /api/keys/bind -> {key_b64, hmac}
func (c *Client) BindKey(ctx context.Context, processID uuid.UUID, processName string) ([]byte, error) {
	var binding KeyBinding
	err := c.post(ctx, "/api/keys/bind", BindKeyRequest{
		ProcessID:   processID.String(),
		ProcessName: processName,
	}, &binding)
	if err != nil {
		return nil, fmt.Errorf("bind key %s: %w", processID, err)
	}

	if c.secret != "" && !VerifyHMAC(processID.String(), binding.HMAC, c.secret) {
		return nil, fmt.Errorf("bind key %s: %w", processID, ErrHMACVerificationFailed)
	}
	key, err := DecodeKey(binding.KeyB64)
	if err != nil {
		return nil, fmt.Errorf("bind key %s: %w: %v", processID, ErrServiceError, err)
	}
	return key, nil
}

// RetrieveKey забирает ключ процесса (burn-on-read).
// POST /api/keys/retrieve -> {key_b64}
func (c *Client) RetrieveKey(ctx context.Context, processID uuid.UUID) ([]byte, error) {
	var result struct {
		KeyB64 string `json:"key_b64"`
	}
	if err := c.post(ctx, "/api/keys/retrieve", RetrieveKeyRequest{ProcessID: processID.String()}, &result); err != nil {
		return nil, fmt.Errorf("retrieve key %s: %w", processID, err)
	}
	key, err := DecodeKey(result.KeyB64)
	if err != nil {
		return nil, fmt.Errorf("retrieve key %s: %w: %v", processID, ErrServiceError, err)
	}
	return key, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return ErrKeyNotFound
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", ErrKeyBindRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrServiceError, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", ErrServiceError, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrServiceError, err)
	}
	return nil
}

// VerifyHMAC проверяет HMAC-SHA256(processID, serverSecret)
func VerifyHMAC(processID, receivedHMAC, serverSecret string) bool {
	return hmac.Equal([]byte(Sign(processID, serverSecret)), []byte(receivedHMAC))
}

// Sign вычисляет подпись привязки в hex
func Sign(processID, serverSecret string) string {
	mac := hmac.New(sha256.New, []byte(serverSecret))
	mac.Write([]byte(processID))
	return hex.EncodeToString(mac.Sum(nil))
}

// DecodeKey декодирует ключ из base64
func DecodeKey(keyB64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length: got %d bytes, want 32", len(key))
	}
	return key, nil
}
