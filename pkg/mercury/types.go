package mercury

import "errors"

// Коды ошибок сервиса ключей
const (
	ErrCodeUnavailable            = "MERCURY_UNAVAILABLE"      // сервис не отвечает (timeout / connection refused)
	ErrCodeServiceError           = "MERCURY_ERROR"            // сервис вернул HTTP 5xx или некорректный ответ
	ErrCodeHMACVerificationFailed = "HMAC_VERIFICATION_FAILED" // подпись привязки не совпала
	ErrCodeKeyBindRejected        = "KEY_BIND_REJECTED"        // привязка отклонена (квота, ACL)
	ErrCodeKeyNotFound            = "KEY_NOT_FOUND"            // ключа нет или он уже прочитан
)

var (
	ErrUnavailable            = errors.New(ErrCodeUnavailable)
	ErrServiceError           = errors.New(ErrCodeServiceError)
	ErrHMACVerificationFailed = errors.New(ErrCodeHMACVerificationFailed)
	ErrKeyBindRejected        = errors.New(ErrCodeKeyBindRejected)
	ErrKeyNotFound            = errors.New(ErrCodeKeyNotFound)
)

// KeyBinding - ответ на POST /api/keys/bind.
// KeyB64 - ключ AES-256 в base64, HMAC - HMAC-SHA256(process_id, server secret) в hex.
type KeyBinding struct {
	KeyB64 string `json:"key_b64"`
	HMAC   string `json:"hmac"`
}

// BindKeyRequest - тело запроса POST /api/keys/bind
type BindKeyRequest struct {
	ProcessID   string `json:"process_id"`
	ProcessName string `json:"process_name"`
}

// RetrieveKeyRequest - тело запроса POST /api/keys/retrieve (burn-on-read)
type RetrieveKeyRequest struct {
	ProcessID string `json:"process_id"`
}

// ErrorCode возвращает код ошибки сервиса ключей, пустую строку для прочих ошибок
func ErrorCode(err error) string {
	for _, e := range []error{ErrUnavailable, ErrServiceError, ErrHMACVerificationFailed, ErrKeyBindRejected, ErrKeyNotFound} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return ""
}
