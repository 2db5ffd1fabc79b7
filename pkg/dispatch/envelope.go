// Package dispatch упаковывает процессы в конверты и передает их
// удаленному исполнителю через брокер сообщений.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ruslano69/tdtp-steps/pkg/brokers"
	"github.com/ruslano69/tdtp-steps/pkg/crypto"
	"github.com/ruslano69/tdtp-steps/pkg/process"
	"github.com/ruslano69/tdtp-steps/pkg/processors"
)

// Заголовки конверта
const (
	HeaderProcessID = "x-process-id"
	HeaderChecksum  = "x-checksum" // xxh3 исходного JSON
	HeaderEncoding  = "x-encoding" // преобразования тела через запятую, в порядке применения
	HeaderSteps     = "x-steps"
	HeaderKeySource = "x-key-source" // откуда брать ключ: KeySourceStatic или KeySourceService

	ContentType = "application/vnd.tdtp-steps.process+json"
)

// Кодировки тела
const (
	EncodingZstd   = "zstd"
	EncodingAESGCM = "aes-gcm"
)

// Источники ключа шифрования
const (
	KeySourceStatic  = "static"
	KeySourceService = "service"
)

// KeySource выдает ключ шифрования на один процесс (см. mercury.Client).
// RetrieveKey может вернуть ключ только один раз.
type KeySource interface {
	BindKey(ctx context.Context, processID uuid.UUID, processName string) ([]byte, error)
	RetrieveKey(ctx context.Context, processID uuid.UUID) ([]byte, error)
}

// Config - параметры упаковки конвертов
type Config struct {
	// CompressMinSize - тело от этого размера сжимается zstd (0 = 1KB, <0 = не сжимать)
	CompressMinSize  int `yaml:"compress_min_size"`
	CompressionLevel int `yaml:"compression_level"`

	// EncryptionKey - ключ AES-256 (hex или base64); пусто = без шифрования
	EncryptionKey string `yaml:"encryption_key"`

	// Keys - сервис ключей; если задан, имеет приоритет над EncryptionKey
	Keys KeySource `yaml:"-"`
}

func (c Config) key() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := crypto.ParseKey(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	return key, nil
}

// Seal упаковывает процесс в сообщение брокера
func Seal(ctx context.Context, p *process.Process, cfg Config) (brokers.Message, error) {
	if err := p.Validate(); err != nil {
		return brokers.Message{}, fmt.Errorf("seal: %w", err)
	}
	body, err := p.Encode()
	if err != nil {
		return brokers.Message{}, fmt.Errorf("seal: %w", err)
	}

	var checksum string
	chain := processors.NewChain(processors.NewChecksumProcessor("", func(h string) { checksum = h }))
	var encoding []string

	if cfg.CompressMinSize >= 0 && processors.ShouldCompress(len(body), cfg.CompressMinSize) {
		level := cfg.CompressionLevel
		if level == 0 {
			level = processors.DefaultCompressionLevel
		}
		compressor, err := processors.NewCompressionProcessor(level)
		if err != nil {
			return brokers.Message{}, fmt.Errorf("seal: %w", err)
		}
		defer compressor.Close()
		chain.Add(compressor)
		encoding = append(encoding, EncodingZstd)
	}

	keySource := ""
	if cfg.Keys != nil {
		key, err := cfg.Keys.BindKey(ctx, p.ID, p.Name)
		if err != nil {
			return brokers.Message{}, fmt.Errorf("seal: %w", err)
		}
		chain.Add(processors.NewEncryptionProcessor(key, p.ID))
		encoding = append(encoding, EncodingAESGCM)
		keySource = KeySourceService
	} else {
		key, err := cfg.key()
		if err != nil {
			return brokers.Message{}, fmt.Errorf("seal: %w", err)
		}
		if key != nil {
			chain.Add(processors.NewEncryptionProcessor(key, p.ID))
			encoding = append(encoding, EncodingAESGCM)
			keySource = KeySourceStatic
		}
	}

	sealed, err := chain.ProcessBlock(ctx, body)
	if err != nil {
		return brokers.Message{}, fmt.Errorf("seal: %w", err)
	}

	headers := map[string]string{
		HeaderProcessID: p.ID.String(),
		HeaderChecksum:  checksum,
		HeaderEncoding:  strings.Join(encoding, ","),
		HeaderSteps:     strconv.Itoa(len(p.Steps)),
	}
	if keySource != "" {
		headers[HeaderKeySource] = keySource
	}
	return brokers.Message{
		Key:         p.ID.String(),
		Body:        sealed,
		ContentType: ContentType,
		Headers:     headers,
	}, nil
}

// Open распаковывает сообщение, проверяет контрольную сумму и ID процесса.
// Ключ из сервиса запрашивается только для зашифрованного конверта.
func Open(ctx context.Context, msg brokers.Message, cfg Config) (*process.Process, error) {
	id, err := uuid.Parse(msg.Headers[HeaderProcessID])
	if err != nil {
		return nil, fmt.Errorf("open: invalid %s header: %w", HeaderProcessID, err)
	}
	key, err := cfg.key()
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	checksum := msg.Headers[HeaderChecksum]
	if checksum == "" {
		return nil, fmt.Errorf("open: %s header is missing", HeaderChecksum)
	}

	chain := processors.NewChain()
	var encoding []string
	if e := msg.Headers[HeaderEncoding]; e != "" {
		encoding = strings.Split(e, ",")
	}
	for i := len(encoding) - 1; i >= 0; i-- {
		switch encoding[i] {
		case EncodingAESGCM:
			k, err := openKey(ctx, msg.Headers[HeaderKeySource], id, key, cfg.Keys)
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			chain.Add(processors.NewDecryptionProcessor(k, id))
		case EncodingZstd:
			decompressor, err := processors.NewDecompressionProcessor()
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			defer decompressor.Close()
			chain.Add(decompressor)
		default:
			return nil, fmt.Errorf("open: unsupported encoding %q", encoding[i])
		}
	}
	chain.Add(processors.NewChecksumProcessor(checksum, nil))

	body, err := chain.ProcessBlock(ctx, msg.Body)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	p, err := process.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if p.ID != id {
		return nil, fmt.Errorf("open: body process %s does not match header %s", p.ID, id)
	}
	return p, nil
}

func openKey(ctx context.Context, source string, id uuid.UUID, static []byte, keys KeySource) ([]byte, error) {
	if source == KeySourceService {
		if keys == nil {
			return nil, fmt.Errorf("envelope key is held by the key service but none is configured")
		}
		return keys.RetrieveKey(ctx, id)
	}
	if static == nil {
		return nil, fmt.Errorf("envelope is encrypted but no key is configured")
	}
	return static, nil
}
