package credential

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	keySize = 32

	markerField = "__encrypted"
	ivField     = "iv"
	dataField   = "data"
)

var errInvalidPadding = errors.New("invalid padding")

// Cipher AES-256-CBC 加解密，密文以信封形式存储
type Cipher struct {
	key    []byte
	logger *slog.Logger
}

// NewCipher 创建加密器
// secret 截断或补零到 32 字节；为空时不加密，只记录警告
func NewCipher(secret string, logger *slog.Logger) *Cipher {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cipher{logger: logger}
	if secret == "" {
		logger.Warn("credential encryption key is not configured, credentials will be stored in cleartext")
		return c
	}
	if len(secret) < keySize {
		logger.Warn("credential encryption key is shorter than 32 bytes and will be zero-padded", "length", len(secret))
	}
	key := make([]byte, keySize)
	copy(key, secret)
	c.key = key
	return c
}

// Enabled 是否配置了密钥
func (c *Cipher) Enabled() bool {
	return c.key != nil
}

// IsEncrypted 判断是否为加密信封
func IsEncrypted(payload map[string]interface{}) bool {
	marker, ok := payload[markerField].(bool)
	return ok && marker
}

// Encrypt 加密凭证，每次使用新的随机 IV
func (c *Cipher) Encrypt(payload map[string]interface{}) (map[string]interface{}, error) {
	if !c.Enabled() {
		c.logger.Warn("storing credential without encryption")
		return payload, nil
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return map[string]interface{}{
		markerField: true,
		ivField:     hex.EncodeToString(iv),
		dataField:   hex.EncodeToString(ciphertext),
	}, nil
}

// Decrypt 解密凭证
// 未加密的数据原样返回；解密失败时记录日志并返回原始信封
func (c *Cipher) Decrypt(stored map[string]interface{}) map[string]interface{} {
	if !IsEncrypted(stored) {
		return stored
	}
	if !c.Enabled() {
		c.logger.Warn("encrypted credential found but no encryption key is configured")
		return stored
	}

	out, err := c.open(stored)
	if err != nil {
		c.logger.Error("failed to decrypt credential", "error", err)
		return stored
	}
	return out
}

func (c *Cipher) open(stored map[string]interface{}) (map[string]interface{}, error) {
	ivHex, _ := stored[ivField].(string)
	dataHex, _ := stored[dataField].(string)

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, errors.New("invalid iv")
	}
	ciphertext, err := hex.DecodeString(dataHex)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("invalid ciphertext")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return out, nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errInvalidPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errInvalidPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
