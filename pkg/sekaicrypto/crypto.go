// Package sekaicrypto implements the AES-128-CBC + PKCS7 + MessagePack wire
// framing used by every upstream game-client request and response.
package sekaicrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

// Cryptor packs and unpacks upstream request/response bodies with a fixed
// 16-byte AES key and IV.
type Cryptor struct {
	key [16]byte
	iv  [16]byte
}

// FromHex builds a Cryptor from hex-encoded key and IV, each required to
// decode to exactly 16 bytes.
func FromHex(keyHex, ivHex string) (*Cryptor, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, apperror.New(apperror.KindCryptoError, "invalid AES key hex: %v", err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, apperror.New(apperror.KindCryptoError, "invalid AES IV hex: %v", err)
	}
	if len(key) != 16 {
		return nil, apperror.New(apperror.KindCryptoError, "invalid key length: got %d, want 16", len(key))
	}
	if len(iv) != 16 {
		return nil, apperror.New(apperror.KindCryptoError, "invalid IV length: got %d, want 16", len(iv))
	}
	c := &Cryptor{}
	copy(c.key[:], key)
	copy(c.iv[:], iv)
	return c, nil
}

// Pack MessagePack-encodes data, PKCS7-pads it, and encrypts it.
func (c *Cryptor) Pack(data any) ([]byte, error) {
	b, err := msgpack.Marshal(data)
	if err != nil {
		return nil, apperror.New(apperror.KindCryptoError, "msgpack encode: %v", err)
	}
	return c.PackBytes(b)
}

// PackBytes PKCS7-pads and encrypts pre-encoded MessagePack bytes.
func (c *Cryptor) PackBytes(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, apperror.New(apperror.KindCryptoError, "content cannot be empty")
	}
	padded := pkcs7Pad(data, 16)
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, apperror.New(apperror.KindCryptoError, "aes cipher: %v", err)
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.iv[:]).CryptBlocks(out, padded)
	return out, nil
}

// Unpack decrypts and MessagePack-decodes into target.
func (c *Cryptor) Unpack(data []byte, target any) error {
	unpadded, err := c.decrypt(data)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(unpadded, target); err != nil {
		return apperror.New(apperror.KindCryptoError, "msgpack decode: %v", err)
	}
	return nil
}

// UnpackOrdered decrypts and decodes the top-level MessagePack map preserving
// key insertion order, converting integer keys to decimal strings and
// binary/extension values to base64.
func (c *Cryptor) UnpackOrdered(data []byte) (*OrderedValue, error) {
	unpadded, err := c.decrypt(data)
	if err != nil {
		return nil, err
	}
	v, err := decodeOrdered(unpadded)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindObject {
		return nil, apperror.New(apperror.KindCryptoError, "expected object at top level")
	}
	return v, nil
}

func (c *Cryptor) decrypt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, apperror.New(apperror.KindCryptoError, "content cannot be empty")
	}
	if len(data)%16 != 0 {
		return nil, apperror.New(apperror.KindCryptoError, "content length is not a multiple of AES block size")
	}
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, apperror.New(apperror.KindCryptoError, "aes cipher: %v", err)
	}
	buf := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, c.iv[:]).CryptBlocks(buf, data)
	return pkcs7Unpad(buf)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, apperror.New(apperror.KindCryptoError, "empty data for unpadding")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > 16 || padLen > len(data) {
		return nil, apperror.New(apperror.KindCryptoError, "invalid PKCS7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, apperror.New(apperror.KindCryptoError, "invalid PKCS7 padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
