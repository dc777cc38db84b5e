// Package codec packs certificate records into opaque, URL-safe tokens
// and recovers them again.
//
// A token is the canonical record serialized as JSON, XORed byte-wise
// against a repeating secret key, then encoded as unpadded URL-safe
// base64. This is obfuscation with a weak tamper filter: a wrong key or
// a corrupted token almost always yields bytes that are not a JSON
// object. It is not authenticated encryption.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adamscao/certlink/internal/certificate"
)

var (
	errInvalidUTF8 = errors.New("payload is not valid UTF-8")
	errInvalidJSON = errors.New("payload is not valid JSON")
	errNotObject   = errors.New("payload is not a JSON object")
)

// tokenEncoding is strict so that a token has exactly one valid spelling.
var tokenEncoding = base64.RawURLEncoding.Strict()

// Encoded is the result of encoding a certificate.
type Encoded struct {
	Record  certificate.Record
	Token   string
	Payload string // serialized JSON before the cipher step
	Cipher  []byte // cipher output before text encoding
}

// XOR applies key to payload position by position, repeating the key as
// needed: out[i] = payload[i] ^ key[i%len(key)]. It is its own inverse.
func XOR(payload, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, certificate.ConfigError("missing secret key")
	}
	out := make([]byte, len(payload))
	for i := range payload {
		out[i] = payload[i] ^ key[i%len(key)]
	}
	return out, nil
}

// Encode normalizes fields and turns the canonical record into a token.
func Encode(fields certificate.Fields, key string) (*Encoded, error) {
	record, err := certificate.Normalize(fields)
	if err != nil {
		return nil, err
	}

	payload, err := marshal(record)
	if err != nil {
		return nil, err
	}

	cipher, err := XOR(payload, []byte(key))
	if err != nil {
		return nil, err
	}

	return &Encoded{
		Record:  record,
		Token:   tokenEncoding.EncodeToString(cipher),
		Payload: string(payload),
		Cipher:  cipher,
	}, nil
}

// EncodeRecord encodes an already typed record.
func EncodeRecord(record certificate.Record, key string) (*Encoded, error) {
	return Encode(record.Fields(), key)
}

// Decode recovers the record from token. Failures are checked in order:
// format (bad encoding), config (empty key), integrity (payload is not a
// JSON object) and validation (a required field is missing).
func Decode(token, key string) (certificate.Record, error) {
	sanitized := stripWhitespace(token)
	if sanitized == "" {
		return certificate.Record{}, certificate.FormatError("missing token", nil)
	}

	cipher, err := tokenEncoding.DecodeString(strings.TrimRight(sanitized, "="))
	if err != nil {
		return certificate.Record{}, certificate.FormatError("invalid encoding", err)
	}

	payload, err := XOR(cipher, []byte(key))
	if err != nil {
		return certificate.Record{}, err
	}

	fields, err := unmarshal(payload)
	if err != nil {
		return certificate.Record{}, certificate.IntegrityError(err)
	}

	return certificate.Normalize(fields)
}

func marshal(record certificate.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func unmarshal(payload []byte) (certificate.Fields, error) {
	if !utf8.Valid(payload) {
		return nil, errInvalidUTF8
	}
	if !json.Valid(payload) {
		return nil, errInvalidJSON
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var fields certificate.Fields
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}
	return fields, nil
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Codec binds a secret key so callers holding configuration do not pass
// the key on every call.
type Codec struct {
	key string
}

// New returns a Codec for key. An empty key is a config error.
func New(key string) (*Codec, error) {
	if key == "" {
		return nil, certificate.ConfigError("missing secret key")
	}
	return &Codec{key: key}, nil
}

// Encode encodes fields with the bound key.
func (c *Codec) Encode(fields certificate.Fields) (*Encoded, error) {
	return Encode(fields, c.key)
}

// EncodeRecord encodes record with the bound key.
func (c *Codec) EncodeRecord(record certificate.Record) (*Encoded, error) {
	return EncodeRecord(record, c.key)
}

// Decode decodes token with the bound key.
func (c *Codec) Decode(token string) (certificate.Record, error) {
	return Decode(token, c.key)
}
