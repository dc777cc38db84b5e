package codec

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/certlink/internal/certificate"
)

const testKey = "s3cr3t"

func exampleRecord() certificate.Record {
	return certificate.Record{
		CertificateID:  "CERT-1",
		FullName:       "Jane Doe",
		CourseName:     "Systems 101",
		CompletionDate: "2024-03-01",
		Issuer:         "Acme Academy",
	}
}

// craftToken builds a token around an arbitrary payload, bypassing
// normalization, to exercise individual decode failure modes.
func craftToken(t *testing.T, payload, key string) string {
	t.Helper()
	cipher, err := XOR([]byte(payload), []byte(key))
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(cipher)
}

func TestXORRepeatsKey(t *testing.T) {
	out, err := XOR([]byte{0, 0, 0, 0, 0}, []byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ababa"), out)
}

func TestXORIsItsOwnInverse(t *testing.T) {
	payload := []byte("any bytes \x00\xff and more")
	key := []byte("k3y")

	once, err := XOR(payload, key)
	require.NoError(t, err)
	twice, err := XOR(once, key)
	require.NoError(t, err)
	assert.Equal(t, payload, twice)
}

func TestXOREmptyKey(t *testing.T) {
	_, err := XOR([]byte("data"), nil)
	assert.True(t, errors.Is(err, certificate.ErrConfig))
}

func TestEncodeExample(t *testing.T) {
	encoded, err := EncodeRecord(exampleRecord(), testKey)
	require.NoError(t, err)

	assert.Equal(t,
		`{"certificateId":"CERT-1","fullName":"Jane Doe","courseName":"Systems 101","completionDate":"2024-03-01","issuer":"Acme Academy"}`,
		encoded.Payload)
	assert.NotContains(t, encoded.Token, "=")
	assert.NotContains(t, encoded.Token, "+")
	assert.NotContains(t, encoded.Token, "/")

	record, err := Decode(encoded.Token, testKey)
	require.NoError(t, err)
	assert.Equal(t, exampleRecord(), record)

	_, err = Decode(encoded.Token, "wrong")
	require.Error(t, err)
	assert.Equal(t, certificate.KindIntegrity, certificate.KindOf(err))
}

func TestEncodeDeterministic(t *testing.T) {
	first, err := EncodeRecord(exampleRecord(), testKey)
	require.NoError(t, err)
	second, err := EncodeRecord(exampleRecord(), testKey)
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)
}

func TestRoundTrip(t *testing.T) {
	records := []certificate.Record{
		exampleRecord(),
		{
			CertificateID:  "CERT-LQ8Z2K1",
			FullName:       "Zoë Ñúñez 😀",
			CourseName:     "Gödel, Escher & Bach <advanced>",
			CompletionDate: "1 März 2024",
			Issuer:         "東京大学",
		},
		{
			CertificateID:  "x",
			FullName:       `Quote " and backslash \`,
			CourseName:     "tab\tinside",
			CompletionDate: "2024",
			Issuer:         "I",
		},
	}
	keys := []string{"k", testKey, "a much longer key than most payload fields", "ключ"}

	for _, record := range records {
		for _, key := range keys {
			encoded, err := EncodeRecord(record, key)
			require.NoError(t, err)

			decoded, err := Decode(encoded.Token, key)
			require.NoError(t, err)
			assert.Equal(t, record, decoded)
		}
	}
}

func TestRoundTripNormalizesInput(t *testing.T) {
	fields := certificate.Fields{
		"certificateId":  " CERT-9 ",
		"fullName":       "Jane",
		"courseName":     "Course",
		"completionDate": "2024-01-01",
		"issuer":         "Issuer",
		"ignored":        "value",
	}
	encoded, err := Encode(fields, testKey)
	require.NoError(t, err)
	assert.NotContains(t, encoded.Payload, "ignored")

	record, err := Decode(encoded.Token, testKey)
	require.NoError(t, err)
	assert.Equal(t, "CERT-9", record.CertificateID)
}

func TestKeySensitivity(t *testing.T) {
	pairs := [][2]string{
		{testKey, "wrong"},
		{"alpha", "bravo"},
		{"k1", "m2"},
	}

	for _, pair := range pairs {
		encoded, err := EncodeRecord(exampleRecord(), pair[0])
		require.NoError(t, err)

		_, err = Decode(encoded.Token, pair[1])
		assert.True(t, errors.Is(err, certificate.ErrIntegrity), "keys %q/%q: %v", pair[0], pair[1], err)
	}
}

func TestEncodeValidationBeforeKey(t *testing.T) {
	fields := exampleRecord().Fields()
	delete(fields, "issuer")

	_, err := Encode(fields, "")
	assert.Equal(t, certificate.KindValidation, certificate.KindOf(err))

	_, err = EncodeRecord(exampleRecord(), "")
	assert.Equal(t, certificate.KindConfig, certificate.KindOf(err))
}

func TestDecodeWhitespaceTolerance(t *testing.T) {
	encoded, err := EncodeRecord(exampleRecord(), testKey)
	require.NoError(t, err)

	var b strings.Builder
	for i, r := range encoded.Token {
		if i > 0 && i%10 == 0 {
			b.WriteString("\r\n ")
		}
		b.WriteRune(r)
	}
	messy := "  " + b.String() + "\t\n"

	record, err := Decode(messy, testKey)
	require.NoError(t, err)
	assert.Equal(t, exampleRecord(), record)
}

func TestDecodeToleratesPadding(t *testing.T) {
	encoded, err := EncodeRecord(exampleRecord(), testKey)
	require.NoError(t, err)

	record, err := Decode(encoded.Token+"==", testKey)
	require.NoError(t, err)
	assert.Equal(t, exampleRecord(), record)
}

func TestDecodeFailureOrdering(t *testing.T) {
	valid, err := EncodeRecord(exampleRecord(), testKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		key   string
		want  certificate.Kind
	}{
		{"empty token", "", testKey, certificate.KindFormat},
		{"whitespace token", " \n\t", testKey, certificate.KindFormat},
		{"bad alphabet", "not*base64!", testKey, certificate.KindFormat},
		{"bad alphabet beats empty key", "not*base64!", "", certificate.KindFormat},
		{"standard alphabet rejected", "ab+/", testKey, certificate.KindFormat},
		{"impossible length", "abcde", testKey, certificate.KindFormat},
		{"empty key", valid.Token, "", certificate.KindConfig},
		{"not json", craftToken(t, "hello world", testKey), testKey, certificate.KindIntegrity},
		{"json null", craftToken(t, "null", testKey), testKey, certificate.KindIntegrity},
		{"json array", craftToken(t, `[1,2]`, testKey), testKey, certificate.KindIntegrity},
		{"trailing data", craftToken(t, `{"a":1}x`, testKey), testKey, certificate.KindIntegrity},
		{"invalid utf8", craftToken(t, "{\"fullName\":\"\xff\"}", testKey), testKey, certificate.KindIntegrity},
		{"missing fields", craftToken(t, `{"certificateId":"C1"}`, testKey), testKey, certificate.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.token, tt.key)
			require.Error(t, err)
			assert.Equal(t, tt.want, certificate.KindOf(err), "error: %v", err)
		})
	}
}

func TestDecodeValidationNamesField(t *testing.T) {
	token := craftToken(t, `{"certificateId":"C1","fullName":"A","courseName":"B","completionDate":"2024-01-01"}`, testKey)

	_, err := Decode(token, testKey)
	var certErr *certificate.Error
	require.True(t, errors.As(err, &certErr))
	assert.Equal(t, certificate.KindValidation, certErr.Kind)
	assert.Equal(t, "issuer", certErr.Field)
}

func TestDecodeCoercesNumbers(t *testing.T) {
	token := craftToken(t, `{"certificateId":12345678901234567890,"fullName":"A","courseName":"B","completionDate":20240101,"issuer":"I"}`, testKey)

	record, err := Decode(token, testKey)
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567890", record.CertificateID)
	assert.Equal(t, "20240101", record.CompletionDate)
}

func TestTamperFirstCharacter(t *testing.T) {
	encoded, err := EncodeRecord(exampleRecord(), testKey)
	require.NoError(t, err)

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for _, r := range alphabet {
		if byte(r) == encoded.Token[0] {
			continue
		}
		tampered := string(r) + encoded.Token[1:]
		_, err := Decode(tampered, testKey)
		require.Error(t, err, "tampered first char %q decoded", r)
		kind := certificate.KindOf(err)
		assert.True(t, kind == certificate.KindFormat || kind == certificate.KindIntegrity, "kind %v", kind)
	}
}

func TestTamperTruncatedOrCorrupted(t *testing.T) {
	encoded, err := EncodeRecord(exampleRecord(), testKey)
	require.NoError(t, err)

	truncated := encoded.Token[:len(encoded.Token)-1]
	_, err = Decode(truncated, testKey)
	require.Error(t, err)
	kind := certificate.KindOf(err)
	assert.True(t, kind == certificate.KindFormat || kind == certificate.KindIntegrity, "kind %v", kind)

	middle := len(encoded.Token) / 2
	corrupted := encoded.Token[:middle] + "*" + encoded.Token[middle+1:]
	_, err = Decode(corrupted, testKey)
	assert.Equal(t, certificate.KindFormat, certificate.KindOf(err))
}

// Every single-character substitution either fails with a typed error or
// decodes to a complete record. XOR with a repeating key only obscures the
// payload: a substitution that lands inside a string value usually yields a
// different but well-formed record, about one mutation in six for the
// example certificate. Callers that need authenticity must check the
// registry.
func TestSingleCharacterMutations(t *testing.T) {
	original := exampleRecord()
	encoded, err := EncodeRecord(original, testKey)
	require.NoError(t, err)

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	var total, rejected, altered int
	for i := range encoded.Token {
		for _, r := range alphabet {
			if byte(r) == encoded.Token[i] {
				continue
			}
			total++
			mutated := encoded.Token[:i] + string(r) + encoded.Token[i+1:]

			record, err := Decode(mutated, testKey)
			if err != nil {
				rejected++
				kind := certificate.KindOf(err)
				assert.NotEqual(t, certificate.KindUnknown, kind)
				assert.NotEqual(t, certificate.KindConfig, kind)
				continue
			}
			_, err = record.Normalize()
			assert.NoError(t, err)
			if record != original {
				altered++
			}
		}
	}

	t.Logf("%d mutations: %d rejected, %d decoded to a different record", total, rejected, altered)
	assert.Equal(t, len(encoded.Token)*(len(alphabet)-1), total)
	assert.Positive(t, altered, "XOR obfuscation is not expected to detect every substitution")
	assert.Less(t, altered*3, total, "most substitutions should still be rejected")
}

func TestCodecBindsKey(t *testing.T) {
	_, err := New("")
	assert.True(t, errors.Is(err, certificate.ErrConfig))

	c, err := New(testKey)
	require.NoError(t, err)

	encoded, err := c.EncodeRecord(exampleRecord())
	require.NoError(t, err)

	viaPackage, err := Decode(encoded.Token, testKey)
	require.NoError(t, err)
	viaCodec, err := c.Decode(encoded.Token)
	require.NoError(t, err)
	assert.Equal(t, viaPackage, viaCodec)

	fromFields, err := c.Encode(exampleRecord().Fields())
	require.NoError(t, err)
	assert.Equal(t, encoded.Token, fromFields.Token)
}
