package certificate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field names of the canonical record, in validation order.
const (
	FieldCertificateID  = "certificateId"
	FieldFullName       = "fullName"
	FieldCourseName     = "courseName"
	FieldCompletionDate = "completionDate"
	FieldIssuer         = "issuer"
)

// RequiredFields lists the canonical fields in the order they are checked.
var RequiredFields = []string{
	FieldCertificateID,
	FieldFullName,
	FieldCourseName,
	FieldCompletionDate,
	FieldIssuer,
}

// Record is the canonical certificate: five trimmed, non-empty fields.
// The json field order is the serialization order used by the codec.
type Record struct {
	CertificateID  string `json:"certificateId" yaml:"certificateId"`
	FullName       string `json:"fullName" yaml:"fullName"`
	CourseName     string `json:"courseName" yaml:"courseName"`
	CompletionDate string `json:"completionDate" yaml:"completionDate"`
	Issuer         string `json:"issuer" yaml:"issuer"`
}

// Fields is a raw, loosely typed certificate as submitted by a form,
// a CSV row or a decoded JSON object.
type Fields map[string]any

// Fields returns the record as raw fields.
func (r Record) Fields() Fields {
	return Fields{
		FieldCertificateID:  r.CertificateID,
		FieldFullName:       r.FullName,
		FieldCourseName:     r.CourseName,
		FieldCompletionDate: r.CompletionDate,
		FieldIssuer:         r.Issuer,
	}
}

// Normalize re-validates an already typed record.
func (r Record) Normalize() (Record, error) {
	return Normalize(r.Fields())
}

// Normalize validates fields and returns the canonical record. It fails
// with a validation error naming the first missing field. Extra fields
// are dropped.
func Normalize(fields Fields) (Record, error) {
	values := make(map[string]string, len(RequiredFields))
	for _, name := range RequiredFields {
		value, ok := stringify(fields[name])
		if !ok {
			return Record{}, MissingFieldError(name)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return Record{}, MissingFieldError(name)
		}
		values[name] = value
	}

	return Record{
		CertificateID:  values[FieldCertificateID],
		FullName:       values[FieldFullName],
		CourseName:     values[FieldCourseName],
		CompletionDate: values[FieldCompletionDate],
		Issuer:         values[FieldIssuer],
	}, nil
}

// stringify coerces a raw value to text. The boolean result is false for
// values that count as absent: nil, false, zero numbers, NaN and "".
func stringify(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case bool:
		if !v {
			return "", false
		}
		return "true", true
	case json.Number:
		return v.String(), v != "" && !isZeroNumber(v.String())
	case float64:
		return formatFloat(v)
	case float32:
		return formatFloat(float64(v))
	case int:
		return strconv.Itoa(v), v != 0
	case int8, int16, int32, int64:
		n := toInt64(v)
		return strconv.FormatInt(n, 10), n != 0
	case uint, uint8, uint16, uint32, uint64:
		n := toUint64(v)
		return strconv.FormatUint(n, 10), n != 0
	case fmt.Stringer:
		s := v.String()
		return s, s != ""
	default:
		s := fmt.Sprint(v)
		return s, s != ""
	}
}

func formatFloat(v float64) (string, bool) {
	if v == 0 || math.IsNaN(v) {
		return "", false
	}
	if math.IsInf(v, 1) {
		return "Infinity", true
	}
	if math.IsInf(v, -1) {
		return "-Infinity", true
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}

func isZeroNumber(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f == 0
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case uint:
		return uint64(n)
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	}
	return 0
}
