package certificate

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFields() Fields {
	return Fields{
		"certificateId":  "CERT-1",
		"fullName":       "Jane Doe",
		"courseName":     "Systems 101",
		"completionDate": "2024-03-01",
		"issuer":         "Acme Academy",
	}
}

func TestNormalizeTrimsAndDropsExtras(t *testing.T) {
	fields := Fields{
		"certificateId":  "  CERT-1 ",
		"fullName":       "\tJane Doe\n",
		"courseName":     "Systems 101",
		"completionDate": " 2024-03-01",
		"issuer":         "Acme Academy  ",
		"notes":          "dropped",
	}

	record, err := Normalize(fields)
	require.NoError(t, err)
	assert.Equal(t, Record{
		CertificateID:  "CERT-1",
		FullName:       "Jane Doe",
		CourseName:     "Systems 101",
		CompletionDate: "2024-03-01",
		Issuer:         "Acme Academy",
	}, record)
	assert.Len(t, record.Fields(), len(RequiredFields))
}

func TestNormalizeMissingIssuer(t *testing.T) {
	fields := validFields()
	delete(fields, "issuer")

	_, err := Normalize(fields)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindValidation, KindOf(err))

	var certErr *Error
	require.True(t, errors.As(err, &certErr))
	assert.Equal(t, "issuer", certErr.Field)
	assert.Equal(t, "missing required field: issuer", err.Error())
}

func TestNormalizeReportsFirstMissingFieldInOrder(t *testing.T) {
	tests := []struct {
		name    string
		missing []string
		want    string
	}{
		{"all missing", RequiredFields, "certificateId"},
		{"name and issuer", []string{"issuer", "fullName"}, "fullName"},
		{"date only", []string{"completionDate"}, "completionDate"},
		{"course and date", []string{"completionDate", "courseName"}, "courseName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			for _, name := range tt.missing {
				delete(fields, name)
			}
			_, err := Normalize(fields)

			var certErr *Error
			require.True(t, errors.As(err, &certErr))
			assert.Equal(t, tt.want, certErr.Field)
		})
	}
}

func TestNormalizeRejectsEmptyValues(t *testing.T) {
	empties := map[string]any{
		"empty string": "",
		"whitespace":   "   \t\n",
		"nil":          nil,
		"false":        false,
		"zero":         0,
		"zero float":   0.0,
	}

	for name, value := range empties {
		t.Run(name, func(t *testing.T) {
			fields := validFields()
			fields["courseName"] = value
			_, err := Normalize(fields)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestNormalizeCoercesToText(t *testing.T) {
	fields := validFields()
	fields["certificateId"] = 42
	fields["courseName"] = 101.5
	fields["completionDate"] = json.Number("20240301")
	fields["fullName"] = true

	record, err := Normalize(fields)
	require.NoError(t, err)
	assert.Equal(t, "42", record.CertificateID)
	assert.Equal(t, "101.5", record.CourseName)
	assert.Equal(t, "20240301", record.CompletionDate)
	assert.Equal(t, "true", record.FullName)
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []Fields{
		validFields(),
		{
			"certificateId":  7,
			"fullName":       "  Ana  María ",
			"courseName":     "Gödel, Escher, Bach",
			"completionDate": 1.0,
			"issuer":         "東京大学",
			"extra":          []int{1, 2},
		},
	}

	for _, input := range inputs {
		first, err := Normalize(input)
		require.NoError(t, err)

		second, err := Normalize(first.Fields())
		require.NoError(t, err)
		assert.Equal(t, first, second)

		third, err := first.Normalize()
		require.NoError(t, err)
		assert.Equal(t, first, third)
	}
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.False(t, errors.Is(MissingFieldError("issuer"), ErrIntegrity))
}
