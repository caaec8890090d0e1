package dashboard

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_Decode(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2026-01-02T03:04:05Z"`, want},
		{"rfc3339 offset", `"2026-01-02T05:04:05+02:00"`, want},
		{"epoch millis", `1767323045000`, want},
		{"firestore", `{"_seconds":1767323045,"_nanoseconds":0}`, want},
		{"null", `null`, time.Time{}},
		{"empty string", `""`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}
}

func TestTimestamp_DecodeInvalid(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`true`), &ts))
}

func TestTimestamp_Encode(t *testing.T) {
	data, err := json.Marshal(Image{ID: "1", CreatedAt: Timestamp{time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"createdAt":"2026-01-02T03:04:05Z"`)

	data, err = json.Marshal(Image{ID: "2"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"createdAt":null`)
}

func TestSubmissionInput_Validate(t *testing.T) {
	assert.NoError(t, SubmissionInput{CompanyName: "Acme", NumberOfUsers: 1, NumberOfProducts: 1}.Validate())

	err := SubmissionInput{CompanyName: "Acme", NumberOfUsers: 1}.Validate()
	require.ErrorIs(t, err, ErrInvalidSubmission)
	assert.Contains(t, err.Error(), "products")
	assert.NotContains(t, err.Error(), "Company")
}

func TestSubmissionInput_WhitespaceCompanyIsRejected(t *testing.T) {
	err := SubmissionInput{CompanyName: " \t ", NumberOfUsers: 1, NumberOfProducts: 1}.Validate()
	require.ErrorIs(t, err, ErrInvalidSubmission)
	assert.Contains(t, err.Error(), "Company name is required")
}
