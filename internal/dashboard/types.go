// Package dashboard wraps the DataSync API endpoints behind typed calls:
// userA submits figures and lists images, userB uploads images and reads
// the latest submission.
package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Submission is a stored userA entry.
type Submission struct {
	ID               string    `json:"id"`
	CompanyName      string    `json:"companyName"`
	NumberOfUsers    int       `json:"numberOfUsers"`
	NumberOfProducts int       `json:"numberOfProducts"`
	Percentage       float64   `json:"percentage"`
	CreatedAt        Timestamp `json:"createdAt"`
}

// Image is an uploaded image as listed by the API.
type Image struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	CreatedAt Timestamp `json:"createdAt"`
}

// SubmissionInput is what a userA enters.
type SubmissionInput struct {
	CompanyName      string
	NumberOfUsers    int
	NumberOfProducts int
}

// submissionPayload is the POST /submission body.
type submissionPayload struct {
	CompanyName      string  `json:"companyName"`
	NumberOfUsers    int     `json:"numberOfUsers"`
	NumberOfProducts int     `json:"numberOfProducts"`
	Percentage       float64 `json:"percentage"`
}

// ErrInvalidSubmission wraps every field problem found by Validate.
var ErrInvalidSubmission = errors.New("invalid submission")

// Validate reports all field problems at once.
func (in SubmissionInput) Validate() error {
	var problems []string

	if strings.TrimSpace(in.CompanyName) == "" {
		problems = append(problems, "Company name is required")
	}

	if in.NumberOfUsers < 1 {
		problems = append(problems, "Number of users must be at least 1")
	}

	if in.NumberOfProducts < 1 {
		problems = append(problems, "Number of products must be at least 1")
	}

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrInvalidSubmission, strings.Join(problems, "; "))
}

// Percentage is users/products*100, or 0 when there are no products.
func Percentage(users, products int) float64 {
	if products <= 0 {
		return 0
	}

	return float64(users) / float64(products) * 100
}

// Timestamp decodes the creation times the API emits: RFC 3339 strings,
// epoch milliseconds, or Firestore's {"_seconds", "_nanoseconds"} objects.
type Timestamp struct {
	time.Time
}

type firestoreTimestamp struct {
	Seconds     int64 `json:"_seconds"`
	Nanoseconds int64 `json:"_nanoseconds"`
}

// UnmarshalJSON accepts every supported encoding; null leaves the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("dashboard: decoding timestamp: %w", err)
		}

		if s == "" {
			t.Time = time.Time{}
			return nil
		}

		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("dashboard: decoding timestamp %q: %w", s, err)
		}

		t.Time = parsed
	case '{':
		var fs firestoreTimestamp
		if err := json.Unmarshal(data, &fs); err != nil {
			return fmt.Errorf("dashboard: decoding timestamp: %w", err)
		}

		t.Time = time.Unix(fs.Seconds, fs.Nanoseconds).UTC()
	default:
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("dashboard: decoding timestamp: %w", err)
		}

		t.Time = time.UnixMilli(ms).UTC()
	}

	return nil
}

// MarshalJSON writes RFC 3339, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}

	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
