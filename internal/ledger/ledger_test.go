package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestOpen_CreatesDirectoryAndIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ledger.db")

	s, err := Open(context.Background(), path, nil)
	require.NoError(t, err)

	_, err = s.RecordUpload(context.Background(), Upload{Target: "u", FileName: "a.png", Status: StatusSuccess})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Second open finds migrations already applied and keeps the data.
	s, err = Open(context.Background(), path, nil)
	require.NoError(t, err)
	defer s.Close()

	ups, err := s.RecentUploads(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, ups, 1)
}

func TestRecordUpload_RejectsUnknownStatus(t *testing.T) {
	s := newTestStore(t)

	_, err := s.RecordUpload(context.Background(), Upload{Target: "u", FileName: "a.png", Status: "done"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestHasUploaded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordUpload(ctx, Upload{Target: "uid-b", FileName: "a.png", SHA256: "aaa", Status: StatusSuccess})
	require.NoError(t, err)
	_, err = s.RecordUpload(ctx, Upload{Target: "uid-b", FileName: "b.png", SHA256: "bbb", Status: StatusError, Error: "boom"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		sum    string
		want   bool
	}{
		{"uploaded", "uid-b", "aaa", true},
		{"only failed", "uid-b", "bbb", false},
		{"other target", "uid-x", "aaa", false},
		{"unknown", "uid-b", "ccc", false},
		{"empty hash", "uid-b", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HasUploaded(ctx, tt.target, tt.sum)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecentUploads_NewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, name := range []string{"1.png", "2.png", "3.png"} {
		_, err := s.RecordUpload(ctx, Upload{
			Target:     "uid-b",
			FileName:   name,
			Size:       int64(i + 1),
			Status:     StatusSuccess,
			Response:   `{"ok":true}`,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		})
		require.NoError(t, err)
	}

	ups, err := s.RecentUploads(ctx, 2)
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, "3.png", ups[0].FileName)
	assert.Equal(t, "2.png", ups[1].FileName)
	assert.Equal(t, int64(3), ups[0].Size)
	assert.Equal(t, `{"ok":true}`, ups[0].Response)
	assert.True(t, base.Add(2*time.Minute).Equal(ups[0].StartedAt))
	assert.True(t, base.Add(2*time.Minute+time.Second).Equal(ups[0].FinishedAt))
}

func TestRecordUpload_DefaultsTimestamps(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }

	_, err := s.RecordUpload(context.Background(), Upload{Target: "u", FileName: "a.png", Status: StatusSkipped})
	require.NoError(t, err)

	ups, err := s.RecentUploads(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.True(t, fixed.Equal(ups[0].StartedAt))
	assert.True(t, fixed.Equal(ups[0].FinishedAt))
	assert.Equal(t, StatusSkipped, ups[0].Status)
}

func TestSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := s.RecordSubmission(ctx, Submission{
		SubmittedBy: "usera@example.com", CompanyName: "Old", NumberOfUsers: 1, NumberOfProducts: 2,
		Percentage: 50, CreatedAt: base,
	})
	require.NoError(t, err)

	id, err := s.RecordSubmission(ctx, Submission{
		SubmittedBy: "usera@example.com", CompanyName: "Acme", NumberOfUsers: 3, NumberOfProducts: 4,
		Percentage: 75, Response: `{"id":"sub-1"}`, CreatedAt: base.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	subs, err := s.RecentSubmissions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "Acme", subs[0].CompanyName)
	assert.Equal(t, id, subs[0].ID)
	assert.InDelta(t, 75.0, subs[0].Percentage, 1e-9)
	assert.Equal(t, `{"id":"sub-1"}`, subs[0].Response)
	assert.True(t, base.Add(time.Hour).Equal(subs[0].CreatedAt))
	assert.Equal(t, "Old", subs[1].CompanyName)
}

func TestRecentQueries_EmptyLedger(t *testing.T) {
	s := newTestStore(t)

	ups, err := s.RecentUploads(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, ups)

	subs, err := s.RecentSubmissions(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	sum, size, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
	assert.Equal(t, int64(3), size)

	_, _, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
