package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/datasync-go/internal/apiclient"
)

// API is the subset of apiclient.Client the service needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	UploadFile(ctx context.Context, path string, file apiclient.File, onProgress apiclient.ProgressFunc) (*apiclient.UploadResult, error)
}

// Sentinel errors for local checks that run before any request.
var (
	ErrMissingUID          = errors.New("dashboard: user ID is required")
	ErrUnsupportedFileType = errors.New("dashboard: unsupported file type")
	ErrFileTooLarge        = errors.New("dashboard: file too large")
)

// DefaultExtensions are the image types accepted for upload.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// Service issues typed dashboard calls through an API.
type Service struct {
	api         API
	logger      *slog.Logger
	extensions  []string
	maxFileSize int64
}

// Option configures a Service.
type Option func(*Service)

// WithExtensions replaces the accepted upload extensions. Matching ignores
// case.
func WithExtensions(exts []string) Option {
	return func(s *Service) {
		if len(exts) == 0 {
			return
		}

		s.extensions = make([]string, len(exts))
		for i, e := range exts {
			s.extensions[i] = strings.ToLower(e)
		}
	}
}

// WithMaxFileSize rejects uploads larger than n bytes. Zero means no limit.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) {
		s.maxFileSize = n
	}
}

// New creates a Service.
func New(api API, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		api:        api,
		logger:     logger,
		extensions: slices.Clone(DefaultExtensions),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Submit validates in, computes its percentage and stores it. The server's
// reply is returned undecoded.
func (s *Service) Submit(ctx context.Context, in SubmissionInput) (json.RawMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	payload := submissionPayload{
		CompanyName:      strings.TrimSpace(in.CompanyName),
		NumberOfUsers:    in.NumberOfUsers,
		NumberOfProducts: in.NumberOfProducts,
		Percentage:       Percentage(in.NumberOfUsers, in.NumberOfProducts),
	}

	s.logger.Info("submitting data",
		slog.String("company", payload.CompanyName),
		slog.Float64("percentage", payload.Percentage),
	)

	var out json.RawMessage
	if err := s.api.Post(ctx, "/submission", payload, &out); err != nil {
		return nil, fmt.Errorf("dashboard: submitting: %w", err)
	}

	return out, nil
}

// ListImages returns the images uploaded for uid.
func (s *Service) ListImages(ctx context.Context, uid string) ([]Image, error) {
	if uid == "" {
		return nil, ErrMissingUID
	}

	var images []Image
	if err := s.api.Get(ctx, "/images/list/"+url.PathEscape(uid), &images); err != nil {
		return nil, fmt.Errorf("dashboard: listing images: %w", err)
	}

	return images, nil
}

// LatestSubmission returns uid's newest submission, or nil if there is none.
func (s *Service) LatestSubmission(ctx context.Context, uid string) (*Submission, error) {
	if uid == "" {
		return nil, ErrMissingUID
	}

	var sub *Submission
	if err := s.api.Get(ctx, "/submission/latest/"+url.PathEscape(uid), &sub); err != nil {
		return nil, fmt.Errorf("dashboard: fetching latest submission: %w", err)
	}

	return sub, nil
}

// AcceptsFile reports whether name has an accepted image extension.
func (s *Service) AcceptsFile(name string) bool {
	return slices.Contains(s.extensions, strings.ToLower(filepath.Ext(name)))
}

// Extensions returns the accepted extensions.
func (s *Service) Extensions() []string {
	return slices.Clone(s.extensions)
}

// UploadImage uploads the file at localPath to uid's image collection. The
// remote file name is the NFC form of the local base name.
func (s *Service) UploadImage(
	ctx context.Context, uid, localPath string, onProgress apiclient.ProgressFunc,
) (*apiclient.UploadResult, error) {
	if uid == "" {
		return nil, ErrMissingUID
	}

	name := norm.NFC.String(filepath.Base(localPath))
	if !s.AcceptsFile(name) {
		return nil, fmt.Errorf("%w: %s (accepted: %s)", ErrUnsupportedFileType, name, strings.Join(s.extensions, ", "))
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("dashboard: opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("dashboard: stat %s: %w", localPath, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("dashboard: %s is a directory", localPath)
	}

	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrFileTooLarge, name, info.Size(), s.maxFileSize)
	}

	res, err := s.api.UploadFile(ctx, "/images/upload/"+url.PathEscape(uid), apiclient.File{
		Name:        name,
		Content:     f,
		Size:        info.Size(),
		ContentType: contentTypeFor(name),
	}, onProgress)
	if err != nil {
		return nil, fmt.Errorf("dashboard: uploading %s: %w", name, err)
	}

	s.logger.Info("image uploaded",
		slog.String("name", name),
		slog.Int("status", res.StatusCode),
	)

	return res, nil
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}

	return "application/octet-stream"
}
