package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"cvbuilder/api/internal/config"
	"cvbuilder/api/internal/ids"
	"cvbuilder/api/internal/media/sniffer"
	"cvbuilder/api/internal/models"
	"cvbuilder/api/internal/repository"
	"cvbuilder/api/internal/storage"
)

var (
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrNoFile           = errors.New("no file provided")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrInvalidSnapshot  = errors.New("invalid snapshot payload")
)

// ObjectUploader is satisfied by *storage.ObjectStore.
type ObjectUploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// SnapshotService persists full wizard snapshots and payment proofs.
type SnapshotService struct {
	store    repository.SessionStore
	uploader ObjectUploader
	cfg      config.AnalyticsConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewSnapshotService keeps images inline as data URLs when uploader is nil.
func NewSnapshotService(store repository.SessionStore, uploader ObjectUploader, cfg config.AnalyticsConfig, log zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		store:    store,
		uploader: uploader,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

type SaveRequest struct {
	SessionID        string          `json:"sessionId"`
	CVData           json.RawMessage `json:"cvData,omitempty"`
	ProfilePhoto     *string         `json:"profilePhoto,omitempty"`
	PaymentProofData *string         `json:"paymentProofData,omitempty"`
	AdvancedData     json.RawMessage `json:"advancedData,omitempty"`
	CurrentStep      *int            `json:"currentStep,omitempty"`
}

type SaveResult struct {
	SessionID string    `json:"sessionId"`
	SavedAt   time.Time `json:"savedAt"`
}

// Save decodes a raw snapshot body. Bodies over analytics.maxsavebytes are
// rejected before decoding.
func (s *SnapshotService) Save(ctx context.Context, body []byte) (SaveResult, error) {
	if s.cfg.MaxSaveBytes > 0 && int64(len(body)) > s.cfg.MaxSaveBytes {
		return SaveResult{}, ErrPayloadTooLarge
	}

	var req SaveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return SaveResult{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if req.SessionID == "" {
		return SaveResult{}, ErrSessionIDRequired
	}

	patch := models.SessionPatch{
		CurrentStep:      req.CurrentStep,
		CVData:           req.CVData,
		ProfilePhoto:     s.offload(ctx, "photos/"+req.SessionID, req.ProfilePhoto),
		PaymentProofData: s.offload(ctx, "proofs/"+req.SessionID, req.PaymentProofData),
		AdvancedData:     req.AdvancedData,
	}

	session, err := s.store.UpsertSession(ctx, req.SessionID, patch, nil)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save snapshot %s: %w", req.SessionID, err)
	}
	return SaveResult{SessionID: session.ID, SavedAt: s.now().UTC()}, nil
}

// offload moves a data URL image into the object store and returns its URL.
// Anything it cannot upload is kept as sent.
func (s *SnapshotService) offload(ctx context.Context, prefix string, value *string) *string {
	if value == nil || s.uploader == nil {
		return value
	}

	_, data, err := storage.ParseDataURL(*value)
	if err != nil {
		return value
	}
	kind, err := sniffer.DetectHead(data)
	if err != nil {
		s.log.Warn().Str("prefix", prefix).Msg("inline image has unknown type, keeping data url")
		return value
	}

	key := fmt.Sprintf("%s/%s.%s", prefix, ids.New(), kind.Extension())
	url, err := s.uploader.Put(ctx, key, data, kind.MIME)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("image upload failed, keeping data url")
		return value
	}
	return &url
}

type ProofInput struct {
	SessionID    string
	CustomerName string
	Phone        string
	File         io.Reader
	Size         int64
}

type ProofResult struct {
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	SessionID string `json:"sessionId,omitempty"`
}

var whitespace = regexp.MustCompile(`\s+`)

func (s *SnapshotService) UploadProof(ctx context.Context, input ProofInput) (ProofResult, error) {
	if input.File == nil {
		return ProofResult{}, ErrNoFile
	}
	limit := s.cfg.MaxProofBytes
	if limit > 0 && input.Size > limit {
		return ProofResult{}, ErrPayloadTooLarge
	}

	reader := input.File
	if limit > 0 {
		reader = io.LimitReader(reader, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return ProofResult{}, fmt.Errorf("read proof: %w", err)
	}
	if len(data) == 0 {
		return ProofResult{}, ErrNoFile
	}
	if limit > 0 && int64(len(data)) > limit {
		return ProofResult{}, ErrPayloadTooLarge
	}

	kind, err := sniffer.DetectHead(data)
	if err != nil {
		return ProofResult{}, ErrUnsupportedImage
	}

	filename := proofFilename(input.CustomerName, s.now(), kind)
	url := storage.EncodeDataURL(kind.MIME, data)
	if s.uploader != nil {
		url, err = s.uploader.Put(ctx, "proofs/"+filename, data, kind.MIME)
		if err != nil {
			return ProofResult{}, err
		}
	}

	s.log.Info().
		Str("customer", input.CustomerName).
		Str("phone", input.Phone).
		Str("filename", filename).
		Int("bytes", len(data)).
		Msg("payment proof received")

	if input.SessionID != "" {
		if _, err := s.store.UpsertSession(ctx, input.SessionID, models.SessionPatch{PaymentProofURL: &url}, nil); err != nil {
			return ProofResult{}, fmt.Errorf("attach proof to %s: %w", input.SessionID, err)
		}
	}

	return ProofResult{URL: url, Filename: filename, SessionID: input.SessionID}, nil
}

func proofFilename(customer string, now time.Time, kind sniffer.Result) string {
	name := []rune(whitespace.ReplaceAllString(customer, "_"))
	if len(name) > 20 {
		name = name[:20]
	}
	return "proof_" + string(name) + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "." + kind.Extension()
}

var _ ObjectUploader = (*storage.ObjectStore)(nil)
