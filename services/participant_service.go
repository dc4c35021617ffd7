package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/agentclash/arena/models"
	"github.com/agentclash/arena/repositories"
	"github.com/agentclash/arena/storage"
	"github.com/google/uuid"
)

type ParticipantService interface {
	Register(ctx context.Context, input RegisterParticipantInput) (*models.Participant, error)
	GetByID(ctx context.Context, id string) (*models.Participant, error)
	GetSnapshots(ctx context.Context, ids []string) ([]models.Participant, error)
	UploadAvatar(ctx context.Context, id string, contentType string, reader io.Reader) (*models.Participant, error)
}

type RegisterParticipantInput struct {
	DisplayName string
}

type participantService struct {
	participantRepo repositories.ParticipantRepository
	uploader        storage.FileUploader
	logger          *slog.Logger
}

func NewParticipantService(
	participantRepo repositories.ParticipantRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) ParticipantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &participantService{
		participantRepo: participantRepo,
		uploader:        uploader,
		logger:          logger,
	}
}

func (s *participantService) Register(ctx context.Context, input RegisterParticipantInput) (*models.Participant, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, ErrParticipantNameRequired
	}

	participant := &models.Participant{
		ID:          uuid.NewString(),
		DisplayName: name,
	}

	if err := s.participantRepo.Create(ctx, participant); err != nil {
		if errors.Is(err, repositories.ErrParticipantNameConflict) {
			return nil, ErrParticipantNameConflict
		}
		return nil, fmt.Errorf("failed to register participant: %w", err)
	}
	return participant, nil
}

func (s *participantService) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	participant, err := s.participantRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant %s: %w", id, err)
	}
	s.populateAvatarURL(participant)
	return participant, nil
}

// GetSnapshots loads the frozen participant identities a match is assembled
// from. Order follows ids.
func (s *participantService) GetSnapshots(ctx context.Context, ids []string) ([]models.Participant, error) {
	participants, err := s.participantRepo.GetByIDs(ctx, ids)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrParticipantNotFound, err)
		}
		return nil, fmt.Errorf("failed to load participant snapshots: %w", err)
	}
	for i := range participants {
		s.populateAvatarURL(&participants[i])
	}
	return participants, nil
}

func (s *participantService) UploadAvatar(ctx context.Context, id string, contentType string, reader io.Reader) (*models.Participant, error) {
	participant, err := s.participantRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant %s: %w", id, err)
	}

	if s.uploader == nil {
		return nil, fmt.Errorf("%w: object storage is not configured", ErrAvatarUploadFailed)
	}

	ext, err := extensionForContentType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAvatarContentTypeInvalid, contentType)
	}

	oldTag := participant.AvatarTag
	key := fmt.Sprintf("avatars/%s/%s%s", id, uuid.NewString(), ext)

	if _, err := s.uploader.Upload(ctx, key, contentType, reader); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAvatarUploadFailed, err)
	}

	if err := s.participantRepo.UpdateAvatarTag(ctx, id, key); err != nil {
		return nil, fmt.Errorf("failed to save avatar tag: %w", err)
	}
	participant.AvatarTag = key

	if oldTag != "" && oldTag != key {
		if err := s.uploader.Delete(ctx, oldTag); err != nil {
			s.logger.WarnContext(ctx, "failed to delete previous avatar object",
				slog.String("participant_id", id),
				slog.String("key", oldTag),
				slog.Any("error", err))
		}
	}

	s.populateAvatarURL(participant)
	return participant, nil
}

func (s *participantService) populateAvatarURL(p *models.Participant) {
	if p == nil || p.AvatarTag == "" || s.uploader == nil {
		return
	}
	if url := s.uploader.GetPublicURL(p.AvatarTag); url != "" {
		p.AvatarURL = url
	}
}

func extensionForContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("no extension for content type %q", contentType)
	}
}
