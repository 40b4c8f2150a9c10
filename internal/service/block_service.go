package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type BlockRequest struct {
	ProfessionalID string    `json:"professional_id,omitempty" validate:"omitempty,uuid"`
	Start          time.Time `json:"start" validate:"required"`
	End            time.Time `json:"end" validate:"required,gtfield=Start"`
	Reason         string    `json:"reason,omitempty" validate:"max=255"`
}

type BlockService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewBlockService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *BlockService {
	return &BlockService{repo: repo, eventBus: eventBus, validate: newValidator(), logger: logger}
}

func (s *BlockService) checkRequest(ctx context.Context, companyID string, req *BlockRequest) error {
	req.Reason = strings.TrimSpace(req.Reason)
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	if err := validateStruct(s.validate, req); err != nil {
		return err
	}
	if req.ProfessionalID == "" {
		return nil
	}
	p, err := s.repo.GetProfessional(ctx, req.ProfessionalID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && p.CompanyID != companyID) {
		return domain.NewValidationError("professional_id", "unknown professional")
	}
	return dataAccess("get professional", err)
}

func (s *BlockService) Create(ctx context.Context, companyID string, req BlockRequest) (*models.TimeBlock, error) {
	if err := s.checkRequest(ctx, companyID, &req); err != nil {
		return nil, err
	}
	b := &models.TimeBlock{
		CompanyID:      companyID,
		ProfessionalID: models.OptionalString(req.ProfessionalID),
		Start:          req.Start,
		End:            req.End,
		Reason:         req.Reason,
	}
	if err := s.repo.CreateTimeBlock(ctx, b); err != nil {
		return nil, dataAccess("create time block", err)
	}
	s.publish(events.EventTimeBlockCreated, b)
	return b, nil
}

func (s *BlockService) Update(ctx context.Context, companyID, id string, req BlockRequest) (*models.TimeBlock, error) {
	if err := s.checkRequest(ctx, companyID, &req); err != nil {
		return nil, err
	}
	b, err := s.get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	b.ProfessionalID = models.OptionalString(req.ProfessionalID)
	b.Start, b.End, b.Reason = req.Start, req.End, req.Reason
	if err := s.repo.UpdateTimeBlock(ctx, b); err != nil {
		return nil, dataAccess("update time block", err)
	}
	s.publish(events.EventTimeBlockUpdated, b)
	return b, nil
}

func (s *BlockService) Delete(ctx context.Context, companyID, id string) error {
	b, err := s.get(ctx, companyID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTimeBlock(ctx, id); err != nil {
		return dataAccess("delete time block", err)
	}
	s.publish(events.EventTimeBlockDeleted, b)
	return nil
}

// List returns blocks of companyID intersecting [from, to).
func (s *BlockService) List(ctx context.Context, companyID string, from, to time.Time, professionalID string) ([]*models.TimeBlock, error) {
	if !from.Before(to) {
		return nil, domain.NewValidationError("to", "must be after from")
	}
	blocks, err := s.repo.ListTimeBlocks(ctx, models.TimeBlockFilter{
		CompanyID:      companyID,
		ProfessionalID: models.OptionalString(professionalID),
		From:           from,
		To:             to,
	})
	if err != nil {
		return nil, dataAccess("list time blocks", err)
	}
	if blocks == nil {
		blocks = []*models.TimeBlock{}
	}
	return blocks, nil
}

// get loads a block owned by companyID; other companies' blocks are not found.
func (s *BlockService) get(ctx context.Context, companyID, id string) (*models.TimeBlock, error) {
	b, err := s.repo.GetTimeBlock(ctx, id)
	if err != nil {
		return nil, dataAccess("get time block", err)
	}
	if b.CompanyID != companyID {
		return nil, fmt.Errorf("time block %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

func (s *BlockService) publish(eventType string, b *models.TimeBlock) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.PublishJSON(eventType, events.TimeBlockEventPayload{
		BlockID:        b.ID,
		CompanyID:      b.CompanyID,
		ProfessionalID: models.StringValue(b.ProfessionalID),
		Start:          b.Start,
		End:            b.End,
		Reason:         b.Reason,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("block_id", b.ID).Msg("publish event error")
	}
}
