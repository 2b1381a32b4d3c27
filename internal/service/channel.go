package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"duxxan-platform/internal/cache"
	"duxxan-platform/internal/models"
)

type ChannelRepo interface {
	Create(ctx context.Context, ch *models.Channel) error
	GetByID(ctx context.Context, id int64) (*models.Channel, error)
	List(ctx context.Context) ([]models.Channel, error)
	Subscribe(ctx context.Context, channelID, userID int64) (*models.Channel, bool, error)
	Unsubscribe(ctx context.Context, channelID, userID int64) (*models.Channel, bool, error)
}

type ChannelService struct {
	channels ChannelRepo
	cache    cache.Cache
	ttl      time.Duration
	log      *zap.Logger
}

func NewChannelService(channels ChannelRepo, c cache.Cache, ttl time.Duration, log *zap.Logger) *ChannelService {
	return &ChannelService{
		channels: channels,
		cache:    c,
		ttl:      ttl,
		log:      log.Named("channels"),
	}
}

type CreateChannelInput struct {
	Name        string
	Description string
	Category    string
}

func (s *ChannelService) Create(ctx context.Context, creator *models.User, in CreateChannelInput) (*models.Channel, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, models.Invalid("name", "is required")
	case len(name) > 100:
		return nil, models.Invalid("name", "must be at most 100 characters")
	case len(in.Category) > 50:
		return nil, models.Invalid("category", "must be at most 50 characters")
	}

	ch := &models.Channel{
		CreatorID:   creator.ID,
		Name:        name,
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		return nil, err
	}

	s.log.Info("channel created", zap.Int64("channel_id", ch.ID), zap.Int64("creator_id", creator.ID))
	invalidate(ctx, s.cache, s.log, cache.KeyChannels)
	return ch, nil
}

// List returns every channel, most followed first.
func (s *ChannelService) List(ctx context.Context) ([]models.Channel, error) {
	return cachedList(ctx, s.cache, s.log, cache.KeyChannels, s.ttl, func() ([]models.Channel, error) {
		return s.channels.List(ctx)
	})
}

func (s *ChannelService) Get(ctx context.Context, id int64) (*models.Channel, error) {
	return s.channels.GetByID(ctx, id)
}

// Subscribe is idempotent; subscribing twice leaves the count unchanged.
func (s *ChannelService) Subscribe(ctx context.Context, channelID int64, user *models.User) (*models.Channel, error) {
	ch, changed, err := s.channels.Subscribe(ctx, channelID, user.ID)
	if err != nil {
		return nil, err
	}
	if changed {
		invalidate(ctx, s.cache, s.log, cache.KeyChannels)
	}
	return ch, nil
}

// Unsubscribe is idempotent as well.
func (s *ChannelService) Unsubscribe(ctx context.Context, channelID int64, user *models.User) (*models.Channel, error) {
	ch, changed, err := s.channels.Unsubscribe(ctx, channelID, user.ID)
	if err != nil {
		return nil, err
	}
	if changed {
		invalidate(ctx, s.cache, s.log, cache.KeyChannels)
	}
	return ch, nil
}
