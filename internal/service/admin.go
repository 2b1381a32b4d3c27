package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"duxxan-platform/internal/audit"
	"duxxan-platform/internal/models"
	"duxxan-platform/internal/queue"
)

type AdminRepo interface {
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	CreateIfAbsent(ctx context.Context, username, passwordHash string) (bool, error)
}

type StatsReader interface {
	Stats(ctx context.Context) (*models.PlatformStats, error)
}

// JobInspector exposes the job queue to the dashboard.
type JobInspector interface {
	Pending(ctx context.Context) (int64, error)
	Failed(ctx context.Context, limit int) ([]queue.Job, error)
}

// SettlementTrigger resets a failed settlement and schedules it again.
type SettlementTrigger interface {
	Retrigger(ctx context.Context, raffleID, adminID int64) (*models.Raffle, error)
}

type AdminService struct {
	admins     AdminRepo
	stats      StatsReader
	jobs       JobInspector
	settlement SettlementTrigger
	audit      audit.Sink
	secret     []byte
	ttl        time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewAdminService(
	admins AdminRepo,
	stats StatsReader,
	jobs JobInspector,
	settlement SettlementTrigger,
	sink audit.Sink,
	secret string,
	ttl time.Duration,
	log *zap.Logger,
) *AdminService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &AdminService{
		admins:     admins,
		stats:      stats,
		jobs:       jobs,
		settlement: settlement,
		audit:      sink,
		secret:     []byte(secret),
		ttl:        ttl,
		log:        log.Named("admin"),
		now:        time.Now,
	}
}

// EnsureBootstrap creates the configured admin account when it does not exist yet.
func (s *AdminService) EnsureBootstrap(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	created, err := s.admins.CreateIfAbsent(ctx, username, string(hash))
	if err != nil {
		return err
	}
	if created {
		s.log.Info("bootstrap admin created", zap.String("username", username))
	}
	return nil
}

// Login checks the credentials and returns a signed token.
func (s *AdminService) Login(ctx context.Context, username, password string) (string, error) {
	admin, err := s.admins.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", models.ErrInvalidCredentials
	}

	token, err := s.createJWT(admin)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	s.audit.Record(ctx, audit.NewEvent(audit.ActionAdminLogin, audit.EntityAdmin, admin.ID, &admin.ID, nil))
	return token, nil
}

func (s *AdminService) createJWT(admin *models.AdminUser) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(admin.ID, 10),
		"username": admin.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken validates an admin token and returns the admin id it was issued to.
func (s *AdminService) ParseToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return 0, models.ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return 0, models.ErrInvalidToken
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, models.ErrInvalidToken
	}
	return id, nil
}

func (s *AdminService) Stats(ctx context.Context) (*models.PlatformStats, error) {
	return s.stats.Stats(ctx)
}

// JobsSummary is the queue state shown on the dashboard.
type JobsSummary struct {
	Pending int64       `json:"pending"`
	Failed  []queue.Job `json:"failed"`
}

func (s *AdminService) Jobs(ctx context.Context, limit int) (*JobsSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	pending, err := s.jobs.Pending(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := s.jobs.Failed(ctx, limit)
	if err != nil {
		return nil, err
	}
	if failed == nil {
		failed = []queue.Job{}
	}
	return &JobsSummary{Pending: pending, Failed: failed}, nil
}

// Settle re-queues the settlement of a raffle whose previous attempt failed.
func (s *AdminService) Settle(ctx context.Context, adminID, raffleID int64) (*models.Raffle, error) {
	r, err := s.settlement.Retrigger(ctx, raffleID, adminID)
	if err != nil {
		return nil, err
	}
	s.log.Info("settlement retriggered", zap.Int64("raffle_id", raffleID), zap.Int64("admin_id", adminID))
	return r, nil
}
