package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	txManager ports.DBTransactor
	storeRepo ports.StoreRepository
	userRepo  ports.UserRepository
	hashSvc   ports.HashService
	tokenSvc  ports.TokenService
	auditSvc  ports.AuditService
	clock     clock.Clock
	log       zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	txManager ports.DBTransactor,
	storeRepo ports.StoreRepository,
	userRepo ports.UserRepository,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	auditSvc ports.AuditService,
	clk clock.Clock,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		txManager: txManager,
		storeRepo: storeRepo,
		userRepo:  userRepo,
		hashSvc:   hashSvc,
		tokenSvc:  tokenSvc,
		auditSvc:  auditSvc,
		clock:     clk,
		log:       log,
	}
}

// Register creates a store and its owner account in one transaction. The
// wallet is created lazily on the first balance read or credit.
func (s *AuthServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*ports.RegisterResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check username: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicate("Username")
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	now := s.clock.Now()
	store := &domain.Store{
		ID:         uuid.New(),
		Name:       req.StoreName,
		OwnerEmail: req.OwnerEmail,
		OwnerPhone: req.OwnerPhone,
		Status:     domain.StoreStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	user := &domain.User{
		ID:           uuid.New(),
		StoreID:      &store.ID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         domain.RoleMerchant,
		CreatedAt:    now,
	}

	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.storeRepo.Create(ctx, dbTx, store); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create store: %w", err))
	}
	if err := s.userRepo.Create(ctx, dbTx, user); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create account: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	s.log.Info().Str("store_id", store.ID.String()).Str("username", username).Msg("store registered")
	s.auditSvc.Log(ctx, &domain.AuditEntry{
		Actor:    user.ID.String(),
		Action:   domain.AuditActionRegister,
		Entity:   "store",
		EntityID: store.ID.String(),
		After:    domain.Snapshot(store),
	})

	return &ports.RegisterResponse{StoreID: store.ID, UserID: user.ID}, nil
}

// Login validates credentials and returns a JWT token. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("find account: %w", err))
	}
	if user == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, user.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	if user.Role == domain.RoleMerchant && user.StoreID != nil {
		store, err := s.storeRepo.GetByID(ctx, *user.StoreID)
		if err != nil {
			return "", time.Time{}, apperror.InternalError(fmt.Errorf("find store: %w", err))
		}
		if store == nil || !store.IsActive() {
			return "", time.Time{}, apperror.ErrForbidden()
		}
	}

	token, expiry, err := s.tokenSvc.Generate(user)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.auditSvc.Log(ctx, &domain.AuditEntry{
		Actor:    user.ID.String(),
		Action:   domain.AuditActionLogin,
		Entity:   "account",
		EntityID: user.ID.String(),
	})

	return token, expiry, nil
}
