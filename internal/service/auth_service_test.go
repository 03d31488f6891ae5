package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type authFixture struct {
	svc       *AuthServiceImpl
	txManager *mocks.MockDBTransactor
	storeRepo *mocks.MockStoreRepository
	userRepo  *mocks.MockUserRepository
	hashSvc   *mocks.MockHashService
	tokenSvc  *mocks.MockTokenService
	audit     *recordingAudit
}

func setupAuthService(t *testing.T) *authFixture {
	ctrl := gomock.NewController(t)
	f := &authFixture{
		txManager: mocks.NewMockDBTransactor(ctrl),
		storeRepo: mocks.NewMockStoreRepository(ctrl),
		userRepo:  mocks.NewMockUserRepository(ctrl),
		hashSvc:   mocks.NewMockHashService(ctrl),
		tokenSvc:  mocks.NewMockTokenService(ctrl),
		audit:     &recordingAudit{},
	}
	f.svc = NewAuthService(f.txManager, f.storeRepo, f.userRepo, f.hashSvc, f.tokenSvc, f.audit, newTestClock(), newTestLogger())
	return f
}

func TestAuthService_Register_Success(t *testing.T) {
	f := setupAuthService(t)
	ctx := context.Background()
	req := ports.RegisterRequest{
		Username:   "  Mama_Put ",
		Password:   "StrongP@ss123",
		StoreName:  "Mama Put Kitchen",
		OwnerEmail: "owner@mamaput.ng",
	}

	var created *domain.User
	f.userRepo.EXPECT().GetByUsername(ctx, "mama_put").Return(nil, nil)
	f.hashSvc.EXPECT().Hash(req.Password).Return("$argon2id$hashed", nil)
	f.txManager.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	f.storeRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, s *domain.Store) error {
			assert.Equal(t, "Mama Put Kitchen", s.Name)
			assert.Equal(t, domain.StoreStatusActive, s.Status)
			return nil
		},
	)
	f.userRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, u *domain.User) error {
			created = u
			return nil
		},
	)

	resp, err := f.svc.Register(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "mama_put", created.Username)
	assert.Equal(t, domain.RoleMerchant, created.Role)
	assert.Equal(t, "$argon2id$hashed", created.PasswordHash)
	require.NotNil(t, created.StoreID)
	assert.Equal(t, resp.StoreID, *created.StoreID)
	assert.Equal(t, resp.UserID, created.ID)
	assert.Equal(t, []domain.AuditAction{domain.AuditActionRegister}, f.audit.actions())
}

func TestAuthService_Register_DuplicateUsername(t *testing.T) {
	f := setupAuthService(t)
	ctx := context.Background()

	f.userRepo.EXPECT().GetByUsername(ctx, "taken").Return(&domain.User{Username: "taken"}, nil)

	resp, err := f.svc.Register(ctx, ports.RegisterRequest{Username: "taken", Password: "x"})
	assert.Nil(t, resp)
	assertAppError(t, err, "VAL_003")
}

func TestAuthService_Register_AccountInsertRollsBack(t *testing.T) {
	f := setupAuthService(t)
	ctx := context.Background()

	f.userRepo.EXPECT().GetByUsername(ctx, "shop").Return(nil, nil)
	f.hashSvc.EXPECT().Hash("pw").Return("h", nil)
	f.txManager.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	f.storeRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(nil)
	f.userRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(errors.New("unique violation"))

	_, err := f.svc.Register(ctx, ports.RegisterRequest{Username: "shop", Password: "pw"})
	assertAppError(t, err, "SYS_001")
	assert.Empty(t, f.audit.entries)
}

func TestAuthService_Login_Success(t *testing.T) {
	f := setupAuthService(t)
	ctx := context.Background()
	storeID := uuid.New()
	user := &domain.User{ID: uuid.New(), StoreID: &storeID, Username: "shop", PasswordHash: "h", Role: domain.RoleMerchant}
	expiry := testNow.Add(12 * time.Hour)

	f.userRepo.EXPECT().GetByUsername(ctx, "shop").Return(user, nil)
	f.hashSvc.EXPECT().Verify("pw", "h").Return(true, nil)
	f.storeRepo.EXPECT().GetByID(ctx, storeID).Return(&domain.Store{ID: storeID, Status: domain.StoreStatusActive}, nil)
	f.tokenSvc.EXPECT().Generate(user).Return("jwt", expiry, nil)

	token, exp, err := f.svc.Login(ctx, "Shop", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt", token)
	assert.Equal(t, expiry, exp)
}

func TestAuthService_Login_OpsHasNoStore(t *testing.T) {
	f := setupAuthService(t)
	ctx := context.Background()
	user := &domain.User{ID: uuid.New(), Username: "ada", PasswordHash: "h", Role: domain.RoleOps}

	f.userRepo.EXPECT().GetByUsername(ctx, "ada").Return(user, nil)
	f.hashSvc.EXPECT().Verify("pw", "h").Return(true, nil)
	f.tokenSvc.EXPECT().Generate(user).Return("jwt", testNow, nil)

	_, _, err := f.svc.Login(ctx, "ada", "pw")
	require.NoError(t, err)
}

func TestAuthService_Login_Failures(t *testing.T) {
	storeID := uuid.New()
	merchant := &domain.User{ID: uuid.New(), StoreID: &storeID, Username: "shop", PasswordHash: "h", Role: domain.RoleMerchant}

	tests := []struct {
		name  string
		setup func(f *authFixture)
		code  string
	}{
		{
			name: "unknown user",
			setup: func(f *authFixture) {
				f.userRepo.EXPECT().GetByUsername(gomock.Any(), "shop").Return(nil, nil)
			},
			code: "AUTH_001",
		},
		{
			name: "wrong password",
			setup: func(f *authFixture) {
				f.userRepo.EXPECT().GetByUsername(gomock.Any(), "shop").Return(merchant, nil)
				f.hashSvc.EXPECT().Verify("pw", "h").Return(false, nil)
			},
			code: "AUTH_001",
		},
		{
			name: "suspended store",
			setup: func(f *authFixture) {
				f.userRepo.EXPECT().GetByUsername(gomock.Any(), "shop").Return(merchant, nil)
				f.hashSvc.EXPECT().Verify("pw", "h").Return(true, nil)
				f.storeRepo.EXPECT().GetByID(gomock.Any(), storeID).Return(&domain.Store{Status: domain.StoreStatusSuspended}, nil)
			},
			code: "AUTH_004",
		},
		{
			name: "repository failure",
			setup: func(f *authFixture) {
				f.userRepo.EXPECT().GetByUsername(gomock.Any(), "shop").Return(nil, errors.New("conn reset"))
			},
			code: "SYS_001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupAuthService(t)
			tt.setup(f)
			_, _, err := f.svc.Login(context.Background(), "shop", "pw")
			assertAppError(t, err, tt.code)
		})
	}
}
