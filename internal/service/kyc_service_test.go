package service

import (
	"context"
	"testing"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type kycFixture struct {
	svc       *KYCServiceImpl
	audit     *recordingAudit
	txManager *mocks.MockDBTransactor
	kyc       *mocks.MockKYCRepository
	wallets   *mocks.MockWalletRepository
	enc       *mocks.MockEncryptionService
}

func setupKYCService(t *testing.T) *kycFixture {
	ctrl := gomock.NewController(t)
	f := &kycFixture{
		audit:     &recordingAudit{},
		txManager: mocks.NewMockDBTransactor(ctrl),
		kyc:       mocks.NewMockKYCRepository(ctrl),
		wallets:   mocks.NewMockWalletRepository(ctrl),
		enc:       mocks.NewMockEncryptionService(ctrl),
	}
	f.svc = NewKYCService(f.txManager, f.kyc, f.wallets, f.enc, f.audit, newTestClock(), newTestLogger())
	return f
}

func TestKYCSubmit_StoresMaskedAndMarksWalletPending(t *testing.T) {
	f := setupKYCService(t)
	storeID := uuid.New()

	f.enc.EXPECT().Encrypt("22212345678").Return("ciphertext", nil)
	f.txManager.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
	f.wallets.EXPECT().LockOrCreate(gomock.Any(), gomock.Any(), storeID).
		Return(&domain.Wallet{StoreID: storeID, KYCStatus: domain.KYCStatusNotStarted}, nil)
	f.kyc.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, _ pgx.Tx, r *domain.KycRecord) error {
		assert.Equal(t, "ciphertext", r.IDNumberEncrypted)
		return nil
	})
	f.wallets.EXPECT().UpdateKYCStatus(gomock.Any(), gomock.Any(), storeID, domain.KYCStatusPending).Return(nil)

	rec, err := f.svc.Submit(context.Background(), ports.SubmitKYCRequest{
		StoreID: storeID, IDType: domain.IDTypeBVN, IDNumber: "22212345678", FullName: " Ada Obi ", Actor: "ada",
	})
	require.NoError(t, err)
	assert.Equal(t, "*******5678", rec.IDNumberMasked)
	assert.Equal(t, "Ada Obi", rec.FullName)
	assert.Equal(t, domain.KYCStatusPending, rec.Status)
	assert.Equal(t, []domain.AuditAction{domain.AuditActionKYCSubmitted}, f.audit.actions())
	assert.NotContains(t, string(f.audit.entries[0].After), "22212345678")
}

func TestKYCSubmit_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  ports.SubmitKYCRequest
	}{
		{"bad id type", ports.SubmitKYCRequest{IDType: "PASSPORT", IDNumber: "22212345678", FullName: "Ada"}},
		{"short number", ports.SubmitKYCRequest{IDType: domain.IDTypeNIN, IDNumber: "1234", FullName: "Ada"}},
		{"non digits", ports.SubmitKYCRequest{IDType: domain.IDTypeNIN, IDNumber: "2221234567x", FullName: "Ada"}},
		{"blank name", ports.SubmitKYCRequest{IDType: domain.IDTypeNIN, IDNumber: "22212345678", FullName: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupKYCService(t)
			_, err := f.svc.Submit(context.Background(), tt.req)
			assertAppError(t, err, "VAL_001")
		})
	}
}

func TestKYCSubmit_RejectedWhilePendingOrVerified(t *testing.T) {
	for _, status := range []domain.KYCStatus{domain.KYCStatusPending, domain.KYCStatusVerified} {
		t.Run(string(status), func(t *testing.T) {
			f := setupKYCService(t)
			f.enc.EXPECT().Encrypt(gomock.Any()).Return("ciphertext", nil)
			f.txManager.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
			f.wallets.EXPECT().LockOrCreate(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(&domain.Wallet{KYCStatus: status}, nil)

			_, err := f.svc.Submit(context.Background(), ports.SubmitKYCRequest{
				StoreID: uuid.New(), IDType: domain.IDTypeNIN, IDNumber: "22212345678", FullName: "Ada",
			})
			assertAppError(t, err, "STATE_001")
			assert.Empty(t, f.audit.entries)
		})
	}
}

func TestKYCReview(t *testing.T) {
	tests := []struct {
		name     string
		decision domain.KYCDecision
		reason   string
		status   domain.KYCStatus
		action   domain.AuditAction
	}{
		{"approve", domain.KYCDecisionApprove, "", domain.KYCStatusVerified, domain.AuditActionKYCApproved},
		{"reject", domain.KYCDecisionReject, "name mismatch", domain.KYCStatusRejected, domain.AuditActionKYCRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupKYCService(t)
			rec := &domain.KycRecord{ID: uuid.New(), StoreID: uuid.New(), Status: domain.KYCStatusPending}

			f.txManager.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
			f.kyc.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Any(), rec.ID).Return(rec, nil)
			f.kyc.EXPECT().UpdateReview(gomock.Any(), gomock.Any(), rec).Return(nil)
			f.wallets.EXPECT().UpdateKYCStatus(gomock.Any(), gomock.Any(), rec.StoreID, tt.status).Return(nil)

			got, err := f.svc.Review(context.Background(), ports.ReviewKYCRequest{
				RecordID: rec.ID, Decision: tt.decision, Reason: tt.reason, Actor: "ops-a",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			require.NotNil(t, got.ReviewedBy)
			assert.Equal(t, "ops-a", *got.ReviewedBy)
			assert.Equal(t, testNow, *got.ReviewedAt)
			assert.Equal(t, []domain.AuditAction{tt.action}, f.audit.actions())
			assert.Contains(t, string(f.audit.entries[0].Before), `"PENDING"`)
		})
	}
}

func TestKYCReview_Rejections(t *testing.T) {
	t.Run("reject needs a reason", func(t *testing.T) {
		f := setupKYCService(t)
		_, err := f.svc.Review(context.Background(), ports.ReviewKYCRequest{RecordID: uuid.New(), Decision: domain.KYCDecisionReject})
		assertAppError(t, err, "VAL_001")
	})

	t.Run("already reviewed", func(t *testing.T) {
		f := setupKYCService(t)
		rec := &domain.KycRecord{ID: uuid.New(), Status: domain.KYCStatusVerified}
		f.txManager.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
		f.kyc.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Any(), rec.ID).Return(rec, nil)

		_, err := f.svc.Review(context.Background(), ports.ReviewKYCRequest{RecordID: rec.ID, Decision: domain.KYCDecisionApprove, Actor: "ops-a"})
		assertAppError(t, err, "STATE_001")
	})

	t.Run("commit failure", func(t *testing.T) {
		f := setupKYCService(t)
		rec := &domain.KycRecord{ID: uuid.New(), Status: domain.KYCStatusPending}
		f.txManager.EXPECT().Begin(gomock.Any()).Return(&failingCommitTx{}, nil)
		f.kyc.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Any(), rec.ID).Return(rec, nil)
		f.kyc.EXPECT().UpdateReview(gomock.Any(), gomock.Any(), rec).Return(nil)
		f.wallets.EXPECT().UpdateKYCStatus(gomock.Any(), gomock.Any(), gomock.Any(), domain.KYCStatusVerified).Return(nil)

		_, err := f.svc.Review(context.Background(), ports.ReviewKYCRequest{RecordID: rec.ID, Decision: domain.KYCDecisionApprove, Actor: "ops-a"})
		assertAppError(t, err, "SYS_001")
		assert.Empty(t, f.audit.entries)
	})
}

func TestKYCGetLatest_NotFound(t *testing.T) {
	f := setupKYCService(t)
	f.kyc.EXPECT().GetLatestByStore(gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := f.svc.GetLatest(context.Background(), uuid.New())
	assertAppError(t, err, "STATE_004")
}
