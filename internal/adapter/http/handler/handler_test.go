package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"merchant-wallet-ledger/internal/adapter/http/dto"
	"merchant-wallet-ledger/internal/adapter/http/middleware"
	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/internal/core/ports/mocks"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	testNow   = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	testStore = uuid.MustParse("3c1f6a8e-0b7d-4e55-9a2c-6d4b8f1e2a90")
	testUser  = uuid.MustParse("b7e2d9c4-1f3a-4b6e-8c5d-2a9f0e7b3c61")
)

// routeAs mounts h at method+path behind a stub that injects the caller identity.
func routeAs(method, path string, store *uuid.UUID, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, func(c *gin.Context) {
		c.Set(middleware.CtxUserID, testUser)
		if store != nil {
			c.Set(middleware.CtxStoreID, *store)
		}
	}, h)
	return r
}

func serve(r *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	data, ok := decode(t, w)["data"].(map[string]any)
	require.True(t, ok, "body: %s", w.Body.String())
	return data
}

// --- Auth Handler Tests ---

func TestRegister_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	userID := uuid.New()
	mockAuth.EXPECT().Register(gomock.Any(), ports.RegisterRequest{
		Username:   "adastores",
		Password:   "password123",
		StoreName:  "Ada Stores",
		OwnerEmail: "ada@example.com",
	}).Return(&ports.RegisterResponse{StoreID: testStore, UserID: userID}, nil)

	body, _ := json.Marshal(dto.RegisterRequest{
		Username:   "adastores",
		Password:   "password123",
		StoreName:  "  Ada Stores ",
		OwnerEmail: "ada@example.com",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Register(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, testStore.String(), data["storeId"])
	assert.Equal(t, userID.String(), data["userId"])
}

func TestRegister_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewAuthHandler(mocks.NewMockAuthService(ctrl))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{"username":"a"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Register(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VAL_001", decode(t, w)["error_code"])
}

func TestLogin(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	expiry := testNow.Add(12 * time.Hour)
	mockAuth.EXPECT().Login(gomock.Any(), "adastores", "password123").Return("jwt-token", expiry, nil)
	mockAuth.EXPECT().Login(gomock.Any(), "adastores", "wrong-pass").Return("", time.Time{}, apperror.ErrInvalidCredentials())

	r := routeAs(http.MethodPost, "/login", nil, h.Login)

	w := serve(r, http.MethodPost, "/login", dto.LoginRequest{Username: "adastores", Password: "password123"})
	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, "jwt-token", data["token"])
	assert.Equal(t, float64(expiry.Unix()), data["expiry"])

	w = serve(r, http.MethodPost, "/login", dto.LoginRequest{Username: "adastores", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_001", decode(t, w)["error_code"])
}

func TestHealthCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	pg := mocks.NewMockHealthChecker(ctrl)
	rd := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Name().Return("postgresql").AnyTimes()
	rd.EXPECT().Name().Return("redis").AnyTimes()
	pg.EXPECT().Ping(gomock.Any()).Return(nil).Times(2)
	rd.EXPECT().Ping(gomock.Any()).Return(nil)
	rd.EXPECT().Ping(gomock.Any()).Return(assert.AnError)

	r := gin.New()
	r.GET("/health", HealthCheck(pg, rd))

	w := serve(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = serve(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode(t, w)["status"])
}

// --- Wallet Handler Tests ---

func TestGetWallet(t *testing.T) {
	ctrl := gomock.NewController(t)
	walletSvc := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(walletSvc, mocks.NewMockPINService(ctrl), clock.NewManual(testNow))

	walletSvc.EXPECT().GetWallet(gomock.Any(), testStore).Return(&domain.Wallet{
		StoreID:       testStore,
		Currency:      "NGN",
		AvailableKobo: 1_000_000,
		PendingKobo:   25_000,
		KYCStatus:     domain.KYCStatusVerified,
		PINSet:        true,
	}, nil)

	w := serve(routeAs(http.MethodGet, "/wallet", &testStore, h.GetWallet), http.MethodGet, "/wallet", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, float64(1_000_000), data["availableKobo"])
	assert.Equal(t, "10000.00", data["availableDisplay"])
	assert.Equal(t, "250.00", data["pendingDisplay"])
	assert.Equal(t, "VERIFIED", data["kycStatus"])
	assert.Equal(t, false, data["locked"])
}

func TestGetWallet_NoStoreForbidden(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWalletHandler(mocks.NewMockWalletService(ctrl), mocks.NewMockPINService(ctrl), clock.NewManual(testNow))

	w := serve(routeAs(http.MethodGet, "/wallet", nil, h.GetWallet), http.MethodGet, "/wallet", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListLedger_DefaultsPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	walletSvc := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(walletSvc, mocks.NewMockPINService(ctrl), clock.NewManual(testNow))

	walletSvc.EXPECT().ListLedger(gomock.Any(), testStore, 1, 20).Return([]domain.LedgerEntry{{
		ID:            uuid.New(),
		StoreID:       testStore,
		ReferenceType: domain.ReferenceWithdrawal,
		Direction:     domain.DirectionDebit,
		Account:       domain.LedgerAccountPayouts,
		AmountKobo:    150_000,
		Currency:      "NGN",
		CreatedAt:     testNow,
	}}, int64(1), nil)

	w := serve(routeAs(http.MethodGet, "/ledger", &testStore, h.ListLedger), http.MethodGet, "/ledger", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, float64(1), data["total"])
	items := data["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "1500.00", items[0].(map[string]any)["amountDisplay"])

	w = serve(routeAs(http.MethodGet, "/ledger", &testStore, h.ListLedger), http.MethodGet, "/ledger?pageSize=500", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangePIN_WrongCurrentCarriesRemaining(t *testing.T) {
	ctrl := gomock.NewController(t)
	pinSvc := mocks.NewMockPINService(ctrl)
	h := NewWalletHandler(mocks.NewMockWalletService(ctrl), pinSvc, clock.NewManual(testNow))

	pinSvc.EXPECT().ChangePIN(gomock.Any(), testStore, "1111", "2468").Return(apperror.ErrInvalidPIN(2))

	w := serve(routeAs(http.MethodPut, "/pin", &testStore, h.ChangePIN), http.MethodPut, "/pin",
		dto.ChangePINRequest{CurrentPIN: "1111", NewPIN: "2468"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "PIN_002", resp["error_code"])
	assert.Equal(t, map[string]any{"remaining_attempts": float64(2)}, resp["details"])
}

func TestSetPIN_RejectsBadFormat(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWalletHandler(mocks.NewMockWalletService(ctrl), mocks.NewMockPINService(ctrl), clock.NewManual(testNow))

	w := serve(routeAs(http.MethodPost, "/pin", &testStore, h.SetPIN), http.MethodPost, "/pin", dto.SetPINRequest{PIN: "12345"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "12345")
}

// --- Withdrawal Handler Tests ---

func TestInitiateWithdrawal(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockWithdrawalService(ctrl)
	h := NewWithdrawalHandler(svc)

	acct := uuid.New()
	exp := testNow.Add(10 * time.Minute)
	svc.EXPECT().Initiate(gomock.Any(), ports.InitiateWithdrawalRequest{
		StoreID:       testStore,
		PIN:           "1234",
		BankAccountID: acct,
		AmountKobo:    500_000,
	}).Return(&domain.Withdrawal{
		ID:            uuid.New(),
		StoreID:       testStore,
		BankAccountID: acct,
		AmountKobo:    500_000,
		Status:        domain.WithdrawalStatusPendingOTP,
		OTPHash:       strPtr("secret-hash"),
		OTPExpiresAt:  &exp,
		ReferenceCode: "WD-20260302-ABC234",
	}, nil)

	w := serve(routeAs(http.MethodPost, "/withdrawals", &testStore, h.Initiate), http.MethodPost, "/withdrawals",
		dto.InitiateWithdrawalRequest{PIN: "1234", BankAccountID: acct.String(), AmountKobo: 500_000})

	require.Equal(t, http.StatusCreated, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, "PENDING_OTP", data["status"])
	assert.Equal(t, "WD-20260302-ABC234", data["referenceCode"])
	assert.Equal(t, "2026-03-02T09:40:00Z", data["otpExpiresAt"])
	assert.NotContains(t, w.Body.String(), "secret-hash")
}

func TestInitiateWithdrawal_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockWithdrawalService(ctrl)
	h := NewWithdrawalHandler(svc)

	svc.EXPECT().Initiate(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInsufficientFunds())

	w := serve(routeAs(http.MethodPost, "/withdrawals", &testStore, h.Initiate), http.MethodPost, "/withdrawals",
		dto.InitiateWithdrawalRequest{PIN: "1234", BankAccountID: uuid.NewString(), AmountKobo: 5_000_000})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "STATE", resp["error"])
	assert.Equal(t, "STATE_002", resp["error_code"])
}

func TestConfirmWithdrawal_StatusCodes(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name       string
		result     *domain.Withdrawal
		err        error
		wantStatus int
		wantCode   string
	}{
		{"settled", &domain.Withdrawal{ID: id, Status: domain.WithdrawalStatusSuccess}, nil, http.StatusOK, ""},
		{"awaiting provider", &domain.Withdrawal{ID: id, Status: domain.WithdrawalStatusProcessing}, nil, http.StatusAccepted, ""},
		{"kyc gate", nil, apperror.ErrKYCRequired(), http.StatusForbidden, "KYC_REQUIRED"},
		{"expired otp", nil, apperror.ErrOTPExpired(), http.StatusUnauthorized, "OTP_002"},
		{"provider down", nil, apperror.ErrExternalProvider(assert.AnError), http.StatusBadGateway, "PROV_001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc := mocks.NewMockWithdrawalService(ctrl)
			svc.EXPECT().Confirm(gomock.Any(), testStore, id, "123456").Return(tt.result, tt.err)
			r := routeAs(http.MethodPost, "/withdrawals/:id/confirm", &testStore, NewWithdrawalHandler(svc).Confirm)

			w := serve(r, http.MethodPost, "/withdrawals/"+id.String()+"/confirm", dto.ConfirmWithdrawalRequest{OTPCode: "123456"})

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decode(t, w)["error_code"])
			}
		})
	}
}

func TestWithdrawalRoutes_InvalidID(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWithdrawalHandler(mocks.NewMockWithdrawalService(ctrl))

	w := serve(routeAs(http.MethodGet, "/withdrawals/:id", &testStore, h.Get), http.MethodGet, "/withdrawals/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(routeAs(http.MethodPost, "/withdrawals/:id/cancel", &testStore, h.Cancel), http.MethodPost, "/withdrawals/42/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListWithdrawals(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockWithdrawalService(ctrl)
	svc.EXPECT().List(gomock.Any(), testStore, 2, 5).Return([]domain.Withdrawal{
		{ID: uuid.New(), Status: domain.WithdrawalStatusFailed, FailureReason: strPtr("cancelled by merchant")},
	}, int64(6), nil)

	r := routeAs(http.MethodGet, "/withdrawals", &testStore, NewWithdrawalHandler(svc).List)
	w := serve(r, http.MethodGet, "/withdrawals?page=2&pageSize=5", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, float64(6), data["total"])
	assert.Equal(t, float64(2), data["page"])
	assert.Len(t, data["items"], 1)
}

// --- KYC / Beneficiary Handler Tests ---

func TestSubmitKYC_DoesNotEchoIdentifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewKYCHandler(mocks.NewMockKYCService(ctrl))

	w := serve(routeAs(http.MethodPost, "/kyc", &testStore, h.Submit), http.MethodPost, "/kyc",
		dto.SubmitKYCRequest{IDType: "BVN", IDNumber: "2234567890", FullName: "Ada Obi"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "2234567890")
}

func TestSubmitKYC_PassesActor(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockKYCService(ctrl)
	svc.EXPECT().Submit(gomock.Any(), ports.SubmitKYCRequest{
		StoreID:  testStore,
		IDType:   domain.IDTypeNIN,
		IDNumber: "12345678901",
		FullName: "Ada Obi",
		Actor:    testUser.String(),
	}).Return(&domain.KycRecord{ID: uuid.New(), IDNumberMasked: "*******8901", Status: domain.KYCStatusPending}, nil)

	w := serve(routeAs(http.MethodPost, "/kyc", &testStore, NewKYCHandler(svc).Submit), http.MethodPost, "/kyc",
		dto.SubmitKYCRequest{IDType: "NIN", IDNumber: "12345678901", FullName: "Ada Obi"})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "*******8901", dataOf(t, w)["id_number_masked"])
	assert.NotContains(t, w.Body.String(), "12345678901")
}

func TestReviewKYC(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockKYCService(ctrl)
	recID := uuid.New()
	svc.EXPECT().Review(gomock.Any(), ports.ReviewKYCRequest{
		RecordID: recID,
		Decision: domain.KYCDecisionReject,
		Reason:   "name mismatch",
		Actor:    testUser.String(),
	}).Return(&domain.KycRecord{ID: recID, Status: domain.KYCStatusRejected}, nil)

	r := routeAs(http.MethodPost, "/kyc/:id/review", nil, NewKYCHandler(svc).Review)
	w := serve(r, http.MethodPost, "/kyc/"+recID.String()+"/review", dto.ReviewKYCRequest{Decision: "REJECT", Reason: "name mismatch"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodPost, "/kyc/"+recID.String()+"/review", dto.ReviewKYCRequest{Decision: "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddBeneficiary_Duplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockBeneficiaryService(ctrl)
	svc.EXPECT().Add(gomock.Any(), ports.AddBeneficiaryRequest{
		StoreID:       testStore,
		BankCode:      "058",
		AccountNumber: "0123456789",
		AccountName:   "Ada Stores",
	}).Return(nil, apperror.ErrDuplicate("Beneficiary"))

	r := routeAs(http.MethodPost, "/beneficiaries", &testStore, NewBeneficiaryHandler(svc).Add)
	w := serve(r, http.MethodPost, "/beneficiaries", dto.AddBeneficiaryRequest{BankCode: "058", AccountNumber: "0123456789", AccountName: "Ada Stores"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "VAL_003", decode(t, w)["error_code"])
}

func TestDeactivateBeneficiary(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockBeneficiaryService(ctrl)
	id := uuid.New()
	svc.EXPECT().Deactivate(gomock.Any(), testStore, id).Return(nil)

	r := routeAs(http.MethodDelete, "/beneficiaries/:id", &testStore, NewBeneficiaryHandler(svc).Deactivate)
	w := serve(r, http.MethodDelete, "/beneficiaries/"+id.String(), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, dataOf(t, w)["isActive"])
}

// --- Webhook Handler Tests ---

func TestWebhookReceive_Outcomes(t *testing.T) {
	body := []byte(`{"event":"charge.success"}`)
	tests := []struct {
		name       string
		result     *ports.WebhookResult
		err        error
		wantStatus int
	}{
		{"processed", &ports.WebhookResult{Outcome: ports.WebhookOutcomeProcessed, EventID: "evt-1"}, nil, http.StatusOK},
		{"duplicate", &ports.WebhookResult{Outcome: ports.WebhookOutcomeDuplicate, EventID: "evt-1"}, nil, http.StatusOK},
		{"in progress", &ports.WebhookResult{Outcome: ports.WebhookOutcomeInProgress, EventID: "evt-1"}, nil, http.StatusAccepted},
		{"settlement failed", nil, apperror.InternalError(assert.AnError), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc := mocks.NewMockWebhookService(ctrl)
			svc.EXPECT().HandleEvent(gomock.Any(), "paystack", body).Return(tt.result, tt.err)

			r := gin.New()
			r.POST("/webhooks/:provider", func(c *gin.Context) {
				c.Set(middleware.CtxRawBody, body)
			}, NewWebhookHandler(svc).Receive)

			w := serve(r, http.MethodPost, "/webhooks/paystack", nil)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestWebhookReceive_WithoutVerifiedBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := gin.New()
	r.POST("/webhooks/:provider", NewWebhookHandler(mocks.NewMockWebhookService(ctrl)).Receive)

	w := serve(r, http.MethodPost, "/webhooks/paystack", map[string]string{"event": "charge.success"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- Ops Handler Tests ---

func newOpsFixture(t *testing.T) (*OpsHandler, *mocks.MockLockService, *mocks.MockWithdrawalService, *mocks.MockReconciliationService, *mocks.MockMonitoringService) {
	ctrl := gomock.NewController(t)
	locks := mocks.NewMockLockService(ctrl)
	withdrawals := mocks.NewMockWithdrawalService(ctrl)
	recon := mocks.NewMockReconciliationService(ctrl)
	mon := mocks.NewMockMonitoringService(ctrl)
	return NewOpsHandler(locks, withdrawals, recon, mon), locks, withdrawals, recon, mon
}

func TestAcquireLock(t *testing.T) {
	h, locks, _, _, _ := newOpsFixture(t)
	id := uuid.New()
	actor := testUser.String()
	locks.EXPECT().Acquire(gomock.Any(), domain.LockKindWithdrawal, id, actor).
		Return(&domain.LockHolder{Kind: domain.LockKindWithdrawal, ID: id, LockedBy: &actor, LockedAt: timePtr(testNow)}, nil)
	locks.EXPECT().Acquire(gomock.Any(), domain.LockKindExportJob, id, actor).Return(nil, apperror.ErrLockHeld("admin-b"))

	r := routeAs(http.MethodPost, "/locks/:kind/:id", nil, h.AcquireLock)

	w := serve(r, http.MethodPost, "/locks/withdrawal/"+id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, actor, dataOf(t, w)["locked_by"])

	w = serve(r, http.MethodPost, "/locks/export_job/"+id.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "LOCK", resp["error"])
	assert.Equal(t, "admin-b", resp["details"].(map[string]any)["locked_by"])

	w = serve(r, http.MethodPost, "/locks/order/"+id.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReleaseLock_NotOwner(t *testing.T) {
	h, locks, _, _, _ := newOpsFixture(t)
	id := uuid.New()
	locks.EXPECT().Release(gomock.Any(), domain.LockKindExportJob, id, testUser.String()).Return(apperror.ErrLockNotOwned())

	w := serve(routeAs(http.MethodDelete, "/locks/:kind/:id", nil, h.ReleaseLock), http.MethodDelete, "/locks/export_job/"+id.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LOCK_003", decode(t, w)["error_code"])
}

func TestResolveWithdrawal(t *testing.T) {
	h, _, withdrawals, _, _ := newOpsFixture(t)
	id := uuid.New()
	withdrawals.EXPECT().Resolve(gomock.Any(), ports.ResolveWithdrawalRequest{
		WithdrawalID:      id,
		Actor:             testUser.String(),
		Succeeded:         true,
		ProviderReference: "TRF_99",
	}).Return(&domain.Withdrawal{ID: id, Status: domain.WithdrawalStatusSuccess, ProviderReference: strPtr("TRF_99")}, nil)

	r := routeAs(http.MethodPost, "/withdrawals/:id/resolve", nil, h.ResolveWithdrawal)
	w := serve(r, http.MethodPost, "/withdrawals/"+id.String()+"/resolve", dto.ResolveWithdrawalRequest{Outcome: "SUCCESS", ProviderReference: "TRF_99"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SUCCESS", dataOf(t, w)["status"])

	w = serve(r, http.MethodPost, "/withdrawals/"+id.String()+"/resolve", dto.ResolveWithdrawalRequest{Outcome: "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListIncidents_RunID(t *testing.T) {
	h, _, _, recon, _ := newOpsFixture(t)
	runID := uuid.New()
	recon.EXPECT().ListIncidents(gomock.Any(), gomock.Nil()).Return([]domain.ReconciliationIncident{}, nil)
	recon.EXPECT().ListIncidents(gomock.Any(), &runID).Return([]domain.ReconciliationIncident{{RunID: runID, DeltaKobo: 50_000}}, nil)

	r := routeAs(http.MethodGet, "/incidents", nil, h.ListIncidents)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/incidents", nil).Code)

	w := serve(r, http.MethodGet, "/incidents?runId="+runID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, float64(50_000), items[0].(map[string]any)["delta_kobo"])

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/incidents?runId=latest", nil).Code)
}

func TestLogStuckOps_And_SlowPaths(t *testing.T) {
	h, _, _, _, mon := newOpsFixture(t)
	mon.EXPECT().LogStuckOps(gomock.Any(), testUser.String()).Return(3, nil)
	mon.EXPECT().SlowPaths().Return([]ports.SlowPath{{Method: "GET", Path: "/api/v1/wallet", Status: 200, Duration: time.Second}})

	w := serve(routeAs(http.MethodPost, "/stuck-ops/log", nil, h.LogStuckOps), http.MethodPost, "/stuck-ops/log", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), dataOf(t, w)["logged"])

	w = serve(routeAs(http.MethodGet, "/slow-paths", nil, h.SlowPaths), http.MethodGet, "/slow-paths", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)
}

// --- Export Handler Tests ---

func TestExportDownload(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockExportService(ctrl)
	id := uuid.New()
	svc.EXPECT().Download(gomock.Any(), id).Return(&domain.ExportJob{
		ID:        id,
		StoreID:   testStore,
		Status:    domain.ExportJobStatusReady,
		Content:   []byte("id,direction\n1,CREDIT\n"),
		CreatedAt: testNow,
	}, nil)

	r := routeAs(http.MethodGet, "/exports/:id/download", nil, NewExportHandler(svc).Download)
	w := serve(r, http.MethodGet, "/exports/"+id.String()+"/download", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment;")
	assert.Equal(t, "id,direction\n1,CREDIT\n", w.Body.String())
}

func TestExportExpire_RequiresLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockExportService(ctrl)
	id := uuid.New()
	svc.EXPECT().Expire(gomock.Any(), id, testUser.String()).Return(nil, apperror.ErrLockNotOwned())

	r := routeAs(http.MethodPost, "/exports/:id/expire", nil, NewExportHandler(svc).Expire)
	w := serve(r, http.MethodPost, "/exports/"+id.String()+"/expire", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
