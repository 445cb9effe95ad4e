package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
	"github.com/DanielPopoola/marketplace-escrow/internal/logctx"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
)

var fieldValidator = validator.New()

// Gate is the kill-switch check consumed by the orchestrators.
type Gate interface {
	RequireEnabled(ctx context.Context, feature string) error
}

// PaymentIntentService accepts a request to pay for a booking, charges it through
// the provider that serves the chosen method and opens the escrow hold.
type PaymentIntentService struct {
	repo      ports.Repository
	bookings  ports.BookingReader
	providers ports.ProviderResolver
	limiter   ports.RateLimiter
	gate      Gate
	escrows   *EscrowService
	cfg       config.PaymentsConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewPaymentIntentService(
	repo ports.Repository,
	bookings ports.BookingReader,
	providers ports.ProviderResolver,
	limiter ports.RateLimiter,
	gate Gate,
	escrows *EscrowService,
	cfg config.PaymentsConfig,
	logger *slog.Logger,
) *PaymentIntentService {
	return &PaymentIntentService{
		repo:      repo,
		bookings:  bookings,
		providers: providers,
		limiter:   limiter,
		gate:      gate,
		escrows:   escrows,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *PaymentIntentService) CreatePaymentIntent(
	ctx context.Context,
	req domain.PaymentIntentRequest,
	caller *domain.Caller,
) (*domain.PaymentIntentResult, error) {
	logger := logctx.From(ctx, s.logger)

	if err := s.gate.RequireEnabled(ctx, domain.FeaturePayments); err != nil {
		return nil, err
	}
	logger.Debug("gate_checked", "feature", domain.FeaturePayments)

	if !caller.IsAuthenticated() {
		return nil, domain.NewUnauthenticatedError()
	}
	logger = logger.With("user_id", caller.UserID)

	if err := s.limiter.Enforce(ctx, caller.UserID, domain.OperationCreateIntent); err != nil {
		logger.Warn("rate limit rejected call", "operation", domain.OperationCreateIntent, "error", err)
		return nil, err
	}

	req = s.normalize(req)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	requestHash := hashRequest(req)
	if req.IdempotencyKey != "" {
		replay, err := s.replay(ctx, caller.UserID, req.IdempotencyKey, requestHash)
		if err != nil || replay != nil {
			return replay, err
		}
	}

	booking, err := s.checkBooking(ctx, req.BookingID, caller.UserID, req.Amount)
	if err != nil {
		logger.Info("booking not payable", "booking_id", req.BookingID, "error", err)
		return nil, err
	}

	now := s.now()
	reference, err := NewReference(now)
	if err != nil {
		return nil, domain.NewInternalError(fmt.Errorf("generate reference: %w", err))
	}
	logger = logger.With("reference", reference, "booking_id", booking.ID)

	provider, err := s.providers.ProviderFor(req.PaymentMethod)
	if err != nil {
		logger.Warn("provider unavailable", "method", req.PaymentMethod, "error", err)
		return nil, domain.NewUnavailableError(
			"O método de pagamento escolhido está indisponível. Tente outro método.", err)
	}

	expiresAt := now.Add(s.cfg.Expiry)
	providerReq := domain.ProviderPaymentRequest{
		Reference:     reference,
		AmountCents:   req.Amount,
		Currency:      req.Currency,
		Method:        req.PaymentMethod,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Description:   describeBooking(booking),
		BookingID:     booking.ID,
		UserID:        caller.UserID,
		ExpiresAt:     expiresAt,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		Metadata:      map[string]string{domain.MetadataSupplierID: booking.SupplierID},
	}

	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = reference
	}
	attempt := &domain.PaymentAttempt{
		ID:             uuid.NewString(),
		UserID:         caller.UserID,
		IdempotencyKey: idempotencyKey,
		RequestHash:    requestHash,
		Reference:      reference,
		BookingID:      booking.ID,
		SupplierID:     booking.SupplierID,
		Method:         req.PaymentMethod,
		Provider:       provider.Name(),
		AmountCents:    req.Amount,
		Currency:       req.Currency,
		RecoveryPoint:  domain.RecoveryStarted,
		Request:        providerReq,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		if errors.Is(err, domain.ErrDuplicateAttempt) {
			return nil, domain.NewUnavailableError("Este pagamento já está a ser processado. Tente novamente dentro de instantes.", err)
		}
		return nil, domain.NewInternalError(fmt.Errorf("record payment attempt: %w", err))
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	result, err := provider.CreatePaymentIntent(providerCtx, providerReq)
	cancel()
	if err != nil {
		return nil, s.providerFailed(ctx, logger, attempt, err)
	}
	logger.Info("provider_invoked",
		"provider", provider.Name(),
		"provider_payment_id", result.ProviderPaymentID,
	)

	attempt.ProviderCreated(result)
	attempt.UpdatedAt = s.now()
	if err := s.repo.UpdateAttempt(ctx, attempt); err != nil {
		logger.Error("failed to record provider result on attempt",
			"attempt_id", attempt.ID,
			"provider_payment_id", result.ProviderPaymentID,
			"error", err,
		)
	}

	intent, err := s.finalize(ctx, attempt)
	if err != nil {
		logger.Error("payment intent partially created",
			"severity", "high",
			"attempt_id", attempt.ID,
			"provider", provider.Name(),
			"provider_payment_id", result.ProviderPaymentID,
			"error", err,
		)
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			return nil, domainErr
		}
		return nil, domain.NewInternalError(err)
	}
	return intent, nil
}

// Reconcile finishes an attempt whose provider call succeeded but whose escrow and
// payment records were never written.
func (s *PaymentIntentService) Reconcile(ctx context.Context, attempt *domain.PaymentAttempt) error {
	if attempt.RecoveryPoint != domain.RecoveryProviderCreated {
		return nil
	}
	intent, err := s.finalize(ctx, attempt)
	if err != nil {
		return err
	}
	logctx.From(ctx, s.logger).Info("payment attempt reconciled",
		"attempt_id", attempt.ID,
		"payment_id", intent.PaymentID,
		"escrow_id", intent.EscrowID,
	)
	return nil
}

// finalize creates the escrow, records the payment, links both and completes the
// attempt in one transaction. An attempt completed concurrently is replayed.
func (s *PaymentIntentService) finalize(ctx context.Context, pending *domain.PaymentAttempt) (*domain.PaymentIntentResult, error) {
	var intent *domain.PaymentIntentResult
	err := s.repo.WithTx(ctx, func(txRepo ports.Repository) error {
		attempt, err := txRepo.FindAttemptByIDForUpdate(ctx, pending.ID)
		if err != nil {
			return err
		}
		if attempt.IsComplete() {
			intent, err = decodeIntent(attempt.Response)
			return err
		}
		if attempt.IsAbandoned() {
			return fmt.Errorf("attempt %s was abandoned", attempt.ID)
		}
		if attempt.ProviderResult == nil && pending.ProviderResult != nil {
			attempt.ProviderCreated(pending.ProviderResult)
		}
		if attempt.ProviderResult == nil {
			return fmt.Errorf("attempt %s has no provider result", attempt.ID)
		}

		escrows := s.escrows.bind(txRepo)
		escrow, err := escrows.CreateEscrow(ctx, NewEscrowParams{
			BookingID:  attempt.BookingID,
			ClientID:   attempt.UserID,
			SupplierID: attempt.SupplierID,
			Amount:     attempt.AmountCents,
			Currency:   attempt.Currency,
		})
		if err != nil {
			return fmt.Errorf("create escrow: %w", err)
		}

		payment := newPaymentRecord(attempt, escrow.ID, s.now())
		if err := txRepo.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		logctx.From(ctx, s.logger).Info("payment_recorded", "payment_id", payment.ID, "escrow_id", escrow.ID)

		if err := escrows.LinkPayment(ctx, escrow.ID, payment.ID); err != nil {
			return fmt.Errorf("link payment to escrow: %w", err)
		}

		intent = buildIntent(payment, escrow.ID, attempt.ProviderResult)
		response, err := json.Marshal(intent)
		if err != nil {
			return fmt.Errorf("encode intent response: %w", err)
		}
		attempt.Complete(payment.ID, escrow.ID, response)
		attempt.UpdatedAt = s.now()
		return txRepo.UpdateAttempt(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

func (s *PaymentIntentService) replay(ctx context.Context, userID, key, requestHash string) (*domain.PaymentIntentResult, error) {
	attempt, err := s.repo.FindAttemptByKey(ctx, userID, key)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return nil, nil
		}
		return nil, domain.NewInternalError(fmt.Errorf("find payment attempt: %w", err))
	}

	if attempt.RequestHash != requestHash {
		return nil, domain.NewInvalidArgumentError("idempotencyKey",
			"A chave de idempotência já foi usada com um pedido diferente.")
	}
	if attempt.IsComplete() {
		intent, err := decodeIntent(attempt.Response)
		if err != nil {
			return nil, domain.NewInternalError(err)
		}
		logctx.From(ctx, s.logger).Info("payment_intent_replayed", "attempt_id", attempt.ID, "payment_id", intent.PaymentID)
		return intent, nil
	}
	if attempt.IsAbandoned() {
		return nil, domain.NewFailedPreconditionError(
			"A tentativa de pagamento anterior foi abandonada. Use uma nova chave de idempotência.")
	}
	return nil, domain.NewUnavailableError("Este pagamento já está a ser processado. Tente novamente dentro de instantes.", nil)
}

// providerFailed classifies a provider failure. Transient failures, timeouts and
// indeterminate network errors leave the attempt at started, since the provider
// may still have created the intent.
func (s *PaymentIntentService) providerFailed(ctx context.Context, logger *slog.Logger, attempt *domain.PaymentAttempt, err error) error {
	transient := errors.Is(err, context.DeadlineExceeded) || domain.IsIndeterminate(err)
	var retryable domain.Retryable
	if errors.As(err, &retryable) {
		transient = transient || retryable.IsRetryable()
	}

	if transient {
		attempt.RecordError(err)
	} else {
		attempt.Abandon(err.Error())
	}
	attempt.UpdatedAt = s.now()
	if updateErr := s.repo.UpdateAttempt(ctx, attempt); updateErr != nil {
		logger.Error("failed to record provider failure on attempt", "attempt_id", attempt.ID, "error", updateErr)
	}

	logger.Error("provider call failed",
		"provider", attempt.Provider,
		"attempt_id", attempt.ID,
		"transient", transient,
		"error", err,
	)
	if transient {
		return domain.NewUnavailableError("O fornecedor de pagamentos não respondeu. Tente novamente mais tarde.", err)
	}
	return domain.NewInternalError(err)
}

func (s *PaymentIntentService) normalize(req domain.PaymentIntentRequest) domain.PaymentIntentRequest {
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.PaymentMethod = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = s.cfg.DefaultCurrency
	}
	return req
}

func (s *PaymentIntentService) validate(req domain.PaymentIntentRequest) error {
	switch {
	case req.BookingID == "":
		return domain.NewMissingFieldError("bookingId")
	case req.Amount == 0:
		return domain.NewMissingFieldError("amount")
	case req.PaymentMethod == "":
		return domain.NewMissingFieldError("paymentMethod")
	case !req.PaymentMethod.IsValid():
		return domain.NewInvalidArgumentError("paymentMethod",
			fmt.Sprintf("Método de pagamento %q não suportado.", req.PaymentMethod))
	case req.Amount < s.cfg.MinAmount:
		return domain.NewInvalidArgumentError("amount",
			fmt.Sprintf("O valor mínimo de pagamento é %d.", s.cfg.MinAmount))
	case req.PaymentMethod == domain.MethodOPG && req.CustomerPhone == "":
		return domain.NewInvalidArgumentError("customerPhone",
			"O número de telefone é obrigatório para pagamentos Multicaixa Express.")
	}

	for _, check := range []struct {
		field, value, tag, message string
	}{
		{"currency", req.Currency, "len=3,alpha", "Moeda inválida."},
		{"customerEmail", req.CustomerEmail, "omitempty,email", "Endereço de email inválido."},
		{"customerPhone", req.CustomerPhone, "omitempty,max=20", "Número de telefone inválido."},
		{"successUrl", req.SuccessURL, "omitempty,url", "URL de sucesso inválido."},
		{"cancelUrl", req.CancelURL, "omitempty,url", "URL de cancelamento inválido."},
		{"idempotencyKey", req.IdempotencyKey, "omitempty,max=128", "Chave de idempotência demasiado longa."},
	} {
		if err := fieldValidator.Var(check.value, check.tag); err != nil {
			return domain.NewInvalidArgumentError(check.field, check.message)
		}
	}
	return nil
}

// checkBooking also covers the escrow inputs the booking supplies, so nothing that
// escrow creation would reject can reach the provider.
func (s *PaymentIntentService) checkBooking(ctx context.Context, bookingID, userID string, amount int64) (*domain.Booking, error) {
	booking, err := s.bookings.FindBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			return nil, domain.NewFailedPreconditionError("Reserva não encontrada.")
		}
		return nil, domain.NewInternalError(fmt.Errorf("find booking: %w", err))
	}

	switch {
	case booking.ClientID != userID:
		return nil, domain.NewFailedPreconditionError("Apenas o cliente da reserva pode efetuar o pagamento.")
	case !booking.AcceptsPayment():
		return nil, domain.NewFailedPreconditionError(
			fmt.Sprintf("A reserva não aceita pagamentos no estado %q.", booking.Status))
	case booking.IsFullyPaid():
		return nil, domain.NewFailedPreconditionError("A reserva já está totalmente paga.")
	case strings.TrimSpace(booking.SupplierID) == "":
		return nil, domain.NewFailedPreconditionError("A reserva não tem um fornecedor associado.")
	case amount > booking.OutstandingAmount():
		return nil, domain.NewFailedPreconditionError(
			fmt.Sprintf("O valor excede o montante em dívida da reserva (%d).", booking.OutstandingAmount()))
	}
	return booking, nil
}

func newPaymentRecord(attempt *domain.PaymentAttempt, escrowID string, now time.Time) *domain.Payment {
	result := attempt.ProviderResult
	payment := &domain.Payment{
		ID:                uuid.NewString(),
		BookingID:         attempt.BookingID,
		UserID:            attempt.UserID,
		SupplierID:        attempt.SupplierID,
		AmountCents:       attempt.AmountCents,
		Currency:          attempt.Currency,
		Method:            attempt.Method,
		Provider:          attempt.Provider,
		ProviderPaymentID: result.ProviderPaymentID,
		Reference:         attempt.Reference,
		Status:            domain.PaymentPending,
		Metadata: map[string]string{
			domain.MetadataEscrowID:   escrowID,
			domain.MetadataSupplierID: attempt.SupplierID,
			domain.MetadataBookingID:  attempt.BookingID,
		},
		ExpiresAt: attempt.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	payment.CheckoutURL = optional(result.CheckoutURL)
	payment.PaymentURL = optional(result.PaymentURL)
	payment.EntityID = optional(result.EntityID)
	payment.ReferenceNumber = optional(result.ReferenceNumber)
	return payment
}

// buildIntent shapes the response by method: hosted checkout returns a checkout
// URL, mobile push a payment URL and reference payments the entity and number.
func buildIntent(p *domain.Payment, escrowID string, result *domain.ProviderPaymentResult) *domain.PaymentIntentResult {
	intent := &domain.PaymentIntentResult{
		Success:   true,
		PaymentID: p.ID,
		EscrowID:  escrowID,
		Reference: p.Reference,
		Provider:  p.Provider,
		ExpiresAt: p.ExpiresAt,
	}
	switch p.Method {
	case domain.MethodStripe:
		intent.CheckoutURL = result.CheckoutURL
	case domain.MethodOPG:
		intent.PaymentURL = result.PaymentURL
	case domain.MethodReference:
		intent.EntityID = result.EntityID
		intent.ReferenceNumber = result.ReferenceNumber
	}
	return intent
}

func decodeIntent(raw json.RawMessage) (*domain.PaymentIntentResult, error) {
	var intent domain.PaymentIntentResult
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, fmt.Errorf("decode stored intent response: %w", err)
	}
	return &intent, nil
}

func hashRequest(req domain.PaymentIntentRequest) string {
	hashInput := fmt.Sprintf("%s|%d|%s|%s|%s|%s|%s|%s|%s",
		req.BookingID, req.Amount, req.Currency, req.PaymentMethod,
		req.CustomerName, req.CustomerEmail, req.CustomerPhone,
		req.SuccessURL, req.CancelURL,
	)
	hashBytes := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hashBytes[:])
}

func describeBooking(b *domain.Booking) string {
	if b.EventName != "" {
		return "Reserva: " + b.EventName
	}
	return "Reserva " + b.ID
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
