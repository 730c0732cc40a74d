package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/textutil"
	"github.com/tienda-delivery/api/internal/repositories"
)

// PaymentVerificationServiceDeps bundles collaborators for the payment verification service.
type PaymentVerificationServiceDeps struct {
	Orders      repositories.OrderRepository
	Receipts    repositories.PaymentReceiptRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentVerificationService struct {
	orders     repositories.OrderRepository
	receipts   repositories.PaymentReceiptRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewPaymentVerificationService constructs the receipt verification state machine.
func NewPaymentVerificationService(deps PaymentVerificationServiceDeps) (PaymentVerificationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment verification service: order repository is required")
	}
	if deps.Receipts == nil {
		return nil, errors.New("payment verification service: receipt repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentVerificationService{
		orders:     deps.Orders,
		receipts:   deps.Receipts,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      newID,
		events:     deps.Events,
		logger:     logger,
	}, nil
}

func (s *paymentVerificationService) Approve(ctx context.Context, cmd ApprovePaymentCommand) (PaymentReceipt, error) {
	if !cmd.Actor.Admin {
		return PaymentReceipt{}, ErrOrderPermissionDenied
	}
	receipt, order, err := s.resolvePending(ctx, cmd.OrderID, domain.ReceiptStatusVerified, "")
	if err != nil {
		return PaymentReceipt{}, err
	}
	s.logger(ctx, "payments.receipt.approved", map[string]any{
		"orderId":   order.ID,
		"receiptId": receipt.ID,
		"actorId":   cmd.Actor.ID,
	})
	s.publish(ctx, paymentEventVerified, order, receipt, cmd.Actor.ID)
	return receipt, nil
}

func (s *paymentVerificationService) Reject(ctx context.Context, cmd RejectPaymentCommand) (PaymentReceipt, error) {
	if !cmd.Actor.Admin {
		return PaymentReceipt{}, ErrOrderPermissionDenied
	}
	notes := textutil.SanitizeNotes(cmd.Notes)
	if notes == "" {
		return PaymentReceipt{}, ErrRejectionRequiresNotes
	}
	if len(notes) > maxNotesLength {
		return PaymentReceipt{}, &ValidationError{Fields: map[string]string{"notes": "is too long"}}
	}
	receipt, order, err := s.resolvePending(ctx, cmd.OrderID, domain.ReceiptStatusRejected, notes)
	if err != nil {
		return PaymentReceipt{}, err
	}
	s.logger(ctx, "payments.receipt.rejected", map[string]any{
		"orderId":   order.ID,
		"receiptId": receipt.ID,
		"actorId":   cmd.Actor.ID,
	})
	s.publish(ctx, paymentEventRejected, order, receipt, cmd.Actor.ID)
	return receipt, nil
}

func (s *paymentVerificationService) resolvePending(ctx context.Context, orderID string, status domain.ReceiptStatus, notes string) (PaymentReceipt, Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return PaymentReceipt{}, Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var (
		receipt PaymentReceipt
		order   Order
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.orders.LockByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err)
		}
		order = locked

		latest, err := s.receipts.Latest(txCtx, orderID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return ErrNoPendingReceipt
			}
			return mapRepositoryError(err)
		}
		if latest.Status != domain.ReceiptStatusPending {
			return fmt.Errorf("%w: latest receipt is %s", ErrNoPendingReceipt, latest.Status)
		}

		at := s.clock()
		if err := s.receipts.Resolve(txCtx, repositories.ReceiptResolution{
			ReceiptID: latest.ID,
			Status:    status,
			Notes:     notes,
			At:        at,
		}); err != nil {
			if isRepositoryConflict(err) {
				return ErrNoPendingReceipt
			}
			return mapRepositoryError(err)
		}

		latest.Status = status
		latest.Notes = notes
		latest.VerifiedAt = &at
		receipt = latest
		return nil
	})
	if err != nil {
		return PaymentReceipt{}, Order{}, err
	}
	return receipt, order, nil
}

func (s *paymentVerificationService) Resubmit(ctx context.Context, cmd ResubmitReceiptCommand) (PaymentReceipt, error) {
	number := strings.ToUpper(strings.TrimSpace(cmd.OrderNumber))
	image := strings.TrimSpace(cmd.ImageURL)
	verr := &ValidationError{}
	if number == "" {
		verr.add("orderNumber", "is required")
	}
	switch {
	case image == "":
		verr.add("receiptImage", "is required")
	case len(image) > maxReceiptImageURLLength:
		verr.add("receiptImage", "is too long")
	}
	if !verr.empty() {
		return PaymentReceipt{}, verr
	}

	order, err := s.orders.FindByNumber(ctx, number, repositories.OrderLoadOptions{})
	if err != nil {
		return PaymentReceipt{}, mapRepositoryError(err)
	}
	if !ownsOrder(order, cmd) {
		return PaymentReceipt{}, ErrOrderPermissionDenied
	}

	var receipt PaymentReceipt
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.orders.LockByID(txCtx, order.ID); err != nil {
			return mapRepositoryError(err)
		}
		latest, err := s.receipts.Latest(txCtx, order.ID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return fmt.Errorf("%w: order has no receipt", ErrReceiptNotRejected)
			}
			return mapRepositoryError(err)
		}
		if latest.Status != domain.ReceiptStatusRejected {
			return fmt.Errorf("%w: latest receipt is %s", ErrReceiptNotRejected, latest.Status)
		}

		now := s.clock()
		receipt = PaymentReceipt{
			ID:        s.newID(),
			OrderID:   order.ID,
			ImageURL:  image,
			Status:    domain.ReceiptStatusPending,
			CreatedAt: now,
		}
		if err := s.receipts.Insert(txCtx, receipt); err != nil {
			return mapRepositoryError(err)
		}
		if err := s.orders.UpdateReceiptImage(txCtx, order.ID, image, now); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return PaymentReceipt{}, err
	}

	s.logger(ctx, "payments.receipt.resubmitted", map[string]any{
		"orderId":   order.ID,
		"receiptId": receipt.ID,
	})
	s.publish(ctx, paymentEventSubmitted, order, receipt, cmd.Actor.ID)
	return receipt, nil
}

func ownsOrder(order Order, cmd ResubmitReceiptCommand) bool {
	if order.UserID != "" {
		return cmd.Actor.ID != "" && cmd.Actor.ID == order.UserID
	}
	phone := textutil.NormalizePhone(cmd.CustomerPhone)
	return phone != "" && phone == order.Customer.Phone
}

func (s *paymentVerificationService) publish(ctx context.Context, eventType string, order Order, receipt PaymentReceipt, actorID string) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ReceiptID:     receipt.ID,
		ActorID:       actorID,
		OccurredAt:    s.clock(),
		Metadata:      map[string]any{"receiptStatus": string(receipt.Status)},
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
