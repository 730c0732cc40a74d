package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/oklog/ulid/v2"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/platform/pagination"
	"github.com/tienda-delivery/api/internal/platform/textutil"
	"github.com/tienda-delivery/api/internal/repositories"
)

const (
	defaultDeliveryLeadTime  = 40 * time.Minute
	defaultCreateAttempts    = 3
	maxOrderLines            = 50
	maxLineQuantity          = 99
	maxNotesLength           = 500
	maxCustomerNameLength    = 120
	maxAddressLength         = 300
	maxReceiptImageURLLength = 2048
)

// errOrderNumberCollision marks a unique-constraint hit on the order number at insert time.
var errOrderNumberCollision = errors.New("order: order number collision")

// TransitionPolicy selects how fulfillment transitions are validated.
type TransitionPolicy int

const (
	// TransitionsForward allows any forward jump plus cancellation from non-terminal states.
	TransitionsForward TransitionPolicy = iota
	// TransitionsSequential allows only the next lifecycle step plus cancellation.
	TransitionsSequential
)

var fulfillmentRank = map[domain.OrderStatus]int{
	domain.OrderStatusPending:        0,
	domain.OrderStatusConfirmed:      1,
	domain.OrderStatusPreparing:      2,
	domain.OrderStatusOutForDelivery: 3,
	domain.OrderStatusDelivered:      4,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders           repositories.OrderRepository
	Products         repositories.ProductRepository
	Receipts         repositories.PaymentReceiptRepository
	UnitOfWork       repositories.UnitOfWork
	Pricing          *PricingEngine
	Numbers          *OrderNumberGenerator
	Clock            func() time.Time
	IDGenerator      func() string
	Events           OrderEventPublisher
	Logger           func(ctx context.Context, event string, fields map[string]any)
	DeliveryLeadTime time.Duration
	CreateAttempts   int
	RetryBackoff     gax.Backoff
	Transitions      TransitionPolicy
	RestockOnCancel  bool
}

type orderService struct {
	orders          repositories.OrderRepository
	products        repositories.ProductRepository
	receipts        repositories.PaymentReceiptRepository
	unitOfWork      repositories.UnitOfWork
	pricing         *PricingEngine
	numbers         *OrderNumberGenerator
	clock           func() time.Time
	newID           func() string
	events          OrderEventPublisher
	logger          func(context.Context, string, map[string]any)
	leadTime        time.Duration
	createAttempts  int
	backoff         gax.Backoff
	transitions     TransitionPolicy
	restockOnCancel bool
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Receipts == nil {
		return nil, errors.New("order service: receipt repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("order service: order number generator is required")
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
	leadTime := deps.DeliveryLeadTime
	if leadTime <= 0 {
		leadTime = defaultDeliveryLeadTime
	}
	attempts := deps.CreateAttempts
	if attempts <= 0 {
		attempts = defaultCreateAttempts
	}
	backoff := deps.RetryBackoff
	if backoff.Initial <= 0 {
		backoff = gax.Backoff{Initial: 25 * time.Millisecond, Max: 250 * time.Millisecond, Multiplier: 2}
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		receipts:   deps.Receipts,
		unitOfWork: unit,
		pricing:    deps.Pricing,
		numbers:    deps.Numbers,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:           newID,
		events:          deps.Events,
		logger:          logger,
		leadTime:        leadTime,
		createAttempts:  attempts,
		backoff:         backoff,
		transitions:     deps.Transitions,
		restockOnCancel: deps.RestockOnCancel,
	}, nil
}

type normalizedOrderInput struct {
	customer      domain.Customer
	lines         []PriceLine
	clientPrices  map[string]string
	paymentMethod domain.PaymentMethod
	promotionCode string
	receiptImage  string
	notes         string
	estimated     *time.Time
	userID        string
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	input, err := normalizeCreateOrder(cmd)
	if err != nil {
		return Order{}, err
	}

	products, err := s.loadOrderableProducts(ctx, input.lines)
	if err != nil {
		return Order{}, err
	}

	breakdown, err := s.pricing.Price(ctx, PriceCartCommand{
		Lines:         input.lines,
		Products:      products,
		PromotionCode: input.promotionCode,
	})
	if err != nil {
		return Order{}, err
	}
	s.logPriceMismatches(ctx, input, breakdown)

	backoff := s.backoff
	var lastErr error
	for attempt := 1; attempt <= s.createAttempts; attempt++ {
		order, err := s.createOnce(ctx, input, breakdown)
		if err == nil {
			s.logger(ctx, "orders.created", map[string]any{
				"orderId":       order.ID,
				"orderNumber":   order.OrderNumber,
				"total":         order.Totals.Total.StringFixed(moneyScale),
				"paymentMethod": string(order.PaymentMethod),
				"attempt":       attempt,
			})
			s.publishEvent(ctx, OrderEvent{
				Type:          orderEventCreated,
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				CurrentStatus: string(order.Status),
				ActorID:       order.UserID,
				OccurredAt:    order.CreatedAt,
				Metadata: map[string]any{
					"total":         order.Totals.Total.StringFixed(moneyScale),
					"paymentMethod": string(order.PaymentMethod),
					"hasReceipt":    len(order.Receipts) > 0,
				},
			})
			return order, nil
		}
		if !errors.Is(err, errOrderNumberCollision) {
			return Order{}, err
		}
		lastErr = err
		s.logger(ctx, "orders.create.retry", map[string]any{
			"attempt": attempt,
			"reason":  "order_number_collision",
		})
		if attempt < s.createAttempts {
			if sleepErr := gax.Sleep(ctx, backoff.Pause()); sleepErr != nil {
				return Order{}, sleepErr
			}
		}
	}
	return Order{}, fmt.Errorf("%w: %v", ErrOrderNumberExhausted, lastErr)
}

func (s *orderService) createOnce(ctx context.Context, input normalizedOrderInput, breakdown domain.PricingBreakdown) (Order, error) {
	var created Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		number, err := s.numbers.Next(txCtx)
		if err != nil {
			return err
		}

		now := s.clock()
		order := s.buildOrder(input, breakdown, number, now)

		if err := s.orders.Insert(txCtx, order); err != nil {
			if isRepositoryConflict(err) {
				return fmt.Errorf("%w: %s", errOrderNumberCollision, number)
			}
			return mapRepositoryError(err)
		}

		if input.receiptImage != "" {
			receipt := domain.PaymentReceipt{
				ID:        s.newID(),
				OrderID:   order.ID,
				ImageURL:  input.receiptImage,
				Status:    domain.ReceiptStatusPending,
				CreatedAt: now,
			}
			if err := s.receipts.Insert(txCtx, receipt); err != nil {
				return mapRepositoryError(err)
			}
			order.Receipts = []domain.PaymentReceipt{receipt}
		}

		for _, item := range stockLockOrder(order.Items) {
			if err := s.products.DecrementStock(txCtx, item.ProductID, item.Quantity); err != nil {
				return s.mapStockError(err, item)
			}
		}

		created = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return created, nil
}

// stockLockOrder returns items sorted by product so concurrent orders lock stock rows in the same order.
func stockLockOrder(items []domain.OrderItem) []domain.OrderItem {
	sorted := append([]domain.OrderItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})
	return sorted
}

func (s *orderService) buildOrder(input normalizedOrderInput, breakdown domain.PricingBreakdown, number string, now time.Time) Order {
	orderID := s.newID()
	estimated := now.Add(s.leadTime)
	if input.estimated != nil {
		estimated = input.estimated.UTC()
	}

	items := make([]domain.OrderItem, 0, len(breakdown.Items))
	for _, line := range breakdown.Items {
		items = append(items, domain.OrderItem{
			ID:          s.newID(),
			OrderID:     orderID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Subtotal,
			CreatedAt:   now,
		})
	}

	promotionCode := ""
	if breakdown.Promotion != nil {
		promotionCode = breakdown.Promotion.Code
	}

	return Order{
		ID:                    orderID,
		OrderNumber:           number,
		UserID:                input.userID,
		Customer:              input.customer,
		Totals:                breakdown.Totals(),
		Currency:              breakdown.Currency,
		PaymentMethod:         input.paymentMethod,
		Status:                domain.OrderStatusPending,
		PromotionCode:         promotionCode,
		Notes:                 input.notes,
		ReceiptImageURL:       input.receiptImage,
		EstimatedDeliveryTime: estimated,
		CreatedAt:             now,
		UpdatedAt:             now,
		Items:                 items,
	}
}

func (s *orderService) loadOrderableProducts(ctx context.Context, lines []PriceLine) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	products := make(map[string]domain.Product, len(found))
	for _, product := range found {
		products[product.ID] = product
	}

	var unavailable []string
	for _, id := range ids {
		product, ok := products[id]
		if !ok || !product.Active {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		sort.Strings(unavailable)
		return nil, &ProductsUnavailableError{ProductIDs: unavailable}
	}

	for _, line := range lines {
		product := products[line.ProductID]
		if product.Stock < line.Quantity {
			return nil, &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   line.Quantity,
			}
		}
	}
	return products, nil
}

func (s *orderService) mapStockError(err error, item domain.OrderItem) error {
	var stockErr *repositories.StockError
	switch {
	case !errors.As(err, &stockErr):
		return mapRepositoryError(err)
	case errors.Is(err, repositories.ErrStockProductMissing):
		return &ProductsUnavailableError{ProductIDs: []string{item.ProductID}}
	default:
		return &InsufficientStockError{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Available:   stockErr.Available,
			Requested:   item.Quantity,
		}
	}
}

func (s *orderService) logPriceMismatches(ctx context.Context, input normalizedOrderInput, breakdown domain.PricingBreakdown) {
	if len(input.clientPrices) == 0 {
		return
	}
	for _, item := range breakdown.Items {
		claimed, ok := input.clientPrices[item.ProductID]
		if !ok || claimed == item.UnitPrice.StringFixed(moneyScale) {
			continue
		}
		s.logger(ctx, "orders.create.price_mismatch", map[string]any{
			"productId":   item.ProductID,
			"clientPrice": claimed,
			"serverPrice": item.UnitPrice.StringFixed(moneyScale),
		})
	}
}

func (s *orderService) TrackOrder(ctx context.Context, orderNumber string) (Order, error) {
	number := strings.ToUpper(strings.TrimSpace(orderNumber))
	if number == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByNumber(ctx, number, repositories.OrderLoadOptions{IncludeItems: true, IncludeReceipts: true})
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	if !cmd.Actor.Admin {
		return Order{}, ErrOrderPermissionDenied
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID, repositories.OrderLoadOptions{IncludeItems: true, IncludeReceipts: true})
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error) {
	if !cmd.Actor.Admin {
		return domain.CursorPage[Order]{}, ErrOrderPermissionDenied
	}
	filter := repositories.OrderListFilter{PageSize: cmd.PageSize}
	for _, raw := range cmd.Statuses {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	cursor, err := pagination.DecodeToken(cmd.PageToken)
	if err != nil {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	filter.Cursor = cursor

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !cmd.Actor.Admin {
		return Order{}, ErrOrderPermissionDenied
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(cmd.TargetStatus)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	var (
		previous domain.OrderStatus
		changed  bool
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.LockByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err)
		}
		previous = current.Status

		if current.Status.IsTerminal() {
			return fmt.Errorf("%w: order is already %s", ErrOrderInvalidState, current.Status)
		}
		if current.Status == target {
			return nil
		}
		if !canTransition(s.transitions, current.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, current.Status, target)
		}

		if err := s.orders.Transition(txCtx, repositories.OrderTransition{
			OrderID: orderID,
			From:    current.Status,
			To:      target,
			At:      s.clock(),
		}); err != nil {
			return mapRepositoryError(err)
		}

		if target == domain.OrderStatusCancelled && s.restockOnCancel {
			if err := s.restock(txCtx, orderID); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	order, err := s.orders.FindByID(ctx, orderID, repositories.OrderLoadOptions{IncludeItems: true, IncludeReceipts: true})
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	if !changed {
		return order, nil
	}

	s.logger(ctx, "orders.status.updated", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(order.Status),
		"actorId": cmd.Actor.ID,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     order.UpdatedAt,
	})
	return order, nil
}

func (s *orderService) restock(ctx context.Context, orderID string) error {
	order, err := s.orders.FindByID(ctx, orderID, repositories.OrderLoadOptions{IncludeItems: true})
	if err != nil {
		return mapRepositoryError(err)
	}
	for _, item := range order.Items {
		if err := s.products.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return mapRepositoryError(err)
		}
	}
	return nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func canTransition(policy TransitionPolicy, current, target domain.OrderStatus) bool {
	if current.IsTerminal() {
		return false
	}
	if target == domain.OrderStatusCancelled {
		return true
	}
	from, ok := fulfillmentRank[current]
	if !ok {
		return false
	}
	to, ok := fulfillmentRank[target]
	if !ok {
		return false
	}
	if policy == TransitionsSequential {
		return to == from+1
	}
	return to > from
}

func normalizeCreateOrder(cmd CreateOrderCommand) (normalizedOrderInput, error) {
	verr := &ValidationError{}

	customer := domain.Customer{
		Name:          textutil.NormalizeName(cmd.Customer.Name),
		Phone:         textutil.NormalizePhone(cmd.Customer.Phone),
		Email:         strings.ToLower(strings.TrimSpace(cmd.Customer.Email)),
		Address:       strings.TrimSpace(cmd.Customer.Address),
		AddressDetail: normalizeAddressDetail(cmd.Customer.AddressDetail),
	}
	switch {
	case customer.Name == "":
		verr.add("customer.name", "is required")
	case len(customer.Name) > maxCustomerNameLength:
		verr.add("customer.name", "is too long")
	}
	digits := strings.TrimPrefix(customer.Phone, "+")
	if len(digits) < 6 || len(digits) > 15 {
		verr.add("customer.phone", "must contain between 6 and 15 digits")
	}
	if customer.Email != "" {
		if addr, err := mail.ParseAddress(customer.Email); err != nil || addr.Address != customer.Email {
			verr.add("customer.email", "is not a valid address")
		}
	}
	switch {
	case customer.Address == "":
		verr.add("customer.address", "is required")
	case len(customer.Address) > maxAddressLength:
		verr.add("customer.address", "is too long")
	}

	input := normalizedOrderInput{
		customer:      customer,
		promotionCode: textutil.NormalizeCode(cmd.PromotionCode),
		receiptImage:  strings.TrimSpace(cmd.ReceiptImageURL),
		notes:         textutil.SanitizeNotes(cmd.Notes),
		userID:        strings.TrimSpace(cmd.UserID),
		clientPrices:  map[string]string{},
	}
	if len(input.notes) > maxNotesLength {
		verr.add("notes", "is too long")
	}
	if len(input.receiptImage) > maxReceiptImageURLLength {
		verr.add("receiptImage", "is too long")
	}
	if cmd.EstimatedDeliveryTime != nil {
		if cmd.EstimatedDeliveryTime.IsZero() {
			verr.add("estimatedDeliveryTime", "must be a valid timestamp")
		} else {
			estimated := cmd.EstimatedDeliveryTime.UTC()
			input.estimated = &estimated
		}
	}

	switch {
	case len(cmd.Items) == 0:
		verr.add("items", "must contain at least one product")
	case len(cmd.Items) > maxOrderLines:
		verr.add("items", "has too many lines")
	}
	index := make(map[string]int, len(cmd.Items))
	for i, item := range cmd.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			verr.add(fmt.Sprintf("items[%d].productId", i), "is required")
			continue
		}
		if item.Quantity <= 0 || item.Quantity > maxLineQuantity {
			verr.add(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must be between 1 and %d", maxLineQuantity))
			continue
		}
		if item.ClientPrice != nil {
			input.clientPrices[productID] = item.ClientPrice.StringFixed(moneyScale)
		}
		if pos, seen := index[productID]; seen {
			input.lines[pos].Quantity += item.Quantity
			continue
		}
		index[productID] = len(input.lines)
		input.lines = append(input.lines, PriceLine{ProductID: productID, Quantity: item.Quantity})
	}

	if !verr.empty() {
		return normalizedOrderInput{}, verr
	}

	method, ok := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return normalizedOrderInput{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, cmd.PaymentMethod)
	}
	input.paymentMethod = method
	return input, nil
}

func normalizeAddressDetail(detail domain.AddressDetail) domain.AddressDetail {
	return domain.AddressDetail{
		Street:    strings.TrimSpace(detail.Street),
		Number:    strings.TrimSpace(detail.Number),
		District:  strings.TrimSpace(detail.District),
		City:      strings.TrimSpace(detail.City),
		Reference: textutil.SanitizeNotes(detail.Reference),
		Latitude:  detail.Latitude,
		Longitude: detail.Longitude,
	}
}
