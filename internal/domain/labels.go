package domain

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusPending:        "Pendiente",
	OrderStatusConfirmed:      "Confirmado",
	OrderStatusPreparing:      "En preparación",
	OrderStatusOutForDelivery: "En camino",
	OrderStatusDelivered:      "Entregado",
	OrderStatusCancelled:      "Cancelado",
}

var receiptStatusLabels = map[ReceiptStatus]string{
	ReceiptStatusPending:  "Pendiente de verificación",
	ReceiptStatusVerified: "Verificado",
	ReceiptStatusRejected: "Rechazado",
}

var paymentMethodLabels = map[PaymentMethod]string{
	PaymentMethodYape:     "Yape",
	PaymentMethodPlin:     "Plin",
	PaymentMethodCulqi:    "Tarjeta (Culqi)",
	PaymentMethodEfectivo: "Efectivo",
}

// Label returns the customer-facing label for the status.
func (s OrderStatus) Label() string {
	if label, ok := orderStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Label returns the customer-facing label for the receipt status.
func (s ReceiptStatus) Label() string {
	if label, ok := receiptStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Label returns the customer-facing label for the payment method.
func (m PaymentMethod) Label() string {
	if label, ok := paymentMethodLabels[m]; ok {
		return label
	}
	return string(m)
}
