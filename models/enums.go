package models

import (
	"errors"
)

type DeliveryMode string

const (
	DeliveryModeSingle DeliveryMode = "single"
	DeliveryModeMulti  DeliveryMode = "multi"
)

func (m DeliveryMode) IsValid() bool {
	return m == DeliveryModeSingle || m == DeliveryModeMulti
}

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft             PurchaseOrderStatus = "Draft"
	PurchaseOrderStatusIssued            PurchaseOrderStatus = "Issued"
	PurchaseOrderStatusConfirmed         PurchaseOrderStatus = "Confirmed"
	PurchaseOrderStatusPartiallyReceived PurchaseOrderStatus = "Partially Received"
	PurchaseOrderStatusReceived          PurchaseOrderStatus = "Received"
	PurchaseOrderStatusCancelled         PurchaseOrderStatus = "Cancelled"
)

// statuses whose promised delivery is still pending
var ActivePurchaseOrderStatuses = []PurchaseOrderStatus{
	PurchaseOrderStatusIssued,
	PurchaseOrderStatusConfirmed,
	PurchaseOrderStatusPartiallyReceived,
}

func (s PurchaseOrderStatus) IsActive() bool {
	for _, a := range ActivePurchaseOrderStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func ParsePurchaseOrderStatus(str string) (PurchaseOrderStatus, error) {
	purchaseOrderStatus := map[string]PurchaseOrderStatus{
		"Draft":              PurchaseOrderStatusDraft,
		"Issued":             PurchaseOrderStatusIssued,
		"Confirmed":          PurchaseOrderStatusConfirmed,
		"Partially Received": PurchaseOrderStatusPartiallyReceived,
		"Received":           PurchaseOrderStatusReceived,
		"Cancelled":          PurchaseOrderStatusCancelled,
	}
	s, ok := purchaseOrderStatus[str]
	if !ok {
		return "", errors.New("invalid purchase order status")
	}
	return s, nil
}

type InstallmentStatus string

const (
	InstallmentStatusUnscheduled InstallmentStatus = "unscheduled"
	InstallmentStatusScheduled   InstallmentStatus = "scheduled"
	InstallmentStatusConfirmed   InstallmentStatus = "confirmed"
)

type NotificationKind string

const (
	NotificationKindDeliveryRescheduled NotificationKind = "deliveryRescheduled"
)

const (
	ReferenceTypePurchaseOrder       = "purchase_orders"
	ReferenceTypeDeliveryInstallment = "delivery_installments"
)

const (
	ActionTypeUpdate     = "UPDATE"
	ActionTypeReschedule = "RESCHEDULE"
	ActionTypeConfirm    = "CONFIRM"
)
