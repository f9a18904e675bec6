package models

// Delivery is either a SingleDelivery or a MultiDelivery. The set is closed; callers switch on the
// concrete type.
type Delivery interface {
	delivery()
	PurchaseOrder() *PurchaseOrder
}

// SingleDelivery is an order whose one promised date lives on the order itself.
type SingleDelivery struct {
	Order *PurchaseOrder
}

// MultiDelivery is an order delivered in numbered installments.
type MultiDelivery struct {
	Order        *PurchaseOrder
	Installments []DeliveryInstallment
}

func (SingleDelivery) delivery() {}
func (MultiDelivery) delivery()  {}

func (d SingleDelivery) PurchaseOrder() *PurchaseOrder { return d.Order }
func (d MultiDelivery) PurchaseOrder() *PurchaseOrder  { return d.Order }

// Installment returns the installment with the given id, or nil if it does not belong to the order.
func (d MultiDelivery) Installment(id int) *DeliveryInstallment {
	for i := range d.Installments {
		if d.Installments[i].ID == id {
			return &d.Installments[i]
		}
	}
	return nil
}

func DeliveryOf(order *PurchaseOrder, installments []DeliveryInstallment) Delivery {
	if order.IsMulti() {
		return MultiDelivery{Order: order, Installments: installments}
	}
	return SingleDelivery{Order: order}
}

// GroupInstallmentsByOrder groups installments (with PurchaseOrder preloaded) by parent,
// keeping the order in which parents first appear.
func GroupInstallmentsByOrder(installments []DeliveryInstallment) []MultiDelivery {
	var groups []MultiDelivery
	index := make(map[int]int)
	for _, inst := range installments {
		i, ok := index[inst.PurchaseOrderId]
		if !ok {
			order := inst.PurchaseOrder
			if order == nil {
				order = &PurchaseOrder{ID: inst.PurchaseOrderId, DeliveryMode: DeliveryModeMulti}
			}
			groups = append(groups, MultiDelivery{Order: order})
			i = len(groups) - 1
			index[inst.PurchaseOrderId] = i
		}
		groups[i].Installments = append(groups[i].Installments, inst)
	}
	return groups
}
