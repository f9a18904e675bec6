package workflow

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
)

var supplierEmailTemplate = template.Must(template.New("supplier").Parse(`<html>
<body style="font-family: Arial, sans-serif;">
<p>Dear {{.SupplierName}},</p>
<p>We did not receive the following deliveries on their scheduled date. They have been rescheduled to the next business day:</p>
{{range .Orders}}
<h3>Purchase order {{.Folio}}</h3>
<table border="1" cellpadding="6" cellspacing="0">
<tr><th>Delivery</th><th>Scheduled</th><th>Rescheduled to</th></tr>
{{range .Events}}<tr><td>{{if .IsInstallment}}Installment #{{.InstallmentNumber}}{{else}}Full order{{end}}</td><td>{{.OldDate}}</td><td>{{.NewDate}}</td></tr>
{{end}}</table>
{{if .ConfirmURL}}<p><a href="{{.ConfirmURL}}">Confirm the new delivery date</a></p>
<img src="{{.TrackURL}}" width="1" height="1" alt="" />{{end}}
{{end}}
<p>Please contact our purchasing team if the new date does not work for you.</p>
</body>
</html>`))

var digestEmailTemplate = template.Must(template.New("digest").Parse(`<html>
<body style="font-family: Arial, sans-serif;">
<p>{{len .Events}} overdue {{if eq (len .Events) 1}}delivery was{{else}}deliveries were{{end}} rescheduled automatically:</p>
<table border="1" cellpadding="6" cellspacing="0">
<tr><th>Order</th><th>Delivery</th><th>Supplier</th><th>Scheduled</th><th>Rescheduled to</th></tr>
{{range .Events}}<tr><td>{{.OrderFolio}}</td><td>{{if .IsInstallment}}Installment #{{.InstallmentNumber}}{{else}}Full order{{end}}</td><td>{{.SupplierName}}</td><td>{{.OldDate}}</td><td>{{.NewDate}}</td></tr>
{{end}}</table>
</body>
</html>`))

type orderSection struct {
	Folio      string
	Events     []NotificationEvent
	ConfirmURL string
	TrackURL   string
}

// ConfirmationURL builds the public confirm link of an order; installmentIds may be empty.
func ConfirmationURL(baseURL string, orderId int, installmentIds []int) string {
	if baseURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("id", strconv.Itoa(orderId))
	q.Set("action", "confirm")
	if len(installmentIds) > 0 {
		ids := make([]string, 0, len(installmentIds))
		for _, id := range installmentIds {
			ids = append(ids, strconv.Itoa(id))
		}
		q.Set("installments", strings.Join(ids, ","))
	}
	return strings.TrimRight(baseURL, "/") + "/confirm?" + q.Encode()
}

func TrackingURL(baseURL string, orderId int) string {
	if baseURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("id", strconv.Itoa(orderId))
	q.Set("action", "track")
	return strings.TrimRight(baseURL, "/") + "/confirm?" + q.Encode()
}

func renderSupplierEmail(batch supplierBatch, baseURL string) (string, string, error) {
	var orders []*orderSection
	index := make(map[int]*orderSection)
	installmentIds := make(map[int][]int)
	for _, e := range batch.Events {
		s, ok := index[e.OrderId]
		if !ok {
			s = &orderSection{Folio: e.OrderFolio}
			index[e.OrderId] = s
			orders = append(orders, s)
		}
		s.Events = append(s.Events, e)
		if e.IsInstallment() {
			installmentIds[e.OrderId] = append(installmentIds[e.OrderId], e.InstallmentId)
		}
	}
	for orderId, s := range index {
		s.ConfirmURL = ConfirmationURL(baseURL, orderId, installmentIds[orderId])
		s.TrackURL = TrackingURL(baseURL, orderId)
	}

	name := batch.SupplierName
	if name == "" {
		name = "supplier"
	}
	var buf bytes.Buffer
	err := supplierEmailTemplate.Execute(&buf, map[string]interface{}{
		"SupplierName": name,
		"Orders":       orders,
	})
	if err != nil {
		return "", "", err
	}

	subject := "Delivery rescheduled: " + orders[0].Folio
	if len(orders) > 1 {
		subject = fmt.Sprintf("Deliveries rescheduled: %d purchase orders", len(orders))
	}
	return subject, buf.String(), nil
}

func renderDigestEmail(events []NotificationEvent) (string, string, error) {
	var buf bytes.Buffer
	if err := digestEmailTemplate.Execute(&buf, map[string]interface{}{"Events": events}); err != nil {
		return "", "", err
	}
	return fmt.Sprintf("Delivery reconciliation: %d rescheduled", len(events)), buf.String(), nil
}
