package order

import (
	"fmt"
	"strings"

	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
	"github.com/shopspring/decimal"
)

// Summary renders the human-readable order text shown on the success view
// and copied to the clipboard.
func Summary(r *Result) string {
	d := r.Draft
	var sb strings.Builder

	sb.WriteString("【TILE PARK 訂單】\n")
	sb.WriteString(fmt.Sprintf("訂單編號：%s\n", r.OrderID))
	sb.WriteString(fmt.Sprintf("訂單類型：%s\n", d.OrderType))
	if d.ShipmentMode != "" {
		sb.WriteString(fmt.Sprintf("出貨方式：%s\n", d.ShipmentMode))
	}
	sb.WriteString(fmt.Sprintf("訂購公司：%s\n", d.Customer.Company))
	sb.WriteString(fmt.Sprintf("訂購經辦：%s %s\n", d.Customer.Contact, d.Customer.Phone))

	sb.WriteString("訂購品項：\n")
	for i, item := range d.Items {
		sb.WriteString(fmt.Sprintf("%d. %s × %s", i+1, item.Name, item.Qty))
		if note := strings.TrimSpace(item.Note); note != "" {
			sb.WriteString(fmt.Sprintf("（%s）", note))
		}
		sb.WriteString("\n")
	}
	if total, ok := totalQuantity(d.Items); ok {
		sb.WriteString(fmt.Sprintf("合計數量：%s\n", total.String()))
	}

	sb.WriteString(fmt.Sprintf("送貨日期：%s %s\n", d.Delivery.Date, d.Delivery.TimeSlot))
	sb.WriteString(fmt.Sprintf("送貨地址：%s\n", d.Delivery.Address))
	sb.WriteString(fmt.Sprintf("現場收貨：%s %s", d.Delivery.Contact, d.Delivery.Phone))

	return sb.String()
}

// totalQuantity sums item quantities when every one of them is a plain number.
// Quantities are free text, so a single non-numeric entry disables the total.
func totalQuantity(items []LineItem) (decimal.Decimal, bool) {
	total := decimal.Zero
	for _, item := range items {
		q, err := decimal.NewFromString(strings.TrimSpace(item.Qty))
		if err != nil {
			return decimal.Zero, false
		}
		total = total.Add(q)
	}
	return total, len(items) > 0
}

// ConfirmationNotice returns the advisory text shown before a draft is sent.
func ConfirmationNotice(d *Draft, stockHoldMode bool) string {
	if stockHoldMode && d.ShipmentMode == enum.ShipmentModeStockHold {
		return "此訂單為「預留庫存」，僅保留貨品，不代表已確認出貨；實際出貨請再與業務確認。"
	}
	return "送出後將依填寫資料安排出貨，請確認品項、數量與送貨資訊正確無誤。"
}
