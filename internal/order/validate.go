package order

import (
	"fmt"
	"strings"

	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
)

// ValidationError lists the required fields that are still empty.
// Field names use the payload keys so a form can highlight them directly.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "required fields missing: " + strings.Join(e.Missing, ", ")
}

// Validate checks the required-field contract and the enum fields.
// It performs no format checks on quantities, dates or phone numbers.
// The shipment mode is only checked when checkShipmentMode is set.
func Validate(d *Draft, checkShipmentMode bool) error {
	if !enum.IsOrderType(d.OrderType) {
		return ErrInvalidOrderType
	}
	if checkShipmentMode && !enum.IsShipmentMode(d.ShipmentMode) {
		return ErrInvalidShipmentMode
	}
	if !enum.IsTimeSlot(d.Delivery.TimeSlot) {
		return ErrInvalidTimeSlot
	}

	var missing []string
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}

	if len(d.Items) == 0 {
		missing = append(missing, "items")
	}
	for i, item := range d.Items {
		require(fmt.Sprintf("items[%d].name", i), item.Name)
		require(fmt.Sprintf("items[%d].qty", i), item.Qty)
	}
	require("deliveryDate", d.Delivery.Date)
	require("deliveryAddress", d.Delivery.Address)
	require("deliveryContact", d.Delivery.Contact)
	require("deliveryPhone", d.Delivery.Phone)
	require("orderCompany", d.Customer.Company)
	require("orderContact", d.Customer.Contact)
	require("orderPhone", d.Customer.Phone)

	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
