package order

import "time"

// TimestampLayout formats the client-side timestamp carried in the payload.
const TimestampLayout = "2006/1/2 15:04:05"

// Payload is the JSON document accepted by the order sink.
// Key names are fixed by the sink and must not change.
type Payload struct {
	OrderID         string     `json:"orderId"`
	Variant         string     `json:"variant,omitempty"`
	Items           []LineItem `json:"items"`
	OrderType       string     `json:"orderType"`
	ShipmentMode    string     `json:"shipmentMode,omitempty"`
	DeliveryDate    string     `json:"deliveryDate"`
	DeliveryTime    string     `json:"deliveryTime"`
	DeliveryContact string     `json:"deliveryContact"`
	DeliveryPhone   string     `json:"deliveryPhone"`
	DeliveryAddress string     `json:"deliveryAddress"`
	OrderCompany    string     `json:"orderCompany"`
	OrderContact    string     `json:"orderContact"`
	OrderPhone      string     `json:"orderPhone"`
	Timestamp       string     `json:"timestamp"`
}

// Result is the immutable snapshot of a successful submission.
type Result struct {
	OrderID     string    `json:"orderId"`
	Draft       *Draft    `json:"draft"`
	SubmittedAt time.Time `json:"submittedAt"`
	Timestamp   string    `json:"timestamp"`
}

// PayloadOptions controls the optional payload fields.
type PayloadOptions struct {
	Variant          string
	WithShipmentMode bool
	Location         *time.Location
}

// BuildPayload assembles the sink document for a validated draft.
func BuildPayload(orderID string, d *Draft, now time.Time, opts PayloadOptions) Payload {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	items := make([]LineItem, len(d.Items))
	copy(items, d.Items)

	p := Payload{
		OrderID:         orderID,
		Variant:         opts.Variant,
		Items:           items,
		OrderType:       d.OrderType,
		DeliveryDate:    d.Delivery.Date,
		DeliveryTime:    d.Delivery.TimeSlot,
		DeliveryContact: d.Delivery.Contact,
		DeliveryPhone:   d.Delivery.Phone,
		DeliveryAddress: d.Delivery.Address,
		OrderCompany:    d.Customer.Company,
		OrderContact:    d.Customer.Contact,
		OrderPhone:      d.Customer.Phone,
		Timestamp:       now.In(loc).Format(TimestampLayout),
	}
	if opts.WithShipmentMode {
		p.ShipmentMode = d.ShipmentMode
	}
	return p
}

// NewResult snapshots the draft that produced payload p.
func NewResult(p Payload, d *Draft, now time.Time) *Result {
	snap := d.Clone()
	if p.ShipmentMode == "" {
		snap.ShipmentMode = ""
	}
	return &Result{
		OrderID:     p.OrderID,
		Draft:       snap,
		SubmittedAt: now,
		Timestamp:   p.Timestamp,
	}
}
