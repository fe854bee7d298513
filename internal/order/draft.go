package order

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
)

// Errors returned by draft operations.
var (
	ErrLastItem            = errors.New("cannot remove the last item")
	ErrItemNotFound        = errors.New("item not found")
	ErrInvalidOrderType    = errors.New("invalid orderType")
	ErrInvalidShipmentMode = errors.New("invalid shipmentMode")
	ErrInvalidTimeSlot     = errors.New("invalid deliveryTime")
)

// DateLayout is the format of delivery dates.
const DateLayout = "2006-01-02"

// LineItem is one orderable product entry.
// ID only keys the item inside its draft; it is echoed to the sink unchanged.
type LineItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Qty  string `json:"qty"`
	Note string `json:"note"`
}

// Delivery holds the on-site delivery information.
type Delivery struct {
	Date     string `json:"date"`
	TimeSlot string `json:"timeSlot"`
	Contact  string `json:"contact"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// Customer holds the ordering company and its contact person.
type Customer struct {
	Company string `json:"company"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
}

// Draft is the in-progress order form state.
type Draft struct {
	OrderType    string     `json:"orderType"`
	ShipmentMode string     `json:"shipmentMode"`
	Items        []LineItem `json:"items"`
	Delivery     Delivery   `json:"delivery"`
	Customer     Customer   `json:"customer"`
}

// DraftPatch is a partial update of the draft's scalar fields.
// Nil fields are left untouched.
type DraftPatch struct {
	OrderType       *string `json:"orderType"`
	ShipmentMode    *string `json:"shipmentMode"`
	DeliveryDate    *string `json:"deliveryDate"`
	DeliveryTime    *string `json:"deliveryTime"`
	DeliveryContact *string `json:"deliveryContact"`
	DeliveryPhone   *string `json:"deliveryPhone"`
	DeliveryAddress *string `json:"deliveryAddress"`
	OrderCompany    *string `json:"orderCompany"`
	OrderContact    *string `json:"orderContact"`
	OrderPhone      *string `json:"orderPhone"`
}

// ItemPatch is a partial update of a single line item.
type ItemPatch struct {
	Name *string `json:"name"`
	Qty  *string `json:"qty"`
	Note *string `json:"note"`
}

// NewDraft returns a draft with form defaults: today's date in loc,
// the first option of every enum and one blank line item.
func NewDraft(now time.Time, loc *time.Location) *Draft {
	if loc == nil {
		loc = time.UTC
	}
	return &Draft{
		OrderType:    enum.OrderTypes[0],
		ShipmentMode: enum.ShipmentModes[0],
		Items:        []LineItem{newItem()},
		Delivery: Delivery{
			Date:     now.In(loc).Format(DateLayout),
			TimeSlot: enum.TimeSlots[0],
		},
	}
}

func newItem() LineItem {
	return LineItem{ID: uuid.NewString()}
}

// AddItem appends a blank line item and returns it.
func (d *Draft) AddItem() LineItem {
	item := newItem()
	d.Items = append(d.Items, item)
	return item
}

// RemoveItem deletes the item with the given id.
// The last remaining item can never be removed.
func (d *Draft) RemoveItem(id string) error {
	idx := d.indexOf(id)
	if idx < 0 {
		return ErrItemNotFound
	}
	if len(d.Items) <= 1 {
		return ErrLastItem
	}
	d.Items = append(d.Items[:idx], d.Items[idx+1:]...)
	return nil
}

// UpdateItem applies p to the item with the given id.
func (d *Draft) UpdateItem(id string, p ItemPatch) (LineItem, error) {
	idx := d.indexOf(id)
	if idx < 0 {
		return LineItem{}, ErrItemNotFound
	}
	item := &d.Items[idx]
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Qty != nil {
		item.Qty = *p.Qty
	}
	if p.Note != nil {
		item.Note = *p.Note
	}
	return *item, nil
}

// Apply applies p to the draft. Enum fields are checked before anything is
// written, so a rejected patch leaves the draft unchanged.
func (d *Draft) Apply(p DraftPatch) error {
	if p.OrderType != nil && !enum.IsOrderType(*p.OrderType) {
		return ErrInvalidOrderType
	}
	if p.ShipmentMode != nil && !enum.IsShipmentMode(*p.ShipmentMode) {
		return ErrInvalidShipmentMode
	}
	if p.DeliveryTime != nil && !enum.IsTimeSlot(*p.DeliveryTime) {
		return ErrInvalidTimeSlot
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&d.OrderType, p.OrderType)
	set(&d.ShipmentMode, p.ShipmentMode)
	set(&d.Delivery.Date, p.DeliveryDate)
	set(&d.Delivery.TimeSlot, p.DeliveryTime)
	set(&d.Delivery.Contact, p.DeliveryContact)
	set(&d.Delivery.Phone, p.DeliveryPhone)
	set(&d.Delivery.Address, p.DeliveryAddress)
	set(&d.Customer.Company, p.OrderCompany)
	set(&d.Customer.Contact, p.OrderContact)
	set(&d.Customer.Phone, p.OrderPhone)
	return nil
}

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	c := *d
	c.Items = make([]LineItem, len(d.Items))
	copy(c.Items, d.Items)
	return &c
}

func (d *Draft) indexOf(id string) int {
	for i, item := range d.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
