package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kunhuatsai-cpu/tilepark-order/internal/order"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
	"gopkg.in/yaml.v3"
)

// orderFile is a phone order written down as YAML.
type orderFile struct {
	Variant      string     `yaml:"variant"`
	OrderType    *string    `yaml:"orderType"`
	ShipmentMode *string    `yaml:"shipmentMode"`
	Items        []fileItem `yaml:"items"`
	Delivery     struct {
		Date    *string `yaml:"date"`
		Time    *string `yaml:"time"`
		Contact *string `yaml:"contact"`
		Phone   *string `yaml:"phone"`
		Address *string `yaml:"address"`
	} `yaml:"delivery"`
	Customer struct {
		Company *string `yaml:"company"`
		Contact *string `yaml:"contact"`
		Phone   *string `yaml:"phone"`
	} `yaml:"customer"`
}

type fileItem struct {
	Name string `yaml:"name"`
	Qty  string `yaml:"qty"`
	Note string `yaml:"note"`
}

func readOrderFile(path string) (*orderFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read order file: %w", err)
	}
	return parseOrderFile(b)
}

func parseOrderFile(data []byte) (*orderFile, error) {
	var f orderFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse order file: %w", err)
	}
	return &f, nil
}

func (f *orderFile) patch() order.DraftPatch {
	return order.DraftPatch{
		OrderType:       f.OrderType,
		ShipmentMode:    f.ShipmentMode,
		DeliveryDate:    f.Delivery.Date,
		DeliveryTime:    f.Delivery.Time,
		DeliveryContact: f.Delivery.Contact,
		DeliveryPhone:   f.Delivery.Phone,
		DeliveryAddress: f.Delivery.Address,
		OrderCompany:    f.Customer.Company,
		OrderContact:    f.Customer.Contact,
		OrderPhone:      f.Customer.Phone,
	}
}

// fillSession copies the file into a freshly started session: the first
// item reuses the blank line every new draft has.
func fillSession(ctx context.Context, svc *workflow.Service, sess *workflow.Session, f *orderFile) (*workflow.Session, error) {
	firstID := sess.Draft.Items[0].ID
	for i, it := range f.Items {
		itemID := firstID
		if i > 0 {
			var added order.LineItem
			var err error
			if _, added, err = svc.AddItem(ctx, sess.ID); err != nil {
				return nil, err
			}
			itemID = added.ID
		}
		name, qty, note := it.Name, it.Qty, it.Note
		if _, err := svc.UpdateItem(ctx, sess.ID, itemID, order.ItemPatch{Name: &name, Qty: &qty, Note: &note}); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	return svc.EditDraft(ctx, sess.ID, f.patch())
}
