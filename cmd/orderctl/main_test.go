package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kunhuatsai-cpu/tilepark-order/internal/auth"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/order"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/store"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/variant"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOrder = `
variant: confirm
orderType: 案場追加訂單
items:
  - name: GX-100
    qty: "50"
    note: Lot A
  - name: GX-200
    qty: "12.5"
delivery:
  date: "2025-06-01"
  time: 下午 (13-17)
  contact: Mr. Chen
  phone: "0922000111"
  address: 123 Main Rd
customer:
  company: ABC Co
  contact: Mr. Lee
  phone: "0912345678"
`

type recordingSender struct {
	payloads []order.Payload
}

func (r *recordingSender) Send(_ context.Context, _, _ string, p order.Payload) error {
	r.payloads = append(r.payloads, p)
	return nil
}

func TestParseOrderFile(t *testing.T) {
	f, err := parseOrderFile([]byte(sampleOrder))
	require.NoError(t, err)

	assert.Equal(t, "confirm", f.Variant)
	require.Len(t, f.Items, 2)
	assert.Equal(t, "12.5", f.Items[1].Qty)
	require.NotNil(t, f.Customer.Company)
	assert.Equal(t, "ABC Co", *f.Customer.Company)
	assert.Nil(t, f.ShipmentMode)
}

func TestParseOrderFileInvalid(t *testing.T) {
	_, err := parseOrderFile([]byte("items: [unclosed"))
	assert.Error(t, err)
}

func TestFillSessionAndSubmit(t *testing.T) {
	reg, err := variant.Load("")
	require.NoError(t, err)
	sender := &recordingSender{}
	svc := workflow.NewService(store.NewMemoryStore(), sender, reg, time.UTC)
	ctx := context.Background()

	f, err := parseOrderFile([]byte(sampleOrder))
	require.NoError(t, err)

	sess, err := svc.Start(ctx, f.Variant)
	require.NoError(t, err)
	sess, err = fillSession(ctx, svc, sess, f)
	require.NoError(t, err)

	require.Len(t, sess.Draft.Items, 2)
	assert.Equal(t, "GX-100", sess.Draft.Items[0].Name)
	assert.Equal(t, "GX-200", sess.Draft.Items[1].Name)
	assert.Equal(t, enum.OrderTypeAdditional, sess.Draft.OrderType)
	assert.Equal(t, enum.TimeSlotAfternoon, sess.Draft.Delivery.TimeSlot)
	require.NoError(t, order.Validate(sess.Draft, false))

	sess, err = svc.RequestSubmit(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PhaseConfirming, sess.Phase)
	sess, err = svc.Confirm(ctx, sess.ID)
	require.NoError(t, err)

	require.Len(t, sender.payloads, 1)
	summary := order.Summary(sess.Result)
	assert.Contains(t, summary, "合計數量：62.5")
}

func TestFillSessionRejectsBadEnum(t *testing.T) {
	reg, err := variant.Load("")
	require.NoError(t, err)
	svc := workflow.NewService(store.NewMemoryStore(), &recordingSender{}, reg, time.UTC)
	ctx := context.Background()

	f, err := parseOrderFile([]byte("orderType: 隨便\nitems:\n  - name: x\n    qty: \"1\"\n"))
	require.NoError(t, err)
	sess, err := svc.Start(ctx, "classic")
	require.NoError(t, err)

	_, err = fillSession(ctx, svc, sess, f)
	assert.ErrorIs(t, err, order.ErrInvalidOrderType)
}

func TestExplainValidation(t *testing.T) {
	err := explain(&order.ValidationError{Missing: []string{"orderCompany", "orderPhone"}})
	assert.Contains(t, err.Error(), "orderCompany, orderPhone")

	err = explain(workflow.ErrSubmissionFailed)
	assert.ErrorIs(t, err, workflow.ErrSubmissionFailed)
	assert.Contains(t, err.Error(), "系統忙碌中")
}

func TestAsk(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, ask(strings.NewReader("y\n"), &out, "? "))
	assert.True(t, ask(strings.NewReader("YES\n"), &out, "? "))
	assert.False(t, ask(strings.NewReader("n\n"), &out, "? "))
	assert.False(t, ask(strings.NewReader(""), &out, "? "))
}

func TestHashPassword(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runHashPassword(strings.NewReader("tile-park\n"), &out))

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, auth.CheckPassword(hash, "tile-park"))

	assert.Error(t, runHashPassword(strings.NewReader("\n"), &out))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
