package enum

// ── Group A: State machines ──

const (
	PhaseEditing    = "EDITING"
	PhaseConfirming = "CONFIRMING"
	PhaseSubmitting = "SUBMITTING"
	PhaseSubmitted  = "SUBMITTED"
)

// ── Group B: Values sent verbatim to the order sink ──

const (
	OrderTypeNewSite    = "新案場"
	OrderTypeAdditional = "案場追加訂單"
)

const (
	ShipmentModeFormal    = "正式出貨"
	ShipmentModeStockHold = "預留庫存"
)

const (
	TimeSlotMorning   = "上午 (09-12)"
	TimeSlotAfternoon = "下午 (13-17)"
	TimeSlotAnytime   = "不限時間"
)

// ── Group C: Deployment settings ──

const (
	AckModeOpaque       = "OPAQUE"
	AckModeAcknowledged = "ACKNOWLEDGED"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Ordered option lists; the first entry is the form default.
var (
	OrderTypes    = []string{OrderTypeNewSite, OrderTypeAdditional}
	ShipmentModes = []string{ShipmentModeFormal, ShipmentModeStockHold}
	TimeSlots     = []string{TimeSlotMorning, TimeSlotAfternoon, TimeSlotAnytime}
)

// IsOrderType reports whether s is one of the fixed order types.
func IsOrderType(s string) bool { return contains(OrderTypes, s) }

// IsShipmentMode reports whether s is one of the fixed shipment modes.
func IsShipmentMode(s string) bool { return contains(ShipmentModes, s) }

// IsTimeSlot reports whether s is one of the fixed delivery time slots.
func IsTimeSlot(s string) bool { return contains(TimeSlots, s) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Staff roles carried in JWT claims.
const (
	RoleStaff = "STAFF"
)
