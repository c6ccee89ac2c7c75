package convo

import "time"

// Step is the persisted marker of which multi-message conversation a user is in.
type Step uint8

const (
	StepNone Step = iota
	StepUseCode
	StepVIPSelect
	StepAdminSetTitle
	StepAdminSetDesc
	StepAdminSetLink
	StepAdminSetPrice
	StepAdminDelProduct
	StepAdminCreateCode
	StepAdminAddCoins
	StepAdminRemoveCoins
)

var stepNames = [...]string{
	StepNone:             "none",
	StepUseCode:          "use_code",
	StepVIPSelect:        "vip_select",
	StepAdminSetTitle:    "admin_set_title",
	StepAdminSetDesc:     "admin_set_desc",
	StepAdminSetLink:     "admin_set_link",
	StepAdminSetPrice:    "admin_set_price",
	StepAdminDelProduct:  "admin_del_product",
	StepAdminCreateCode:  "admin_create_code",
	StepAdminAddCoins:    "admin_add_coins",
	StepAdminRemoveCoins: "admin_remove_coins",
}

func (s Step) String() string {
	if int(s) < len(stepNames) {
		return stepNames[s]
	}
	return "unknown"
}

// ParseStep maps a persisted name back to a Step. Unknown names yield
// StepNone and false.
func ParseStep(name string) (Step, bool) {
	if name == "" {
		return StepNone, true
	}
	for i, n := range stepNames {
		if n == name {
			return Step(i), true
		}
	}
	return StepNone, false
}

// Admin reports whether the step is reserved for administrators.
func (s Step) Admin() bool {
	return s >= StepAdminSetTitle && s <= StepAdminRemoveCoins
}

// Draft holds the product wizard's scratch fields.
type Draft struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`
}

// State is a user's step together with its scratch payload. Both persist as
// one record so a step change never leaves stale scratch behind.
type State struct {
	Step      Step
	Draft     Draft
	UpdatedAt time.Time
}

// Idle is the state every conversation returns to.
func Idle() State {
	return State{Step: StepNone}
}

func (s State) same(o State) bool {
	return s.Step == o.Step && s.Draft == o.Draft
}
