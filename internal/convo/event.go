package convo

// EventKind distinguishes chat messages from button presses.
type EventKind uint8

const (
	EventMessage EventKind = iota
	EventCallback
)

func (k EventKind) String() string {
	if k == EventCallback {
		return "callback"
	}
	return "message"
}

// Event is one inbound update from the transport.
type Event struct {
	ID          string
	Kind        EventKind
	ChatID      int64
	UserID      int64
	DisplayName string
	Username    string
	Text        string

	CallbackID   string
	CallbackData string
}

// KeyboardKind names a keyboard shape.
type KeyboardKind uint8

const (
	KeyboardMain KeyboardKind = iota + 1
	KeyboardBack
	KeyboardAdmin
	KeyboardShop
	KeyboardVIP
	KeyboardTopUp
	KeyboardProduct
)

// Button is one keyboard key. Inline keys carry either Data or URL.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Keyboard is a reply keyboard, or an inline keyboard when Inline is set.
type Keyboard struct {
	Kind   KeyboardKind
	Inline bool
	Rows   [][]Button
}

// Reply is one outbound action. A non-empty CallbackID makes it an answer to
// a button press with Text as the notice; otherwise it is a chat message.
type Reply struct {
	ChatID     int64
	Text       string
	Keyboard   *Keyboard
	CallbackID string
}

// Result is everything produced for one event.
type Result struct {
	Replies []Reply
	Step    Step
}
