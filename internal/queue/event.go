package queue

// EventKind tags an Event
type EventKind uint8

// Event kinds posted to the protocol core
const (
	EventStateEnter EventKind = iota
	EventStateExit
	EventTxRequest
	EventTxDone
	EventRxMessage
	EventRxError
	EventATCommand
	EventCadDone
	EventCadTimeout
	EventTimeout
	EventRxTimeout
	EventTxTimeout
	EventTxUnblock
)

var eventNames = [...]string{
	EventStateEnter: "STATE_ENTER",
	EventStateExit:  "STATE_EXIT",
	EventTxRequest:  "TXREQ",
	EventTxDone:     "TXDONE",
	EventRxMessage:  "RXMSG",
	EventRxError:    "RXERROR",
	EventATCommand:  "RXAT",
	EventCadDone:    "CADDONE",
	EventCadTimeout: "CADTIMEOUT",
	EventTimeout:    "TIMEOUT",
	EventRxTimeout:  "RXTIMEOUT",
	EventTxTimeout:  "TXTIMEOUT",
	EventTxUnblock:  "TXUNBLOCK",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "UNKNOWN"
}

// RxPayload is carried by EventRxMessage
type RxPayload struct {
	Data []byte
	RSSI int16
	SNR  int8
}

// Event is moved by value through the event rings. Data is owned by
// whoever pops the event; RxMessage events carry an RxPayload and CadDone
// events carry a bool.
type Event struct {
	Kind EventKind
	Data any
}

// Events is the ring type used for the hot and cold queues
type Events = Ring[Event]
