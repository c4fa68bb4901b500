package engine

import (
	"fmt"
	"strings"
)

// ErrorCode is a numeric LoWAPP error reported to the host
type ErrorCode int

// Error codes
const (
	CodeInval          ErrorCode = -1
	CodeQueueFull      ErrorCode = -2
	CodeNoAck          ErrorCode = -3
	CodeNoMem          ErrorCode = -4
	CodePersistMem     ErrorCode = -10
	CodeLoadConfig     ErrorCode = -11
	CodeSetAttr        ErrorCode = -12
	CodePayload        ErrorCode = -13
	CodeDestID         ErrorCode = -14
	CodeATSize         ErrorCode = -15
	CodeDisconnected   ErrorCode = -16
	CodeNotInit        ErrorCode = -100
	CodeNoSerial       ErrorCode = -101
	CodeBroken         ErrorCode = -102
	CodeNotImplemented ErrorCode = -103
)

// FormatError renders an error response
func FormatError(code ErrorCode, text string) string {
	return fmt.Sprintf(`NOK {"errno":"%d", "errstr":"%s"}`, code, text)
}

func (c *Context) respond(resp string) {
	c.log.Debug().Str("response", resp).Msg("Response")
	c.sys.Respond(resp)
}

func (c *Context) respondError(code ErrorCode, text string) {
	c.respond(FormatError(code, text))
}

// rssiMagnitude is the RSSI as shown to the host: dBm with the sign
// dropped, truncated to a byte
func rssiMagnitude(rssi int16) uint8 {
	return uint8(-rssi)
}

// formatRxPackets renders the receive queue. Payload bytes are copied
// verbatim.
func formatRxPackets(pkts []RxPacket) string {
	var b strings.Builder
	b.WriteString(`OK {"rxpkts":[`)
	for i, p := range pkts {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"srcId":%d,"destId":%d,"rssi":%d,`, p.SrcID, p.DestID, rssiMagnitude(p.RSSI))
		if p.Duplicate {
			b.WriteString(`"duplicateFrames":1,`)
		}
		if p.Missing > 0 {
			fmt.Fprintf(&b, `"missingFrames":%d,`, p.Missing)
		}
		b.WriteString(`"payload":"`)
		b.Write(p.Payload)
		b.WriteString(`"}`)
	}
	b.WriteString("]}")
	return b.String()
}

// respondRxPackets empties the receive queue to the host
func (c *Context) respondRxPackets() {
	var pkts []RxPacket
	for {
		p, ok := c.rx.Pop()
		if !ok {
			break
		}
		pkts = append(pkts, p)
	}
	c.respond(formatRxPackets(pkts))
}

func (c *Context) respondWho() {
	var b strings.Builder
	b.WriteString(`OK {"wholist":[`)
	for i, s := range c.stats.Entries() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"deviceId":%d,"lastRssi":%d,"lastSeen":"%016X"}`, s.DeviceID, rssiMagnitude(s.LastRSSI), s.LastSeen)
	}
	b.WriteString("]}")
	c.respond(b.String())
}
