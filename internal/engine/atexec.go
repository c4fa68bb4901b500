package engine

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/agsys/lowapp/internal/atcmd"
	"github.com/agsys/lowapp/internal/config"
	"github.com/agsys/lowapp/internal/protocol"
	"github.com/agsys/lowapp/internal/queue"
)

// pingPayload is the body of the message queued by AT+PING
const pingPayload = "PING"

// attributes maps the configuration commands to their record keys
var attributes = map[string]string{
	atcmd.GatewayMask:  config.KeyGatewayMask,
	atcmd.DeviceID:     config.KeyDeviceID,
	atcmd.GroupID:      config.KeyGroupID,
	atcmd.ChannelID:    config.KeyChannelID,
	atcmd.TxDatarate:   config.KeyTxDatarate,
	atcmd.PreambleTime: config.KeyPreambleTime,
}

// logLevels maps AT+LOG arguments onto zerolog levels
var logLevels = []zerolog.Level{
	zerolog.TraceLevel,
	zerolog.DebugLevel,
	zerolog.InfoLevel,
	zerolog.WarnLevel,
	zerolog.ErrorLevel,
	zerolog.Disabled,
}

// drainAT executes every queued command line
func (c *Context) drainAT() {
	for {
		line, ok := c.at.Pop()
		if !ok {
			return
		}
		c.execLine(line)
	}
}

func (c *Context) execLine(line atLine) {
	if line.tooLong {
		c.respondError(CodeATSize, atcmd.ErrLineTooLong.Error())
		return
	}

	cmd, ok, err := atcmd.Parse(line.text)
	if !ok {
		return
	}
	if err != nil {
		c.respondError(CodeInval, err.Error())
		return
	}
	c.log.Debug().Str("cmd", cmd.Name).Str("p1", cmd.P1).Msg("AT command")

	if cmd.Name != atcmd.PushRx && cmd.Name != atcmd.Send {
		c.opMode = ModePull
	}

	if key, ok := attributes[cmd.Name]; ok {
		if cmd.P1 == "" {
			c.cmdGet(key)
		} else {
			c.cmdSet(key, cmd.P1)
		}
		return
	}

	switch cmd.Name {
	case atcmd.EncKey:
		if cmd.P1 == "" {
			c.respondError(CodeInval, "ENCKEY cannot be displayed")
			return
		}
		c.cmdSet(config.KeyEncKey, cmd.P1)
	case atcmd.WriteConfig:
		if err := c.store.Write(); err != nil {
			c.log.Error().Err(err).Msg("Failed to persist configuration")
			c.respondError(CodePersistMem, "Write configuration not working")
			return
		}
		c.respond("OK WRITECFG")
	case atcmd.ReadConfig:
		c.cmdReadConfig()
	case atcmd.DisplayConfig:
		c.respond("OK " + c.params.Display())
	case atcmd.SelfTest:
		c.respond("OK SELFTEST")
	case atcmd.Stats:
		c.respond("OK GETSTATS")
	case atcmd.Hello:
		c.respond("OK HELLO")
	case atcmd.Who:
		c.respondWho()
	case atcmd.Ping:
		c.cmdPing(cmd.P1)
	case atcmd.Send:
		c.cmdSend(cmd.P1, cmd.P2)
	case atcmd.PollRx:
		c.respondRxPackets()
	case atcmd.PushRx:
		c.opMode = ModePush
		c.respond("OK PUSHRX")
	case atcmd.Disconnect:
		if c.connected {
			c.setConnected(false)
			c.log.Info().Msg("Disconnected")
		}
		c.respond("OK DISCONNECT")
	case atcmd.Connect:
		c.cmdConnect()
	case atcmd.Reset:
		c.respond("OK RESET")
		c.resetPending = true
	case atcmd.Log:
		c.cmdLog(cmd.P1)
	default:
		c.respondError(CodeInval, "unknown command")
	}
}

func (c *Context) cmdGet(key string) {
	val, err := c.store.Get(key)
	if err != nil {
		c.respondError(CodeLoadConfig, "Attribute not found")
		return
	}
	c.respond(fmt.Sprintf(`OK {"%s":"%s"}`, key, val))
}

// cmdSet validates and stores an attribute, then reapplies the record.
// A record that is still incomplete is reported even though the value
// was stored.
func (c *Context) cmdSet(key, val string) {
	if err := config.CheckAttribute(key, val); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("Attribute rejected")
		c.respondError(CodeSetAttr, "Invalid attribute")
		return
	}
	if err := c.store.Set(key, val); err != nil {
		c.respondError(CodeSetAttr, "Attribute could not be modified")
		return
	}
	if err := c.loadConfig(); errors.Is(err, config.ErrKeyNotFound) {
		c.respondError(CodeLoadConfig, "Attribute not found")
		return
	}
	c.respond(fmt.Sprintf(`OK {"%s":"%s"}`, key, val))
}

func (c *Context) cmdReadConfig() {
	if err := c.store.Read(); err != nil {
		c.log.Error().Err(err).Msg("Failed to read configuration")
		c.respondError(CodePersistMem, "Read configuration not working")
		return
	}
	switch err := c.loadConfig(); {
	case errors.Is(err, config.ErrKeyNotFound):
		c.respondError(CodeLoadConfig, "Attribute not found")
	case err != nil:
		c.respondError(CodeLoadConfig, "Invalid attribute found")
	default:
		c.respond("OK READCFG")
	}
}

func (c *Context) cmdConnect() {
	if !c.connected {
		if err := config.Check(c.params, c.timing.PreambleLen); err != nil {
			c.log.Warn().Err(err).Msg("Connect refused")
			c.respondError(CodeInval, "Invalid configuration")
			return
		}
		c.setConnected(true)
		c.log.Info().Uint8("device_id", c.params.DeviceID).Msg("Connected")
	}
	c.respond("OK CONNECT")
}

func (c *Context) cmdLog(arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 || n >= len(logLevels) {
		c.respondError(CodeInval, "Invalid log level")
		return
	}
	zerolog.SetGlobalLevel(logLevels[n])
	c.respond("OK LOG")
}

// parseDest reads a hexadecimal destination id
func parseDest(arg string) (uint8, bool) {
	if arg == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(arg, 16, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

func (c *Context) cmdPing(arg string) {
	dest, ok := parseDest(arg)
	switch {
	case arg == "":
		c.respondError(CodeInval, "missing params")
		return
	case ok && dest == protocol.GatewayID:
		c.respondError(CodeNotImplemented, "Gateway functionality not implemented")
		return
	case !ok || !protocol.IsUnicastID(dest):
		c.respondError(CodeDestID, "Invalid destination id")
		return
	}
	if c.queueTx(dest, []byte(pingPayload)) {
		c.respond("SEND PING")
	}
}

func (c *Context) cmdSend(destArg, payload string) {
	if destArg == "" || payload == "" {
		c.respondError(CodeInval, "missing params")
		return
	}
	dest, ok := parseDest(destArg)
	switch {
	case !c.connected:
		c.respondError(CodeDisconnected, "NOK TX (DISCONNECTED)")
		return
	case ok && dest == protocol.GatewayID:
		c.respondError(CodeNotImplemented, "Gateway functionality not implemented")
		return
	case !ok || (!protocol.IsUnicastID(dest) && dest != protocol.BroadcastID):
		c.respondError(CodeDestID, "Invalid destination id")
		return
	case len(payload) > protocol.MaxPayloadSize:
		c.respondError(CodePayload, "Payload too big for transmission")
		return
	}

	if !c.queueTx(dest, []byte(payload)) {
		return
	}
	if c.txBlocked.Load() || c.tx.Len() > 1 {
		c.respond("SEND DELAYED")
	} else {
		c.respond("SEND REQUEST")
	}
}

// queueTx adds a standard message to the transmit queue and requests a
// transmission unless the node is blocked; the unblock event will pick
// it up then.
func (c *Context) queueTx(dest uint8, payload []byte) bool {
	msg := protocol.NewStandard(dest, c.params.DeviceID, 0, payload)
	if _, err := c.tx.Push(msg); err != nil {
		c.respond("NOK TX (QUEUE FULL)")
		return false
	}
	if !c.txBlocked.Load() {
		c.postCold(queue.EventTxRequest)
	}
	return true
}
