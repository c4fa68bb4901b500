// Package lora defines the radio collaborator used by the protocol core,
// the LoRa modem timing model, and a simulated radio that exchanges frames
// over a ZeroMQ shared medium.
package lora

import "time"

// Bandwidth indices accepted in configuration
const (
	BW125 uint8 = 0
	BW250 uint8 = 1
	BW500 uint8 = 2
)

var bandwidthHz = [...]uint32{125000, 250000, 500000}

// BandwidthHz returns the bandwidth in Hz for an index, 0 if unknown
func BandwidthHz(index uint8) uint32 {
	if int(index) < len(bandwidthHz) {
		return bandwidthHz[index]
	}
	return 0
}

// Channel plan
const (
	ChannelCount     = 16
	ChannelBaseHz    = 863125000
	ChannelSpacingHz = 300000
)

// ChannelFrequency returns the centre frequency of channel id
func ChannelFrequency(id uint8) uint32 {
	return ChannelBaseHz + uint32(id)*ChannelSpacingHz
}

// TxConfig holds the modem transmit parameters
type TxConfig struct {
	Power           int8
	Bandwidth       uint8 // index, see BandwidthHz
	SpreadingFactor uint8 // 7-12
	CodingRate      uint8 // 1-4 for 4/5..4/8
	Preamble        uint16
	FixedLength     bool
	Timeout         time.Duration
}

// RxConfig holds the modem receive parameters
type RxConfig struct {
	Bandwidth       uint8
	SpreadingFactor uint8
	CodingRate      uint8
	Preamble        uint16
	FixedLength     bool
	PayloadLength   uint8 // only used with FixedLength
	Continuous      bool
}

// Events are the completion callbacks a Radio invokes. They may be called
// from any goroutine.
type Events struct {
	TxDone    func()
	TxTimeout func()
	RxDone    func(payload []byte, rssi int16, snr int8)
	RxError   func()
	RxTimeout func()
	CadDone   func(activityDetected bool)
}

// Radio is the modem driver consumed by the protocol core. Every method is
// non-blocking; completion is reported through Events.
type Radio interface {
	Init(events Events)
	SetTxConfig(cfg TxConfig)
	SetRxConfig(cfg RxConfig)
	SetChannel(freq uint32)
	Send(data []byte)
	Receive(timeout time.Duration)
	StartCAD()
	IsChannelFree(freq uint32) bool
	Sleep()
	TimeOnAir(payloadLen int) time.Duration
	SetPreamble(symbols uint16)
	SetFixedLengthTx(enabled bool)
	SetFixedLengthRx(enabled bool, length uint8)
	SetTxTimeout(timeout time.Duration)
	SetRxContinuous(enabled bool)
	Random() uint32
}
