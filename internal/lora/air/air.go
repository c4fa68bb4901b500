// Package air contains the envelope exchanged between simulated radios on
// the shared medium. It is encoded with the protobuf wire format so that
// tools outside this module can decode it from a .proto description:
//
//	message Frame {
//	  string sender           = 1;
//	  uint32 frequency        = 2;
//	  uint32 spreading_factor = 3;
//	  uint32 bandwidth        = 4;
//	  uint32 coding_rate      = 5;
//	  uint32 preamble         = 6;
//	  bool   fixed_length     = 7;
//	  uint64 airtime_us       = 8;
//	  sint32 power            = 9;
//	  bytes  payload          = 10;
//	}
package air

import "time"

// Topic is the first frame of every medium multipart message
const Topic = "air"

// CodingRate is the LoRa forward error correction rate
type CodingRate uint32

const (
	CodingRateUndefined CodingRate = 0
	CodingRate45        CodingRate = 1
	CodingRate46        CodingRate = 2
	CodingRate47        CodingRate = 3
	CodingRate48        CodingRate = 4
)

func (c CodingRate) String() string {
	switch c {
	case CodingRate45:
		return "4/5"
	case CodingRate46:
		return "4/6"
	case CodingRate47:
		return "4/7"
	case CodingRate48:
		return "4/8"
	default:
		return "undefined"
	}
}

// Frame is one transmission on the medium
type Frame struct {
	Sender          string // radio instance id
	Frequency       uint32 // Hz
	SpreadingFactor uint32
	Bandwidth       uint32 // index
	CodingRate      CodingRate
	Preamble        uint32 // symbols
	FixedLength     bool
	Airtime         time.Duration
	Power           int32 // dBm
	Payload         []byte
}
