// Package atcmd tokenizes AT command lines of the form CMD, CMD=p1 or
// CMD=p1,p2.
package atcmd

import (
	"errors"
	"strings"
	"unicode"
)

// MaxLineLength is the longest command line accepted
const MaxLineLength = 256

// Command names
const (
	WriteConfig   = "AT&W"
	ReadConfig    = "AT&R"
	DisplayConfig = "AT&V"
	GatewayMask   = "AT+GWMASK"
	DeviceID      = "AT+DEVICEID"
	GroupID       = "AT+GROUPID"
	EncKey        = "AT+ENCKEY"
	ChannelID     = "AT+CHANID"
	TxDatarate    = "AT+TXDR"
	PreambleTime  = "AT+PTIME"
	SelfTest      = "AT+SELFTEST"
	Stats         = "AT+STATS"
	Who           = "AT+WHO"
	Ping          = "AT+PING"
	Hello         = "AT+HELLO"
	Send          = "AT+SEND"
	PollRx        = "AT+POLLRX"
	PushRx        = "AT+PUSHRX"
	Disconnect    = "AT+DISCONNECT"
	Connect       = "AT+CONNECT"
	Reset         = "ATZ"
	Log           = "AT+LOG"
)

// Parse errors
var (
	ErrSpaceInCommand = errors.New("WS in cmd name")
	ErrMissingValue   = errors.New("= but no value following")
	ErrSpaceInParam   = errors.New("Whitespace found in parameters")
	ErrMissingParam2  = errors.New(", was found but no second parameter")
	ErrLineTooLong    = errors.New("AT COMMAND TOO LONG")
)

// Command is a tokenized command line. P1 and P2 are empty when absent.
type Command struct {
	Name string // upper case
	P1   string
	P2   string // runs to the end of the line, spaces included
}

func isSpace(b byte) bool {
	return unicode.IsSpace(rune(b))
}

// skipSpace returns the index of the first non-space byte at or after i
func skipSpace(line string, i int) int {
	for i < len(line) && isSpace(line[i]) {
		i++
	}
	return i
}

// Parse splits a command line. ok is false for a blank line. Space is
// allowed before the command and around '=' and ','.
func Parse(line string) (cmd Command, ok bool, err error) {
	i := skipSpace(line, 0)
	if i == len(line) {
		return Command{}, false, nil
	}

	start := i
	for i < len(line) && line[i] != '=' && !isSpace(line[i]) {
		i++
	}
	cmd.Name = strings.ToUpper(line[start:i])

	i = skipSpace(line, i)
	if i == len(line) {
		return cmd, true, nil
	}
	if line[i] != '=' {
		return Command{}, true, ErrSpaceInCommand
	}

	i = skipSpace(line, i+1)
	if i == len(line) {
		return Command{}, true, ErrMissingValue
	}

	start = i
	for i < len(line) && line[i] != ',' && !isSpace(line[i]) {
		i++
	}
	cmd.P1 = line[start:i]

	i = skipSpace(line, i)
	if i == len(line) {
		return cmd, true, nil
	}
	if line[i] != ',' {
		return Command{}, true, ErrSpaceInParam
	}

	i = skipSpace(line, i+1)
	if i == len(line) {
		return Command{}, true, ErrMissingParam2
	}
	cmd.P2 = strings.TrimRight(line[i:], "\r\n")
	return cmd, true, nil
}
