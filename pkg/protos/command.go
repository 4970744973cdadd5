// Package protos implements the wire protocol between cmd/client and
// cmd/server: a small binary command/response codec plus the per-
// connection session and dispatch loop.
package protos

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// CommandType identifies a wire command or response. Only the five
// operations lockkv exposes are represented; there is no scan, delete,
// or multi-value response, unlike the toy protocol this one grew from.
type CommandType byte

const (
	Get CommandType = iota
	Put
	Begin
	Commit
	Abort

	None
	String

	Invalid
)

// CommandHeaderLength is the fixed-size header: 8 bytes payload length,
// 1 byte command type.
const CommandHeaderLength = 9

// ToCommandType maps a case-insensitive REPL keyword to a CommandType.
func ToCommandType(t string) CommandType {
	switch strings.ToUpper(t) {
	case "GET":
		return Get
	case "PUT":
		return Put
	case "BEGIN":
		return Begin
	case "COMMIT":
		return Commit
	case "ABORT":
		return Abort
	case "NONE":
		return None
	case "STRING":
		return String
	default:
		return Invalid
	}
}

func (t CommandType) String() string {
	switch t {
	case Get:
		return "GET"
	case Put:
		return "PUT"
	case Begin:
		return "BEGIN"
	case Commit:
		return "COMMIT"
	case Abort:
		return "ABORT"
	case None:
		return "NONE"
	case String:
		return "STRING"
	default:
		return "INVALID"
	}
}

// Command is one wire message: a type plus a list of string fields
// (e.g. Put carries [key, value]; a String response carries [value]).
type Command struct {
	PayloadLength uint64
	Type          CommandType
	Payload       []string
}

// NewCommand builds a Command, computing its wire payload length.
func NewCommand(t CommandType, payload []string) *Command {
	return &Command{
		PayloadLength: calcPayloadLength(payload),
		Type:          t,
		Payload:       payload,
	}
}

// NewErrorCommand encodes err as a single-field String response; there
// is no dedicated error command type.
func NewErrorCommand(err error) *Command {
	return NewCommand(String, []string{fmt.Sprintf("ERR %s", err.Error())})
}

// ParseCommand reads one Command off conn: a fixed header, then the
// length-prefixed payload fields it declares.
func ParseCommand(conn net.Conn) (*Command, error) {
	header := make([]byte, CommandHeaderLength)
	n, err := readFull(conn, header)
	if err != nil {
		return nil, err
	}
	if n < CommandHeaderLength {
		return nil, fmt.Errorf("invalid message received: n=%d", n)
	}

	command := &Command{
		PayloadLength: binary.BigEndian.Uint64(header),
		Type:          CommandType(header[8]),
	}
	if command.Type >= Invalid {
		return nil, fmt.Errorf("invalid command type: type=%v", command.Type)
	}

	payload := make([]byte, command.PayloadLength)
	n, err = readFull(conn, payload)
	if err != nil {
		return nil, err
	}
	if uint64(n) != command.PayloadLength {
		return nil, fmt.Errorf("received message content size: expect=%d, got=%d", command.PayloadLength, n)
	}

	command.Payload = parsePayload(payload, command.PayloadLength)
	return command, nil
}

// readFull reads len(buf) bytes from conn, looping over short reads.
func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func calcPayloadLength(payload []string) uint64 {
	length := 0
	for _, p := range payload {
		length += 8 + len(p)
	}
	return uint64(length)
}

func parsePayload(buffer []byte, length uint64) []string {
	var res []string
	for i := uint64(0); i < length; {
		l := binary.BigEndian.Uint64(buffer[i:])
		res = append(res, string(buffer[i+8:i+8+l]))
		i += 8 + l
	}
	return res
}

// Serialize encodes the command into its wire representation.
func (c *Command) Serialize() []byte {
	c.PayloadLength = calcPayloadLength(c.Payload)
	buffer := make([]byte, CommandHeaderLength+c.PayloadLength)
	binary.BigEndian.PutUint64(buffer, c.PayloadLength)
	buffer[8] = byte(c.Type)

	i := CommandHeaderLength
	for _, payload := range c.Payload {
		binary.BigEndian.PutUint64(buffer[i:], uint64(len(payload)))
		copy(buffer[i+8:], payload)
		i += 8 + len(payload)
	}
	return buffer
}

// Send writes the command to conn.
func (c *Command) Send(conn net.Conn) error {
	_, err := conn.Write(c.Serialize())
	return err
}
