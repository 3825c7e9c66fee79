// Package wire implements the §6 external framing: the legacy packet-id
// prefix byte, the JSON message envelope, the packed binary movement
// packet, and the teleport-back message.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/riftworld/worldcore/internal/worldstate/form"
)

// MinPacketID is the smallest protocol packet-id byte reserved as a
// legacy frame prefix (every application message is prefixed by it).
const MinPacketID byte = 0

// MsgType discriminates the JSON message envelope's `t` field.
type MsgType int

const (
	MsgTypeUpdateMovement MsgType = iota
	MsgTypeUpdateLook
	MsgTypeSetRaceMenuOpen
	MsgTypeTeleport
)

// Message is the `{t, idx, data}` JSON envelope carried after the prefix
// byte whenever length > 1.
type Message struct {
	Type  MsgType         `json:"t"`
	Idx   uint32          `json:"idx"`
	Data  json.RawMessage `json:"data"`
}

// EncodeMessage prefixes a JSON-encoded Message with MinPacketID.
func EncodeMessage(t MsgType, idx uint32, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal message data: %w", err)
	}
	msg := Message{Type: t, Idx: idx, Data: raw}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message envelope: %w", err)
	}
	return append([]byte{MinPacketID}, body...), nil
}

// RunMode is the movement packet's locomotion state, packed into bits 0-1
// of movement_flags.
type RunMode uint8

const (
	RunModeStanding RunMode = 0
	RunModeWalking  RunMode = 1
	RunModeRunning  RunMode = 2
	RunModeSprinting RunMode = 3
)

const (
	flagIsInJumpState = 1 << 1
	flagIsSneaking    = 1 << 2
	flagIsBlocking    = 1 << 3
	flagIsWeapDrawn   = 1 << 4
)

// MovementPacket is the packed 30-byte little-endian binary movement
// update: {i32 id; f32 x,y,z; u16 angle_z_packed; i32 direction;
// i32 movement_flags; i32 world_or_cell}.
type MovementPacket struct {
	ID          int32
	X, Y, Z     float32
	AngleZDeg   float32 // unpacked degrees; AngleZPacked is the wire form
	Direction   int32
	RunMode     RunMode
	IsInJumpState bool
	IsSneaking    bool
	IsBlocking    bool
	IsWeapDrawn   bool
	WorldOrCell form.Id
}

const movementPacketSize = 4 + 4*3 + 2 + 4 + 4 + 4

// packAngle converts a degree angle to the u16 wire encoding:
// round(angle_deg / 360 * 65535).
func packAngle(deg float32) uint16 {
	normalized := math.Mod(float64(deg), 360)
	if normalized < 0 {
		normalized += 360
	}
	return uint16(math.Round(normalized / 360 * 65535))
}

func unpackAngle(packed uint16) float32 {
	return float32(float64(packed) / 65535 * 360)
}

// EncodeMovement packs p into its 30-byte wire form.
func EncodeMovement(p MovementPacket) []byte {
	buf := make([]byte, movementPacketSize)
	o := 0
	binary.LittleEndian.PutUint32(buf[o:], uint32(p.ID))
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], math.Float32bits(p.X))
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], math.Float32bits(p.Y))
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], math.Float32bits(p.Z))
	o += 4
	binary.LittleEndian.PutUint16(buf[o:], packAngle(p.AngleZDeg))
	o += 2
	binary.LittleEndian.PutUint32(buf[o:], uint32(p.Direction))
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], uint32(p.flags()))
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], uint32(p.WorldOrCell))
	return buf
}

func (p MovementPacket) flags() int32 {
	f := int32(p.RunMode & 0b11)
	if p.IsInJumpState {
		f |= flagIsInJumpState
	}
	if p.IsSneaking {
		f |= flagIsSneaking
	}
	if p.IsBlocking {
		f |= flagIsBlocking
	}
	if p.IsWeapDrawn {
		f |= flagIsWeapDrawn
	}
	return f
}

// DecodeMovement unpacks a 30-byte movement packet.
func DecodeMovement(buf []byte) (MovementPacket, error) {
	if len(buf) != movementPacketSize {
		return MovementPacket{}, fmt.Errorf("movement packet: want %d bytes, got %d", movementPacketSize, len(buf))
	}
	o := 0
	id := int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	x := math.Float32frombits(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	y := math.Float32frombits(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	z := math.Float32frombits(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	angle := unpackAngle(binary.LittleEndian.Uint16(buf[o:]))
	o += 2
	direction := int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	flags := int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	worldOrCell := form.Id(binary.LittleEndian.Uint32(buf[o:]))

	return MovementPacket{
		ID:            id,
		X:             x,
		Y:             y,
		Z:             z,
		AngleZDeg:     angle,
		Direction:     direction,
		RunMode:       RunMode(flags & 0b11),
		IsInJumpState: flags&flagIsInJumpState != 0,
		IsSneaking:    flags&flagIsSneaking != 0,
		IsBlocking:    flags&flagIsBlocking != 0,
		IsWeapDrawn:   flags&flagIsWeapDrawn != 0,
		WorldOrCell:   worldOrCell,
	}, nil
}

// TeleportMessage is the JSON body sent on a movement validation failure.
type TeleportMessage struct {
	Type        string     `json:"type"`
	Pos         [3]float32 `json:"pos"`
	Rot         [3]float32 `json:"rot"`
	WorldOrCell form.Id    `json:"worldOrCell"`
}

// NewTeleportMessage builds the teleport-back body for loc.
func NewTeleportMessage(loc form.LocationalData) TeleportMessage {
	return TeleportMessage{
		Type:        "teleport",
		Pos:         [3]float32{loc.Pos.X, loc.Pos.Y, loc.Pos.Z},
		Rot:         [3]float32{loc.Rot.X, loc.Rot.Y, loc.Rot.Z},
		WorldOrCell: loc.WorldOrCell,
	}
}

// MessageOutput is the §6 send contract: send(bytes, len, reliable).
type MessageOutput interface {
	Send(data []byte, reliable bool)
}

// RaceMenuMessage is emitted on an Actor.IsRaceMenuOpen transition
// (SPEC_FULL §3 single-flight broadcast supplement). Unlike Message, it
// carries no packet-id prefix or envelope — a flat `{type, open}` object,
// matching the teleport message's shape.
type RaceMenuMessage struct {
	Type string `json:"type"`
	Open bool   `json:"open"`
}

// NewRaceMenuMessage builds the race-menu transition body.
func NewRaceMenuMessage(open bool) RaceMenuMessage {
	return RaceMenuMessage{Type: "setRaceMenuOpen", Open: open}
}
