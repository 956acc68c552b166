package packets

import (
	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
)

// Vector is a 2D position or velocity.
type Vector struct {
	X, Y float64
}

// PlayerMove is the state carried by a movePlayer packet.
type PlayerMove struct {
	ID                    string
	Position              Vector
	Velocity              Vector
	AccelerationMagnitude float64
	AccelerationAngle     float64
	TargetRotation        float64
}

// Record converts m to a movePlayer record.
func (m PlayerMove) Record() protocol.Record {
	return protocol.Record{
		"id":                    protocol.StringValue(m.ID),
		"x":                     protocol.FloatValue(m.Position.X),
		"y":                     protocol.FloatValue(m.Position.Y),
		"vx":                    protocol.FloatValue(m.Velocity.X),
		"vy":                    protocol.FloatValue(m.Velocity.Y),
		"accelerationMagnitude": protocol.FloatValue(m.AccelerationMagnitude),
		"accelerationAngle":     protocol.FloatValue(m.AccelerationAngle),
		"targetRotation":        protocol.FloatValue(m.TargetRotation),
	}
}

// PlayerMoveFrom reads a decoded movePlayer record.
func PlayerMoveFrom(r protocol.Record) PlayerMove {
	return PlayerMove{
		ID:                    r.Str("id"),
		Position:              Vector{X: r.Float64("x"), Y: r.Float64("y")},
		Velocity:              Vector{X: r.Float64("vx"), Y: r.Float64("vy")},
		AccelerationMagnitude: r.Float64("accelerationMagnitude"),
		AccelerationAngle:     r.Float64("accelerationAngle"),
		TargetRotation:        r.Float64("targetRotation"),
	}
}

// Input is the client's control state carried by a playerInput packet.
type Input struct {
	PlayerMove
	Shooting  bool
	Reloading bool
}

// Record converts in to a playerInput record. The id is not sent; the
// server knows which connection the input came from.
func (in Input) Record() protocol.Record {
	r := in.PlayerMove.Record()
	delete(r, "id")
	r["shooting"] = protocol.BoolValue(in.Shooting)
	r["reloading"] = protocol.BoolValue(in.Reloading)
	return r
}

// InputFrom reads a decoded playerInput record.
func InputFrom(r protocol.Record) Input {
	return Input{
		PlayerMove: PlayerMoveFrom(r),
		Shooting:   r.Bool("shooting"),
		Reloading:  r.Bool("reloading"),
	}
}

// Message is a chat line carried by a downloadMessage packet.
type Message struct {
	Order    uint16
	PlayerID string
	Text     string
}

// Record converts m to a downloadMessage record.
func (m Message) Record() protocol.Record {
	return protocol.Record{
		"order":    protocol.UintValue(uint64(m.Order)),
		"playerId": protocol.StringValue(m.PlayerID),
		"message":  protocol.StringValue(m.Text),
	}
}

// MessageFrom reads a decoded downloadMessage record.
func MessageFrom(r protocol.Record) Message {
	return Message{
		Order:    uint16(r.Uint64("order")),
		PlayerID: r.Str("playerId"),
		Text:     r.Str("message"),
	}
}

// Bullet is a shot carried by a shootBullet packet.
type Bullet struct {
	PlayerID string
	Position Vector
	Velocity Vector
}

// Record converts b to a shootBullet record.
func (b Bullet) Record() protocol.Record {
	return protocol.Record{
		"playerId": protocol.StringValue(b.PlayerID),
		"x":        protocol.FloatValue(b.Position.X),
		"y":        protocol.FloatValue(b.Position.Y),
		"vx":       protocol.FloatValue(b.Velocity.X),
		"vy":       protocol.FloatValue(b.Velocity.Y),
	}
}

// BulletFrom reads a decoded shootBullet record.
func BulletFrom(r protocol.Record) Bullet {
	return Bullet{
		PlayerID: r.Str("playerId"),
		Position: Vector{X: r.Float64("x"), Y: r.Float64("y")},
		Velocity: Vector{X: r.Float64("vx"), Y: r.Float64("vy")},
	}
}

// TickRecord returns a tick or syncTick record.
func TickRecord(n uint32) protocol.Record {
	return protocol.Record{"number": protocol.UintValue(uint64(n))}
}

// PingRecord returns a playerPing record.
func PingRecord(id string, ping uint16) protocol.Record {
	return protocol.Record{
		"id":   protocol.StringValue(id),
		"ping": protocol.UintValue(uint64(ping)),
	}
}

// IDRecord returns a removePlayer record.
func IDRecord(id string) protocol.Record {
	return protocol.Record{"id": protocol.StringValue(id)}
}
