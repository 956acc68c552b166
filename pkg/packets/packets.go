// Package packets defines the pip-pip game schema.
//
// The schema is an application schema in the protocol sense: it is combined
// with the reserved packets by protocol.NewInternalRegistry. Field order and
// codes are part of the wire contract shared with the browser client.
package packets

import (
	"sync"

	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
)

const (
	// ConnectionIDLength is the width of player and connection ids.
	ConnectionIDLength = 2

	// LobbyIDLength is the width of lobby ids.
	LobbyIDLength = 4
)

// Packet ids.
const (
	Tick            = "tick"
	SyncTick        = "syncTick"
	UploadChat      = "uploadChat"
	DownloadMessage = "downloadMessage"
	NewPlayer       = "newPlayer"
	MovePlayer      = "movePlayer"
	PlayerInput     = "playerInput"
	PlayerGun       = "playerGun"
	ShootBullet     = "shootBullet"
	PlayerPing      = "playerPing"
	RemovePlayer    = "removePlayer"
)

var connectionID = protocol.FixedString(ConnectionIDLength)

// Schema returns a fresh copy of the game schema.
func Schema() protocol.Schema {
	return protocol.Schema{
		Tick: protocol.NewPacket("t",
			protocol.F("number", protocol.Uint32),
		),
		SyncTick: protocol.NewPacket("T",
			protocol.F("number", protocol.Uint32),
		),
		UploadChat: protocol.NewPacket("c",
			protocol.F("message", protocol.VarString),
		),
		DownloadMessage: protocol.NewPacket("C",
			protocol.F("order", protocol.Uint16),
			protocol.F("playerId", connectionID),
			protocol.F("message", protocol.VarString),
		),
		NewPlayer: protocol.NewPacket("n",
			protocol.F("id", connectionID),
			protocol.F("x", protocol.Float16),
			protocol.F("y", protocol.Float16),
			protocol.F("ai", protocol.Bool),
		),
		MovePlayer: protocol.NewPacket("m",
			protocol.F("id", connectionID),
			protocol.F("x", protocol.Float16),
			protocol.F("y", protocol.Float16),
			protocol.F("vx", protocol.Float16),
			protocol.F("vy", protocol.Float16),
			protocol.F("accelerationMagnitude", protocol.Float16),
			protocol.F("accelerationAngle", protocol.Float16),
			protocol.F("targetRotation", protocol.Float16),
		),
		PlayerInput: protocol.NewPacket("i",
			protocol.F("x", protocol.Float64),
			protocol.F("y", protocol.Float64),
			protocol.F("vx", protocol.Float64),
			protocol.F("vy", protocol.Float64),
			protocol.F("accelerationMagnitude", protocol.Float64),
			protocol.F("accelerationAngle", protocol.Float64),
			protocol.F("targetRotation", protocol.Float64),
			protocol.F("shooting", protocol.Bool),
			protocol.F("reloading", protocol.Bool),
		),
		PlayerGun: protocol.NewPacket("g",
			protocol.F("ammo", protocol.Uint8),
			protocol.F("reloadTimeLeft", protocol.Uint16),
		),
		ShootBullet: protocol.NewPacket("b",
			protocol.F("playerId", connectionID),
			protocol.F("x", protocol.Float16),
			protocol.F("y", protocol.Float16),
			protocol.F("vx", protocol.Float16),
			protocol.F("vy", protocol.Float16),
		),
		PlayerPing: protocol.NewPacket("p",
			protocol.F("id", connectionID),
			protocol.F("ping", protocol.Uint16),
		),
		RemovePlayer: protocol.NewPacket("r",
			protocol.F("id", connectionID),
		),
	}
}

var (
	registryOnce sync.Once
	registry     *protocol.Registry
)

// Registry returns the internal registry for the game schema. It is built
// on first use and shared afterwards.
func Registry() *protocol.Registry {
	registryOnce.Do(func() {
		registry = protocol.MustInternalRegistry(Schema())
	})
	return registry
}

// NewRegistry builds a separate internal registry for the game schema with
// the given options.
func NewRegistry(opts ...protocol.Option) (*protocol.Registry, error) {
	return protocol.NewInternalRegistry(Schema(), opts...)
}
