package packets

import (
	"testing"

	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
)

func TestRegistryBuilds(t *testing.T) {
	reg := Registry()
	if reg != Registry() {
		t.Error("Registry() returned different instances")
	}
	if got, want := reg.Len(), len(Schema())+len(protocol.ReservedIDs()); got != want {
		t.Errorf("Len() = %d; want %d", got, want)
	}
}

func TestCodes(t *testing.T) {
	want := map[string]byte{
		Tick:            't',
		SyncTick:        'T',
		UploadChat:      'c',
		DownloadMessage: 'C',
		NewPlayer:       'n',
		MovePlayer:      'm',
		PlayerInput:     'i',
		PlayerGun:       'g',
		ShootBullet:     'b',
		PlayerPing:      'p',
		RemovePlayer:    'r',
	}
	reg := Registry()
	for id, code := range want {
		if c, ok := reg.Code(id); !ok || c != code {
			t.Errorf("Code(%s) = %q, %v; want %q", id, c, ok, code)
		}
	}
}

func TestFixedLengths(t *testing.T) {
	tests := []struct {
		id   string
		want int
	}{
		{Tick, 5},
		{NewPlayer, 1 + 2 + 2 + 2 + 1},
		{MovePlayer, 1 + 2 + 7*2},
		{PlayerInput, 1 + 7*8 + 2},
		{PlayerGun, 1 + 1 + 2},
		{ShootBullet, 1 + 2 + 4*2},
		{PlayerPing, 1 + 2 + 2},
		{RemovePlayer, 1 + 2},
		{UploadChat, protocol.Variable},
		{DownloadMessage, protocol.Variable},
	}

	reg := Registry()
	for _, tc := range tests {
		p, ok := reg.Packet(tc.id)
		if !ok {
			t.Fatalf("Packet(%s) not found", tc.id)
		}
		if got := p.FixedLen(); got != tc.want {
			t.Errorf("%s: FixedLen() = %d; want %d", tc.id, got, tc.want)
		}
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	reg := Registry()

	move := PlayerMove{
		ID:                    "a7",
		Position:              Vector{X: 120.5, Y: -33.25},
		Velocity:              Vector{X: 1, Y: 0.5},
		AccelerationMagnitude: 2,
		AccelerationAngle:     -1.5,
		TargetRotation:        0.25,
	}
	input := Input{PlayerMove: move, Shooting: true}
	input.ID = ""
	msg := Message{Order: 7, PlayerID: "a7", Text: "gg\nwp"}
	bullet := Bullet{PlayerID: "zz", Position: Vector{X: 4, Y: 8}, Velocity: Vector{X: -16, Y: 32}}

	frame, err := reg.EncodeGroup(
		protocol.Item{ID: Tick, Record: TickRecord(99)},
		protocol.Item{ID: MovePlayer, Record: move.Record()},
		protocol.Item{ID: PlayerInput, Record: input.Record()},
		protocol.Item{ID: DownloadMessage, Record: msg.Record()},
		protocol.Item{ID: ShootBullet, Record: bullet.Record()},
		protocol.Item{ID: PlayerPing, Record: PingRecord("a7", 40)},
		protocol.Item{ID: RemovePlayer, Record: IDRecord("a7")},
	)
	if err != nil {
		t.Fatalf("EncodeGroup() error = %v", err)
	}

	results, err := reg.DecodeGroup(frame)
	if err != nil {
		t.Fatalf("DecodeGroup() error = %v", err)
	}
	if len(results) != 7 {
		t.Fatalf("DecodeGroup() = %d units; want 7", len(results))
	}

	if n := results[0].Decoded.Value.Uint64("number"); n != 99 {
		t.Errorf("tick number = %d; want 99", n)
	}
	if got := PlayerMoveFrom(results[1].Decoded.Value); got != move {
		t.Errorf("PlayerMoveFrom() = %+v; want %+v", got, move)
	}
	if got := InputFrom(results[2].Decoded.Value); got != input {
		t.Errorf("InputFrom() = %+v; want %+v", got, input)
	}
	if got := MessageFrom(results[3].Decoded.Value); got != msg {
		t.Errorf("MessageFrom() = %+v; want %+v", got, msg)
	}
	if got := BulletFrom(results[4].Decoded.Value); got != bullet {
		t.Errorf("BulletFrom() = %+v; want %+v", got, bullet)
	}
	if got := results[5].Decoded.Value.Uint64("ping"); got != 40 {
		t.Errorf("playerPing ping = %d; want 40", got)
	}
	if got := results[6].Decoded.Value.Str("id"); got != "a7" {
		t.Errorf("removePlayer id = %q; want a7", got)
	}
}

func TestConnectionIDPadding(t *testing.T) {
	reg := Registry()

	unit, err := reg.Encode(RemovePlayer, IDRecord("x"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	d, err := reg.Decode(unit)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := d.Value.Str("id"); got != "x " {
		t.Errorf("id = %q; want %q", got, "x ")
	}
}

func TestNewRegistryOptions(t *testing.T) {
	reg, err := NewRegistry(protocol.WithMaxGroupUnits(1))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if reg.Fingerprint() != Registry().Fingerprint() {
		t.Error("options changed the fingerprint")
	}
	if reg.Limits().MaxGroupUnits != 1 {
		t.Errorf("MaxGroupUnits = %d; want 1", reg.Limits().MaxGroupUnits)
	}
}
