package protocol

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

func gameSchema() Schema {
	return Schema{
		"move": movePacket(),
		"chat": chatPacket(),
	}
}

func TestRegistryMoveChatScenario(t *testing.T) {
	reg, err := NewRegistry(gameSchema())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	move, err := reg.Encode("move", Record{"x": FloatValue(1.5), "y": FloatValue(-2.25)})
	if err != nil {
		t.Fatalf("Encode(move) error = %v", err)
	}
	d, err := reg.Decode(move)
	if err != nil {
		t.Fatalf("Decode(move) error = %v", err)
	}
	if d.ID != "move" || d.Code != 'm' {
		t.Errorf("Decode(move) = %s %q; want move 'm'", d.ID, d.Code)
	}
	if d.Value.Float64("x") != 1.5 || d.Value.Float64("y") != -2.25 {
		t.Errorf("Decode(move) = %v; want x=1.5 y=-2.25", d.Value)
	}

	chat, err := reg.Encode("chat", Record{"message": StringValue("hi")})
	if err != nil {
		t.Fatalf("Encode(chat) error = %v", err)
	}
	d, err = reg.Decode(chat)
	if err != nil {
		t.Fatalf("Decode(chat) error = %v", err)
	}
	if d.ID != "chat" || d.Value.Str("message") != "hi" {
		t.Errorf("Decode(chat) = %s %v; want chat message=hi", d.ID, d.Value)
	}
}

func TestRegistryDuplicateCode(t *testing.T) {
	schema := gameSchema()
	schema["move2"] = NewPacket("m", F("x", Uint8))
	schema["amove"] = NewPacket("m")

	_, err := NewRegistry(schema)
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("NewRegistry() error = %v; want *SchemaError", err)
	}
	if want := []string{"amove", "move", "move2"}; !reflect.DeepEqual(se.IDs, want) {
		t.Errorf("IDs = %v; want %v", se.IDs, want)
	}
	if se.Code != "m" {
		t.Errorf("Code = %q; want %q", se.Code, "m")
	}
}

func TestRegistrySchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
		ids    []string
	}{
		{"empty code", Schema{"a": NewPacket("")}, []string{"a"}},
		{"two byte code", Schema{"a": NewPacket("ab")}, []string{"a"}},
		{"multibyte rune code", Schema{"a": NewPacket("é")}, []string{"a"}},
		{"delimiter code", Schema{"a": NewPacket("\n")}, []string{"a"}},
		{"nil packet", Schema{"a": nil}, []string{"a"}},
		{"empty id", Schema{"": NewPacket("a")}, nil},
		{"unnamed field", Schema{"a": NewPacket("a", F("", Uint8))}, []string{"a"}},
		{"nil serializer", Schema{"a": NewPacket("a", F("x", nil))}, []string{"a"}},
		{"duplicate field", Schema{"a": NewPacket("a", F("x", Uint8), F("x", Uint16))}, []string{"a"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.schema)
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("NewRegistry() error = %v; want *SchemaError", err)
			}
			if !reflect.DeepEqual(se.IDs, tc.ids) {
				t.Errorf("IDs = %v; want %v", se.IDs, tc.ids)
			}
			if Classify(err) != ClassSchema {
				t.Errorf("Classify() = %v; want schema", Classify(err))
			}
		})
	}
}

func TestMustRegistryPanics(t *testing.T) {
	defer func() {
		if _, ok := recover().(*SchemaError); !ok {
			t.Error("MustRegistry() did not panic with *SchemaError")
		}
	}()
	MustRegistry(Schema{"a": NewPacket("aa")})
}

func TestRegistryUnregisteredCode(t *testing.T) {
	reg := MustRegistry(gameSchema())

	_, err := reg.Decode([]byte("Zabc"))
	var ue *UnregisteredCodeError
	if !errors.As(err, &ue) {
		t.Fatalf("Decode() error = %v; want *UnregisteredCodeError", err)
	}
	if ue.Code != 'Z' {
		t.Errorf("Code = %q; want 'Z'", ue.Code)
	}
	if got := ErrorKind(err); got != "unregistered_code" {
		t.Errorf("ErrorKind() = %q; want unregistered_code", got)
	}

	if _, err := reg.Decode(nil); !errors.Is(err, ErrEmptyUnit) {
		t.Errorf("Decode(nil) error = %v; want ErrEmptyUnit", err)
	}
}

func TestRegistryUnknownPacket(t *testing.T) {
	reg := MustRegistry(gameSchema())

	_, err := reg.Encode("jump", Record{})
	var ue *UnknownPacketError
	if !errors.As(err, &ue) || ue.ID != "jump" {
		t.Errorf("Encode() error = %v; want *UnknownPacketError for jump", err)
	}
}

func TestRegistryMalformedFieldNamesPacket(t *testing.T) {
	reg := MustRegistry(gameSchema())

	_, err := reg.Decode([]byte{'m', 0x00})
	var fe *MalformedFieldError
	if !errors.As(err, &fe) {
		t.Fatalf("Decode() error = %v; want *MalformedFieldError", err)
	}
	if fe.Packet != "move" || fe.Field != "x" {
		t.Errorf("error = %v; want packet move field x", err)
	}
}

func TestRegistryAccessors(t *testing.T) {
	reg := MustRegistry(gameSchema())

	if got := reg.IDs(); !reflect.DeepEqual(got, []string{"chat", "move"}) {
		t.Errorf("IDs() = %v; want [chat move]", got)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d; want 2", reg.Len())
	}
	if c, ok := reg.Code("chat"); !ok || c != 'c' {
		t.Errorf("Code(chat) = %q, %v; want 'c', true", c, ok)
	}
	if _, ok := reg.Code("nope"); ok {
		t.Error("Code(nope) ok = true")
	}
	if p, ok := reg.Packet("move"); !ok || p.ID() != "move" {
		t.Errorf("Packet(move) = %v, %v", p, ok)
	}
	if p, ok := reg.Lookup('c'); !ok || p.ID() != "chat" {
		t.Errorf("Lookup('c') = %v, %v", p, ok)
	}
	if _, ok := reg.Lookup('x'); ok {
		t.Error("Lookup('x') ok = true")
	}
	if reg.IsReserved("ping") {
		t.Error("IsReserved(ping) = true for a plain registry")
	}
}

func TestRegistryDoesNotBindCallerPacket(t *testing.T) {
	p := movePacket()
	MustRegistry(Schema{"move": p})
	if p.ID() != "" {
		t.Errorf("caller packet ID = %q; want empty", p.ID())
	}
}

func TestRegistryFingerprint(t *testing.T) {
	a := MustRegistry(gameSchema())
	b := MustRegistry(gameSchema())
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("Fingerprint() differs for identical schemas")
	}
	if len(a.Fingerprint()) != 64 {
		t.Errorf("Fingerprint() length = %d; want 64", len(a.Fingerprint()))
	}

	changed := []Schema{
		{"move": NewPacket("m", F("y", Float32), F("x", Float32)), "chat": chatPacket()},
		{"move": NewPacket("m", F("x", Float64), F("y", Float32)), "chat": chatPacket()},
		{"move": NewPacket("M", F("x", Float32), F("y", Float32)), "chat": chatPacket()},
		{"walk": movePacket(), "chat": chatPacket()},
	}
	for i, s := range changed {
		if MustRegistry(s).Fingerprint() == a.Fingerprint() {
			t.Errorf("schema %d: Fingerprint() unchanged", i)
		}
	}
}

func TestRegistryConcurrentUse(t *testing.T) {
	reg := MustRegistry(gameSchema())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b, err := reg.Encode("move", Record{"x": FloatValue(float64(i)), "y": FloatValue(float64(j))})
				if err != nil {
					t.Errorf("Encode() error = %v", err)
					return
				}
				d, err := reg.Decode(b)
				if err != nil || d.Value.Float64("x") != float64(i) {
					t.Errorf("Decode() = %v, %v", d, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
