package protocol

import (
	"testing"
)

func fuzzRegistry() *Registry {
	return MustInternalRegistry(Schema{
		"move": movePacket(),
		"chat": chatPacket(),
		"player": NewPacket("n",
			F("id", FixedString(2)),
			F("x", Float16),
			F("ai", Bool),
			F("meta", JSON),
		),
	})
}

// FuzzDecode tests that decoding arbitrary bytes doesn't panic.
func FuzzDecode(f *testing.F) {
	reg := fuzzRegistry()

	move, _ := reg.Encode("move", Record{"x": FloatValue(1.5), "y": FloatValue(-2.25)})
	f.Add(move)
	chat, _ := reg.Encode("chat", Record{"message": StringValue("hi")})
	f.Add(chat)
	f.Add([]byte{'c', 0xFF, 0xFF})
	f.Add([]byte{'n', 'a'})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		d, err := reg.Decode(data)
		if err != nil {
			return
		}
		// A unit that decodes must re-encode to the same width. NaN payloads
		// may change, so the bytes themselves are not compared.
		out, err := reg.Encode(d.ID, d.Value)
		if err != nil {
			t.Fatalf("Encode(%s) of decoded unit error = %v", d.ID, err)
		}
		if len(out) != len(data) {
			t.Fatalf("re-encode length = %d; want %d", len(out), len(data))
		}
	})
}

// FuzzDecodeGroup tests that group decoding arbitrary bytes doesn't panic
// and reports every unit it walks.
func FuzzDecodeGroup(f *testing.F) {
	reg := fuzzRegistry()

	frame, _ := reg.EncodeGroup(
		Item{ID: "chat", Record: Record{"message": StringValue("a\nb")}},
		Item{ID: "ping", Record: Record{"ping": UintValue(10)}},
	)
	f.Add(frame)
	f.Add([]byte("\n\n\n"))
	f.Add([]byte("Z\nc\x00"))

	f.Fuzz(func(t *testing.T, data []byte) {
		results, _ := reg.DecodeGroup(data)
		for i, r := range results {
			if r.Index != i {
				t.Fatalf("result %d has Index %d", i, r.Index)
			}
		}
	})
}

// FuzzFixedString tests that fixed strings always have the declared width.
func FuzzFixedString(f *testing.F) {
	f.Add("ab", 2)
	f.Add("héllo", 3)
	f.Add("", 0)

	f.Fuzz(func(t *testing.T, s string, n int) {
		if n < 0 || n > 1024 {
			return
		}
		b, err := Encode(FixedString(n), StringValue(s))
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if len(b) != n {
			t.Fatalf("len = %d; want %d", len(b), n)
		}
	})
}
