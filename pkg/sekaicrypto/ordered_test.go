package sekaicrypto

import "testing"

// fixstr and fixint encode a msgpack fixstr and positive fixint; the tests
// below use them to build fixmaps by hand with keys in a chosen order.
func fixstr(s string) []byte {
	return append([]byte{0xa0 | byte(len(s))}, []byte(s)...)
}

func fixint(n int) []byte {
	return []byte{byte(n)}
}

func TestDecodeOrderedKeyOrderAndIntKeys(t *testing.T) {
	// map with 3 entries: "zeta" -> 1, 2 -> "two", "alpha" -> 3
	var b []byte
	b = append(b, 0x80|3) // fixmap, 3 entries
	b = append(b, fixstr("zeta")...)
	b = append(b, fixint(1)...)
	b = append(b, fixint(2)...)
	b = append(b, fixstr("two")...)
	b = append(b, fixstr("alpha")...)
	b = append(b, fixint(3)...)

	v, err := decodeOrdered(b)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindObject {
		t.Fatalf("Kind = %v, want KindObject", v.Kind)
	}
	var gotKeys []string
	for pair := v.Object.Oldest(); pair != nil; pair = pair.Next() {
		gotKeys = append(gotKeys, pair.Key)
	}
	want := []string{"zeta", "2", "alpha"}
	if len(gotKeys) != len(want) {
		t.Fatalf("keys = %v, want %v", gotKeys, want)
	}
	for i := range want {
		if gotKeys[i] != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, gotKeys[i], want[i])
		}
	}
}

func TestDecodeOrderedBinAsBase64(t *testing.T) {
	// top-level map with one entry "data" -> bin8[3]{1,2,3}
	var b []byte
	b = append(b, 0x80|1)
	b = append(b, fixstr("data")...)
	b = append(b, 0xc4, 0x03, 0x01, 0x02, 0x03)

	v, err := decodeOrdered(b)
	if err != nil {
		t.Fatal(err)
	}
	pair := v.Object.Oldest()
	if pair.Value.Kind != KindString {
		t.Fatalf("Kind = %v, want KindString", pair.Value.Kind)
	}
	if pair.Value.Str != "AQID" { // base64(1,2,3)
		t.Fatalf("Str = %q, want %q", pair.Value.Str, "AQID")
	}
}

func TestDecodeOrderedNonFiniteFloatErrors(t *testing.T) {
	// float64 NaN: 0xcb followed by 8 bytes all-ones exponent/mantissa pattern for NaN
	b := []byte{0xcb, 0x7f, 0xf8, 0, 0, 0, 0, 0, 0}
	if _, err := decodeOrdered(b); err == nil {
		t.Fatal("expected error for NaN")
	}
}
