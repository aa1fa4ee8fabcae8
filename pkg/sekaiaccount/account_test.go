package sekaiaccount

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func makeJWT(t *testing.T, payload map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	pb, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	body := base64.RawURLEncoding.EncodeToString(pb)
	sig := base64.RawURLEncoding.EncodeToString([]byte("sig"))
	return header + "." + body + "." + sig
}

func TestExtractUserIDFromJWT(t *testing.T) {
	tok := makeJWT(t, map[string]any{"userId": "12345"})
	id, err := ExtractUserIDFromJWT(tok)
	if err != nil {
		t.Fatal(err)
	}
	if id != "12345" {
		t.Fatalf("id = %q, want %q", id, "12345")
	}
}

func TestExtractUserIDFromJWTNumeric(t *testing.T) {
	tok := makeJWT(t, map[string]any{"user_id": 999})
	id, err := ExtractUserIDFromJWT(tok)
	if err != nil {
		t.Fatal(err)
	}
	if id != "999" {
		t.Fatalf("id = %q, want %q", id, "999")
	}
}

func TestExtractUserIDFromNuverseToken(t *testing.T) {
	inner := makeJWT(t, map[string]any{"sdk_open_id": "77"})
	outer := base64.StdEncoding.EncodeToString([]byte(inner))
	id, err := ExtractUserIDFromNuverseToken(outer)
	if err != nil {
		t.Fatal(err)
	}
	if id != "77" {
		t.Fatalf("id = %q, want %q", id, "77")
	}
}

func TestParseCPDerivesUserID(t *testing.T) {
	cred := makeJWT(t, map[string]any{"userId": "42"})
	raw, _ := json.Marshal(map[string]any{"credential": cred})
	a, err := ParseCP(raw)
	if err != nil {
		t.Fatal(err)
	}
	if a.UserID() != "42" {
		t.Fatalf("UserID() = %q, want %q", a.UserID(), "42")
	}
}

func TestParseNuverseKeepsFallbackUserID(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"user_id": "55", "access_token": "not-valid-base64!!"})
	a, err := ParseNuverse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if a.UserID() != "55" {
		t.Fatalf("UserID() = %q, want %q", a.UserID(), "55")
	}
}

func TestParseNuverseDropsWhenNoFallback(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"access_token": "not-valid-base64!!"})
	if _, err := ParseNuverse(raw); err == nil {
		t.Fatal("expected error when no derivable or fallback user id")
	}
}

func TestDumpCP(t *testing.T) {
	a := &CP{DeviceID_: "dev1", Credential: "cred", UserID_: "1"}
	v, err := a.Dump()
	if err != nil {
		t.Fatal(err)
	}
	if v == nil {
		t.Fatal("expected non-nil dump")
	}
}

func TestDumpNuverseRequiresNumericUserID(t *testing.T) {
	a := &Nuverse{UserID_: "not-a-number", AccessToken: "tok"}
	if _, err := a.Dump(); err == nil {
		t.Fatal("expected error for non-numeric user id")
	}
}
