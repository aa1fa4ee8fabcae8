// Package sekaiaccount parses the two region-specific account descriptor
// dialects and derives a user id from an embedded authentication token when
// the descriptor doesn't supply one directly.
package sekaiaccount

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

// decodeJWTSegment decodes a JWT-style base64 segment, trying URL-safe
// no-padding first and falling back to standard base64.
func decodeJWTSegment(seg string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return nil, apperror.New(apperror.KindParseError, "failed to base64-decode token segment")
}

// ExtractUserIDFromJWT reads the "userId"/"user_id" claim out of a
// three-segment dot-delimited token's middle (payload) segment.
func ExtractUserIDFromJWT(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", apperror.New(apperror.KindParseError, "token does not have 3 segments")
	}
	payload, err := decodeJWTSegment(parts[1])
	if err != nil {
		return "", err
	}
	// userId/user_id may be either a JSON string or number.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", apperror.New(apperror.KindParseError, "failed to parse token payload: %v", err)
	}
	if v, ok := raw["userId"]; ok {
		return stringOrNumber(v)
	}
	if v, ok := raw["user_id"]; ok {
		return stringOrNumber(v)
	}
	return "", apperror.New(apperror.KindParseError, "token payload missing userId claim")
}

// ExtractUserIDFromNuverseToken strips an outer base64 wrapper layer (trying
// the standard alphabet first, then URL-safe) to obtain an inner JWT-style
// token, then reads its "sdk_open_id" claim.
func ExtractUserIDFromNuverseToken(token string) (string, error) {
	var inner []byte
	var err error
	if inner, err = base64.StdEncoding.DecodeString(token); err != nil {
		if inner, err = base64.URLEncoding.DecodeString(token); err != nil {
			return "", apperror.New(apperror.KindParseError, "failed to base64-decode access token")
		}
	}
	parts := strings.Split(string(inner), ".")
	if len(parts) != 3 {
		return "", apperror.New(apperror.KindParseError, "inner token does not have 3 segments")
	}
	payload, err := decodeJWTSegment(parts[1])
	if err != nil {
		return "", err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", apperror.New(apperror.KindParseError, "failed to parse token payload: %v", err)
	}
	v, ok := raw["sdk_open_id"]
	if !ok {
		return "", apperror.New(apperror.KindParseError, "token payload missing sdk_open_id claim")
	}
	return stringOrNumber(v)
}

func stringOrNumber(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", apperror.New(apperror.KindParseError, "claim is neither string nor number")
}
