package sekaiaccount

import (
	"encoding/json"
	"strconv"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

// Account is implemented by both region dialects.
type Account interface {
	UserID() string
	SetUserID(id string)
	DeviceID() string
	// Dump serializes the login payload this account dialect sends to the
	// upstream auth endpoint.
	Dump() (any, error)
}

// CP is the jp/en account descriptor dialect.
type CP struct {
	UserID_    string `json:"user_id,omitempty"`
	DeviceID_  string `json:"device_id,omitempty"`
	Credential string `json:"credential"`
}

func (a *CP) UserID() string        { return a.UserID_ }
func (a *CP) SetUserID(id string)   { a.UserID_ = id }
func (a *CP) DeviceID() string      { return a.DeviceID_ }

// Dump produces the exact CP login payload shape.
func (a *CP) Dump() (any, error) {
	type dump struct {
		DeviceID        string `msgpack:"deviceId,omitempty"`
		Credential      string `msgpack:"credential"`
		AuthTriggerType string `msgpack:"authTriggerType"`
	}
	return dump{DeviceID: a.DeviceID_, Credential: a.Credential, AuthTriggerType: "normal"}, nil
}

// Nuverse is the tw/kr/cn account descriptor dialect.
type Nuverse struct {
	UserID_     string `json:"user_id,omitempty"`
	DeviceID_   string `json:"device_id,omitempty"`
	AccessToken string `json:"access_token"`
}

func (a *Nuverse) UserID() string      { return a.UserID_ }
func (a *Nuverse) SetUserID(id string) { a.UserID_ = id }
func (a *Nuverse) DeviceID() string    { return a.DeviceID_ }

// Dump produces the exact Nuverse login payload shape. The user id must
// parse as an integer; Nuverse's wire protocol encodes it numerically.
func (a *Nuverse) Dump() (any, error) {
	uid, err := strconv.ParseInt(a.UserID_, 10, 64)
	if err != nil {
		return nil, apperror.New(apperror.KindParseError, "nuverse user id %q is not numeric: %v", a.UserID_, err)
	}
	type dump struct {
		DeviceID    string `msgpack:"deviceId,omitempty"`
		AccessToken string `msgpack:"accessToken"`
		UserID      int64  `msgpack:"userID"`
	}
	return dump{DeviceID: a.DeviceID_, AccessToken: a.AccessToken, UserID: uid}, nil
}

// nullOrNumberString unmarshals a JSON field that may be a string, a number,
// or null/absent, always producing a string (empty for null/absent).
func nullOrNumberString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// ParseCP parses one CP-dialect account descriptor entry.
func ParseCP(raw json.RawMessage) (*CP, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperror.New(apperror.KindParseError, "parse CP account: %v", err)
	}
	a := &CP{}
	if v, ok := fields["user_id"]; ok {
		a.UserID_ = nullOrNumberString(v)
	}
	if v, ok := fields["device_id"]; ok {
		a.DeviceID_ = nullOrNumberString(v)
	}
	if v, ok := fields["credential"]; ok {
		if err := json.Unmarshal(v, &a.Credential); err != nil {
			return nil, apperror.New(apperror.KindParseError, "parse CP credential: %v", err)
		}
	} else {
		return nil, apperror.New(apperror.KindParseError, "CP account missing credential")
	}

	if a.UserID_ == "" {
		id, err := ExtractUserIDFromJWT(a.Credential)
		if err != nil {
			return nil, apperror.New(apperror.KindParseError, "derive user id from credential: %v", err)
		}
		a.UserID_ = id
	}
	if a.UserID_ == "" {
		return nil, apperror.New(apperror.KindParseError, "CP account has no derivable user id")
	}
	return a, nil
}

// ParseNuverse parses one Nuverse-dialect account descriptor entry. Unlike
// ParseCP, a Nuverse account is kept even when user-id derivation fails, as
// long as a fallback user_id was present in the file.
func ParseNuverse(raw json.RawMessage) (*Nuverse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperror.New(apperror.KindParseError, "parse Nuverse account: %v", err)
	}
	a := &Nuverse{}
	if v, ok := fields["user_id"]; ok {
		a.UserID_ = nullOrNumberString(v)
	}
	if v, ok := fields["device_id"]; ok {
		a.DeviceID_ = nullOrNumberString(v)
	}
	if v, ok := fields["access_token"]; ok {
		if err := json.Unmarshal(v, &a.AccessToken); err != nil {
			return nil, apperror.New(apperror.KindParseError, "parse Nuverse access_token: %v", err)
		}
	} else {
		return nil, apperror.New(apperror.KindParseError, "Nuverse account missing access_token")
	}

	if a.UserID_ == "" || a.UserID_ == "0" {
		if id, err := ExtractUserIDFromNuverseToken(a.AccessToken); err == nil && id != "" && id != "0" {
			a.UserID_ = id
		}
	}
	if a.UserID_ == "" || a.UserID_ == "0" {
		return nil, apperror.New(apperror.KindParseError, "Nuverse account has no usable user id")
	}
	return a, nil
}
