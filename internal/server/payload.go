package server

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// flexInt accepts a JSON number or a numeric string. Absent, null and empty
// string values leave it unset; anything else non-numeric marks it invalid.
// A number with a fractional part is invalid and also marked fractional, so
// callers can tell it apart from text.
type flexInt struct {
	value      int64
	set        bool
	invalid    bool
	fractional bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	*f = flexInt{}
	raw, present := unquote(data)
	if !present {
		return nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		asFloat, floatErr := strconv.ParseFloat(raw, 64)
		if floatErr != nil || math.IsInf(asFloat, 0) || math.IsNaN(asFloat) {
			f.invalid = true
			return nil
		}
		if asFloat != math.Trunc(asFloat) {
			f.invalid = true
			f.fractional = true
			return nil
		}
		parsed = int64(asFloat)
	}
	f.value = parsed
	f.set = true
	return nil
}

// Ptr returns the value, or nil when it is unset or invalid.
func (f flexInt) Ptr() *int64 {
	if !f.set {
		return nil
	}
	value := f.value
	return &value
}

// IntPtr narrows the value for small ranged fields such as visibility.
func (f flexInt) IntPtr() *int {
	if !f.set {
		return nil
	}
	value := f.value
	switch {
	case value > math.MaxInt32:
		value = math.MaxInt32
	case value < math.MinInt32:
		value = math.MinInt32
	}
	narrowed := int(value)
	return &narrowed
}

// Int returns the value, or zero when it is unset or invalid.
func (f flexInt) Int() int64 {
	if !f.set {
		return 0
	}
	return f.value
}

// flexFloat is the floating point counterpart of flexInt.
type flexFloat struct {
	value   float64
	set     bool
	invalid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	*f = flexFloat{}
	raw, present := unquote(data)
	if !present {
		return nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		f.invalid = true
		return nil
	}
	f.value = parsed
	f.set = true
	return nil
}

func (f flexFloat) Ptr() *float64 {
	if !f.set {
		return nil
	}
	value := f.value
	return &value
}

// flexIDs accepts a list of flexInt values and reports whether any were invalid.
type flexIDs []flexInt

func (ids flexIDs) Values() ([]int64, bool) {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id.invalid || !id.set {
			return nil, false
		}
		out = append(out, id.value)
	}
	return out, true
}

func unquote(data []byte) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false
	}
	raw := string(trimmed)
	if strings.HasPrefix(raw, `"`) {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return raw, true
		}
		raw = strings.TrimSpace(text)
		if raw == "" {
			return "", false
		}
	}
	return raw, true
}

type createSightingPayload struct {
	UserReportID   flexInt   `json:"userReportID"`
	Description    string    `json:"description"`
	Latitude       flexFloat `json:"latitude"`
	Longitude      flexFloat `json:"longitude"`
	GhostID        flexInt   `json:"ghostId"`
	TimeOfSighting string    `json:"timeOfSighting"`
	Visibility     flexInt   `json:"visibility"`
}

type renameGhostPayload struct {
	Name string `json:"name"`
}

type createGhostPayload struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Visibility  flexInt `json:"visibility"`
}

type commentPayload struct {
	UserID      flexInt `json:"userID"`
	Description string  `json:"description"`
}

type registerPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginPayload struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// identifier returns whichever login field the client filled in.
func (p loginPayload) identifier() string {
	for _, candidate := range []string{p.Login, p.Username, p.Email} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type loginResponsePayload struct {
	User        any    `json:"user"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type busterPayload struct {
	GhostBuster *bool  `json:"ghostBuster"`
	Alias       string `json:"alias"`
}

type fightPayload struct {
	Fighting *bool `json:"fighting"`
	Busted   bool  `json:"busted"`
}

type createTourPayload struct {
	Guide     string  `json:"guide"`
	Path      string  `json:"path"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	GhostIDs  flexIDs `json:"ghostIds"`
}

type membershipPayload struct {
	UserID flexInt `json:"userID"`
}
