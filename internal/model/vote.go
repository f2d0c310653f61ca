package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// VoteKind distinguishes numeric cards from symbolic ones such as "?" or "XL".
type VoteKind int

const (
	VoteKindNone VoteKind = iota
	VoteKindNumeric
	VoteKindToken
)

// VoteValue is a card played by a participant or chosen as a final estimate.
// The zero value is an empty vote and is never stored.
type VoteValue struct {
	kind   VoteKind
	number float64
	token  string
}

func NumericVote(n float64) VoteValue {
	return VoteValue{kind: VoteKindNumeric, number: n}
}

func TokenVote(token string) VoteValue {
	return VoteValue{kind: VoteKindToken, token: token}
}

// ParseVoteValue returns a numeric vote when s is a clean finite number and a
// token vote otherwise.
func ParseVoteValue(s string) VoteValue {
	trimmed := strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		return NumericVote(n)
	}
	return TokenVote(s)
}

func (v VoteValue) Kind() VoteKind { return v.kind }

func (v VoteValue) IsZero() bool { return v.kind == VoteKindNone }

func (v VoteValue) IsNumeric() bool { return v.kind == VoteKindNumeric }

// Number returns the numeric value and true for numeric votes.
func (v VoteValue) Number() (float64, bool) {
	if v.kind != VoteKindNumeric {
		return 0, false
	}
	return v.number, true
}

// Token returns the symbol and true for token votes.
func (v VoteValue) Token() (string, bool) {
	if v.kind != VoteKindToken {
		return "", false
	}
	return v.token, true
}

func (v VoteValue) String() string {
	switch v.kind {
	case VoteKindNumeric:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case VoteKindToken:
		return v.token
	default:
		return ""
	}
}

// Equal compares two votes by their canonical text, so TokenVote("5") equals
// NumericVote(5).
func (v VoteValue) Equal(other VoteValue) bool {
	if v.kind == VoteKindNone || other.kind == VoteKindNone {
		return v.kind == other.kind
	}
	return v.String() == other.String()
}

func (v VoteValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case VoteKindNumeric:
		return json.Marshal(v.number)
	case VoteKindToken:
		return json.Marshal(v.token)
	default:
		return []byte("null"), nil
	}
}

func (v *VoteValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = VoteValue{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TokenVote(s)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("vote value must be a string or number: %w", err)
		}
		*v = NumericVote(n)
		return nil
	}
}
