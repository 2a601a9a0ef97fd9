package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Status int

const (
	NotApplicable Status = iota
	Valid
	Expired
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "Valid"
	case Expired:
		return "Expired"
	default:
		return "NotApplicable"
	}
}

// TimeClaims holds the registered time claims. A nil field is an absent claim;
// a claim of the wrong JSON type also counts as absent.
type TimeClaims struct {
	IssuedAt  *jwt.NumericDate
	NotBefore *jwt.NumericDate
	ExpiresAt *jwt.NumericDate
}

func ReadTimeClaims(payload jwt.MapClaims) TimeClaims {
	var tc TimeClaims
	if v, err := payload.GetIssuedAt(); err == nil {
		tc.IssuedAt = v
	}
	if v, err := payload.GetNotBefore(); err == nil {
		tc.NotBefore = v
	}
	if v, err := payload.GetExpirationTime(); err == nil {
		tc.ExpiresAt = v
	}
	return tc
}

func (tc TimeClaims) Any() bool {
	return tc.IssuedAt != nil || tc.NotBefore != nil || tc.ExpiresAt != nil
}

// Formatter renders claim timestamps for display.
type Formatter struct {
	Layout   string
	Location *time.Location
}

const DefaultLayout = "1/2/2006, 3:04:05 PM"

func DefaultFormatter() Formatter {
	return Formatter{Layout: DefaultLayout, Location: time.Local}
}

func (f Formatter) Format(t time.Time) string {
	layout := f.Layout
	if layout == "" {
		layout = DefaultLayout
	}
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(layout)
}

type Hint struct {
	Label string
	Value string
	// Tag is "(Valid)" or "(Expired)" on the expiry hint and empty otherwise.
	Tag string
}

type Evaluation struct {
	Status    Status
	ExpiresAt time.Time
	// ShowHints is set when any of iat, nbf or exp is present, even if no
	// individual hint line is produced (nbf alone).
	ShowHints bool
	Hints     []Hint
}

// Evaluate classifies the expiry of payload at now. nbf only switches the hint
// block on; it is not checked against now.
func Evaluate(payload jwt.MapClaims, now time.Time, f Formatter) Evaluation {
	tc := ReadTimeClaims(payload)
	if !tc.Any() {
		return Evaluation{Status: NotApplicable}
	}

	ev := Evaluation{Status: NotApplicable, ShowHints: true}
	if tc.IssuedAt != nil {
		ev.Hints = append(ev.Hints, Hint{Label: "Issued At (iat):", Value: f.Format(tc.IssuedAt.Time)})
	}
	if tc.ExpiresAt != nil {
		ev.ExpiresAt = tc.ExpiresAt.Time
		ev.Status = Valid
		tag := "(Valid)"
		if now.After(tc.ExpiresAt.Time) {
			ev.Status = Expired
			tag = "(Expired)"
		}
		ev.Hints = append(ev.Hints, Hint{Label: "Expires (exp):", Value: f.Format(tc.ExpiresAt.Time), Tag: tag})
	}
	return ev
}
