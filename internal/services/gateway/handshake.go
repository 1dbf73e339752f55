package gateway

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/mcoot/userdata/internal/model"
)

// Query keys carried by a provider's handoff connection
const (
	QueryToken = "token"
	QueryUID   = "uid"
	QueryName  = "name"
)

// Handshake is the resolved identity a provider pushes back to the game
type Handshake struct {
	Token string
	UID   int
	Name  string
}

// HasHandshake reports whether query carries any handoff key. Such a
// connection must then parse strictly.
func HasHandshake(query url.Values) bool {
	for _, k := range []string{QueryToken, QueryUID, QueryName} {
		if _, ok := query[k]; ok {
			return true
		}
	}
	return false
}

// ParseHandshake requires token, uid and name exactly once each
func ParseHandshake(query url.Values) (*Handshake, error) {
	values := make(map[string]string, 3)
	for _, k := range []string{QueryToken, QueryUID, QueryName} {
		v, ok := query[k]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", model.ErrInvalidHandshake, k)
		}
		if len(v) != 1 {
			return nil, fmt.Errorf("%w: %s given %d times", model.ErrInvalidHandshake, k, len(v))
		}
		if v[0] == "" {
			return nil, fmt.Errorf("%w: empty %s", model.ErrInvalidHandshake, k)
		}
		values[k] = v[0]
	}

	uid, err := strconv.Atoi(values[QueryUID])
	if err != nil {
		return nil, fmt.Errorf("%w: uid is not an integer", model.ErrInvalidHandshake)
	}
	return &Handshake{Token: values[QueryToken], UID: uid, Name: values[QueryName]}, nil
}

// Query encodes the handshake for a dial URL
func (h Handshake) Query() url.Values {
	return url.Values{
		QueryToken: {h.Token},
		QueryUID:   {strconv.Itoa(h.UID)},
		QueryName:  {h.Name},
	}
}

// CheckQuery validates the handoff keys of a websocket query, if any. It is
// meant to run before the upgrade.
func CheckQuery(query url.Values) error {
	if !HasHandshake(query) {
		return nil
	}
	_, err := ParseHandshake(query)
	return err
}
