package media

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSrc is returned for a src that is not "<service>:<type>:<id>".
var ErrInvalidSrc = errors.New("invalid src")

// Src is a parsed media key. The id may itself contain colons.
type Src struct {
	Service string
	Type    string
	ID      string
}

// ParseSrc splits a src into its parts.
func ParseSrc(src string) (Src, error) {
	parts := strings.SplitN(src, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Src{}, fmt.Errorf("%w: %q", ErrInvalidSrc, src)
	}
	return Src{Service: parts[0], Type: parts[1], ID: parts[2]}, nil
}

// NewSrc joins the parts of a src.
func NewSrc(service, typ, id string) string {
	return service + ":" + typ + ":" + id
}

func (s Src) String() string {
	return NewSrc(s.Service, s.Type, s.ID)
}

// ServiceOf returns the service prefix of src, or "" if there is none.
func ServiceOf(src string) string {
	service, _, ok := strings.Cut(src, ":")
	if !ok {
		return ""
	}
	return service
}
