// Package idgen defines the booking ID shape shared by the generators in its
// subpackages: "PS-" followed by six characters of the base-36 alphabet.
package idgen

import "regexp"

const (
	Prefix   = "PS-"
	Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Length   = 6
)

var shape = regexp.MustCompile(`^PS-[0-9A-Z]{6}$`)

func Valid(id string) bool {
	return shape.MatchString(id)
}
