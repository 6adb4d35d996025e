package idgen

import "testing"

func TestValid(t *testing.T) {
	for _, id := range []string{"PS-000000", "PS-ABC123", "PS-ZZZZZZ"} {
		if !Valid(id) {
			t.Errorf("%q should be valid", id)
		}
	}

	for _, id := range []string{"", "PS-", "PS-abc123", "PS-ABC12", "PS-ABC1234", "XX-ABC123", "PS-ABC-12"} {
		if Valid(id) {
			t.Errorf("%q should be invalid", id)
		}
	}
}
