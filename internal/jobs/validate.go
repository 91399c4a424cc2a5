package jobs

import "strings"

// ValidatePayload checks that payload is the right type for t and carries its required ids.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobUserWelcome:
		var p UserWelcomePayload
		switch v := payload.(type) {
		case UserWelcomePayload:
			p = v
		case *UserWelcomePayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}

		if trim(p.UserID) == "" || trim(p.Email) == "" {
			return ErrInvalidJobPayload
		}
		return nil
	default:
		return ErrInvalidJobType
	}
}
