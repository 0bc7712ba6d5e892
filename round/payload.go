package round

import "fmt"

// Payload is how individual votes of a vote plan are stored on the ledger:
// in the clear or encrypted to the committee key.
type Payload uint8

const (
	Public Payload = iota + 1
	Private
)

func ParsePayload(tag string) (Payload, error) {
	switch tag {
	case "public":
		return Public, nil
	case "private":
		return Private, nil
	default:
		return 0, formatError("payload", "", fmt.Errorf("unknown payload kind %q", tag))
	}
}

func (p Payload) String() string {
	switch p {
	case Public:
		return "public"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("payload(%d)", uint8(p))
	}
}

func (p Payload) MarshalText() ([]byte, error) {
	if p != Public && p != Private {
		return nil, formatError("payload", "", fmt.Errorf("unknown payload kind %d", uint8(p)))
	}
	return []byte(p.String()), nil
}

func (p *Payload) UnmarshalText(text []byte) error {
	parsed, err := ParsePayload(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
