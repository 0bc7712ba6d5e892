package round

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Choice is the numeric code of a vote option as understood by the ledger.
type Choice = uint8

// VoteOption pairs a human readable label with its ledger choice code.
type VoteOption struct {
	Label  string
	Choice Choice
}

// VoteOptions maps option labels to choice codes. Entries keep the order in
// which they appeared in the source document so that lookups by code are
// deterministic even when codes are (incorrectly) repeated.
type VoteOptions []VoteOption

// NewVoteOptions builds options from label/choice pairs in the given order.
func NewVoteOptions(options ...VoteOption) (VoteOptions, error) {
	vo := make(VoteOptions, 0, len(options))
	for _, o := range options {
		if _, ok := vo.Choice(o.Label); ok {
			return nil, formatError("vote_options", o.Label, errors.New("duplicate label"))
		}
		vo = append(vo, o)
	}
	return vo, nil
}

func (vo VoteOptions) Len() int {
	return len(vo)
}

// OptionText returns the first label, in document order, paired with choice.
func (vo VoteOptions) OptionText(choice Choice) (string, bool) {
	for _, o := range vo {
		if o.Choice == choice {
			return o.Label, true
		}
	}
	return "", false
}

// Choice returns the code for a label.
func (vo VoteOptions) Choice(label string) (Choice, bool) {
	for _, o := range vo {
		if o.Label == label {
			return o.Choice, true
		}
	}
	return 0, false
}

// Dense reports whether the codes are exactly 0..Len()-1.
func (vo VoteOptions) Dense() bool {
	seen := make([]bool, len(vo))
	for _, o := range vo {
		if int(o.Choice) >= len(vo) || seen[o.Choice] {
			return false
		}
		seen[o.Choice] = true
	}
	return true
}

// MarshalJSON writes the options as an object in document order. Nil options
// are written as null.
func (vo VoteOptions) MarshalJSON() ([]byte, error) {
	if vo == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, o := range vo {
		if i > 0 {
			buf.WriteByte(',')
		}
		label, err := json.Marshal(o.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(label)
		fmt.Fprintf(&buf, ":%d", o.Choice)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (vo *VoteOptions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*vo = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return formatError("vote_options", "", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return formatError("vote_options", "", errors.New("expected an object"))
	}
	var options []VoteOption
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return formatError("vote_options", "", err)
		}
		label := tok.(string)
		var choice Choice
		if err := dec.Decode(&choice); err != nil {
			return formatError("vote_options", label, err)
		}
		options = append(options, VoteOption{Label: label, Choice: choice})
	}
	if _, err := dec.Token(); err != nil {
		return formatError("vote_options", "", err)
	}
	parsed, err := NewVoteOptions(options...)
	if err != nil {
		return err
	}
	*vo = parsed
	return nil
}
