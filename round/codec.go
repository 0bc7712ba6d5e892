package round

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Timestamp is an absolute instant in whole seconds since the Unix epoch. At the
// data boundary it is exchanged as an RFC3339 string.
type Timestamp int64

// TimestampOf truncates t to second precision.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.Unix())
}

func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

func (t Timestamp) String() string {
	return t.Time().Format(time.RFC3339)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return formatError("timestamp", "", err)
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return formatError("timestamp", "", err)
	}
	*t = TimestampOf(parsed)
	return nil
}

// ChainProposalID is the ledger-native proposal identifier. It is raw bytes
// internally and a string at the data boundary, so only UTF-8 content survives
// the round trip. A nil id is written as null.
type ChainProposalID []byte

func (id ChainProposalID) String() string {
	return string(id)
}

func (id ChainProposalID) MarshalJSON() ([]byte, error) {
	if id == nil {
		return []byte("null"), nil
	}
	if !utf8.Valid(id) {
		return nil, formatError("proposal", "chain_proposal_id", errors.New("not valid UTF-8"))
	}
	return json.Marshal(string(id))
}

func (id *ChainProposalID) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return formatError("proposal", "chain_proposal_id", err)
	}
	if s == nil {
		*id = nil
		return nil
	}
	*id = append(ChainProposalID{}, *s...)
	return nil
}

// decodeAliased decodes a JSON object into v after renaming every legacy alias
// key to its canonical name. When both spellings are present the canonical one
// wins. v must point at a type without its own UnmarshalJSON method.
func decodeAliased(record string, data []byte, aliases map[string]string, v interface{}) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return formatError(record, "", err)
	}
	if fields == nil {
		return formatError(record, "", errors.New("expected an object"))
	}
	for alias, canonical := range aliases {
		value, ok := fields[alias]
		if !ok {
			continue
		}
		delete(fields, alias)
		if _, exists := fields[canonical]; !exists {
			fields[canonical] = value
		}
	}
	normalized, err := json.Marshal(fields)
	if err != nil {
		return formatError(record, "", err)
	}
	if err := json.Unmarshal(normalized, v); err != nil {
		var dfe *DataFormatError
		if errors.As(err, &dfe) {
			if dfe.Record != record {
				return formatError(record, "", err)
			}
			return dfe
		}
		return formatError(record, fieldOf(err), err)
	}
	return nil
}

func fieldOf(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field
	}
	return ""
}

// checkHex verifies that s is well formed hex without constraining its length.
func checkHex(record, field, s string) error {
	if _, err := hex.DecodeString(s); err != nil {
		return formatError(record, field, fmt.Errorf("invalid hex %q: %w", s, err))
	}
	return nil
}
