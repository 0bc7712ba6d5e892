package tally

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Parameters bound every wait and retry of a tally run.
type Parameters struct {
	// PollInterval is how often the ledger clock and fragment statuses are
	// polled.
	PollInterval time.Duration

	// BoundaryTimeout bounds a single wait for the tally to open. A wait that
	// times out is retried with backoff up to BoundaryRetries times before the
	// run gives up with a TimeoutError.
	BoundaryTimeout time.Duration
	BoundaryRetries uint64

	// ConfirmationTimeout bounds the wait for a submitted fragment to land in
	// a block.
	ConfirmationTimeout time.Duration

	// SubmitRetries is how many times a rejected tally transaction is rebuilt
	// and resubmitted.
	SubmitRetries uint64

	// RetryInitialInterval and RetryMaxInterval shape the exponential backoff
	// between retries.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// ShareTimeout bounds the collection of decryption shares.
	ShareTimeout time.Duration
}

func DefaultParameters() Parameters {
	return Parameters{
		PollInterval:         time.Second,
		BoundaryTimeout:      time.Minute,
		BoundaryRetries:      5,
		ConfirmationTimeout:  time.Minute,
		SubmitRetries:        3,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
		ShareTimeout:         2 * time.Minute,
	}
}

// LoadParameters overlays BALLOT_* environment variables on the defaults.
func LoadParameters() (Parameters, error) {
	p := DefaultParameters()
	var err error
	for _, d := range []struct {
		name  string
		value *time.Duration
	}{
		{"BALLOT_POLL_INTERVAL", &p.PollInterval},
		{"BALLOT_BOUNDARY_TIMEOUT", &p.BoundaryTimeout},
		{"BALLOT_CONFIRMATION_TIMEOUT", &p.ConfirmationTimeout},
		{"BALLOT_RETRY_INITIAL_INTERVAL", &p.RetryInitialInterval},
		{"BALLOT_RETRY_MAX_INTERVAL", &p.RetryMaxInterval},
		{"BALLOT_SHARE_TIMEOUT", &p.ShareTimeout},
	} {
		if *d.value, err = envDuration(d.name, *d.value); err != nil {
			return Parameters{}, err
		}
	}
	if p.BoundaryRetries, err = envUint("BALLOT_BOUNDARY_RETRIES", p.BoundaryRetries); err != nil {
		return Parameters{}, err
	}
	if p.SubmitRetries, err = envUint("BALLOT_SUBMIT_RETRIES", p.SubmitRetries); err != nil {
		return Parameters{}, err
	}
	return p, p.Validate()
}

func (p Parameters) Validate() error {
	for name, d := range map[string]time.Duration{
		"poll interval":          p.PollInterval,
		"boundary timeout":       p.BoundaryTimeout,
		"confirmation timeout":   p.ConfirmationTimeout,
		"retry initial interval": p.RetryInitialInterval,
		"retry max interval":     p.RetryMaxInterval,
		"share timeout":          p.ShareTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

func envUint(name string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
