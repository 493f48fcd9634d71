package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	cases := map[int]Outcome{
		200: OutcomeSuccess,
		204: OutcomeSuccess,
		299: OutcomeSuccess,
		400: OutcomeTerminal,
		404: OutcomeTerminal,
		429: OutcomeRetryable,
		500: OutcomeRetryable,
		503: OutcomeRetryable,
	}
	for status, want := range cases {
		assert.Equal(t, want, ClassifyStatus(status), "status %d", status)
	}
}
