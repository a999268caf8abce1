package metrics

import (
	"errors"
	"strconv"

	"github.com/dgnsrekt/readaloud/internal/synth"
)

func statusLabel(err error) string {
	var upstream *synth.UpstreamError
	switch {
	case errors.As(err, &upstream):
		return strconv.Itoa(upstream.Status)
	case errors.Is(err, synth.ErrCredentialMissing):
		return "credential"
	case errors.Is(err, synth.ErrEmptyResponse):
		return "empty"
	default:
		return "other"
	}
}
