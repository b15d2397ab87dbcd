package discord

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/hookrelay/internal/dispatch"
)

// classifyError maps discordgo errors onto the dispatch taxonomy:
// 429 → rate limit, other 4xx → permanent, 5xx and transport errors →
// transient (returned unchanged).
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) && rl.RateLimit != nil && rl.TooManyRequests != nil {
		return &dispatch.RateLimitError{RetryAfter: rl.RetryAfter, Err: err}
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		code := rest.Response.StatusCode
		switch {
		case code == http.StatusTooManyRequests:
			return &dispatch.RateLimitError{RetryAfter: retryAfter(rest.Response.Header), Err: err}
		case code >= 500:
			return err
		case code >= 400:
			return dispatch.Permanent(err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var rest *discordgo.RESTError
	return errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}

// retryAfter parses a Retry-After header given in (possibly fractional)
// seconds. Zero means unknown.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
