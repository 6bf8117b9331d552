package gemini

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// apiError maps a non-200 response to ErrInvalidAPIKey or ErrRequestFailed.
func apiError(status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if strings.Contains(msg, "API key not valid") {
		return fmt.Errorf("%w: %s", ErrInvalidAPIKey, msg)
	}
	return fmt.Errorf("%w: status %d: %s", ErrRequestFailed, status, msg)
}
