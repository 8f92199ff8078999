package mote

import (
	"fmt"
	"time"

	"github.com/plgd-dev/go-coap/v2/message/codes"
)

// Reading is one decoded response of a mote.
type Reading struct {
	RunID      string    `yaml:"run_id"`
	Mote       string    `yaml:"mote"`
	URI        string    `yaml:"uri"`
	Payload    []byte    `yaml:"payload"`
	Text       string    `yaml:"text"`
	ReceivedAt time.Time `yaml:"received_at"`
}

// StatusError is returned when a mote answers with a non-success response code.
type StatusError struct {
	URI     string
	Code    codes.Code
	Payload []byte
}

func (e *StatusError) Error() string {
	if len(e.Payload) == 0 {
		return fmt.Sprintf("%v: unexpected response code %v", e.URI, e.Code)
	}
	return fmt.Sprintf("%v: unexpected response code %v: %v", e.URI, e.Code, DecodePayload(e.Payload))
}

func isSuccess(code codes.Code) bool {
	return code>>5 == 2
}
