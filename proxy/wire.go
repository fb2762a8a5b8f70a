package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360/mtscore/errors"
)

// DefaultPrefix is the first subject token when none is configured.
const DefaultPrefix = "mts"

type request struct {
	Arg json.RawMessage `json:"arg,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

type eventMessage struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Time    time.Time       `json:"time"`
}

func subject(prefix, comp, iface string, parts ...string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return strings.Join(append([]string{prefix, comp, iface}, parts...), ".")
}

// CommandSubject is the request subject of a remote command.
func CommandSubject(prefix, comp, iface, cmd string) string {
	return subject(prefix, comp, iface, "cmd", cmd)
}

// EventSubject is the subject a remote event is published on.
func EventSubject(prefix, comp, iface, event string) string {
	return subject(prefix, comp, iface, "evt", event)
}

// DescribeSubject serves the description of an exported interface.
func DescribeSubject(prefix, comp, iface string) string {
	return subject(prefix, comp, iface, "describe")
}

// Error codes carried in replies.
const (
	codeNotFound     = "not_found"
	codeTypeMismatch = "type_mismatch"
	codeQueueFull    = "queue_full"
	codeDisabled     = "disabled"
	codeTimeout      = "timeout"
	codeUnbound      = "unbound"
	codeClosed       = "closed"
	codeInvalid      = "invalid"
	codeInternal     = "internal"
)

var codeSentinels = []struct {
	code     string
	sentinel error
}{
	{codeNotFound, errors.ErrNotFound},
	{codeTypeMismatch, errors.ErrTypeMismatch},
	{codeQueueFull, errors.ErrQueueFull},
	{codeDisabled, errors.ErrDisabled},
	{codeTimeout, errors.ErrTimeout},
	{codeUnbound, errors.ErrUnbound},
	{codeClosed, errors.ErrMailboxClosed},
	{codeInvalid, errors.ErrInvalidData},
}

func errorCode(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return codeTimeout
	}
	for _, cs := range codeSentinels {
		if errors.Is(err, cs.sentinel) {
			return cs.code
		}
	}
	return codeInternal
}

// remoteError rebuilds a reply error around the local sentinel for its code so
// errors.Is works the same on both sides of a proxy.
func remoteError(method, code, msg string) error {
	for _, cs := range codeSentinels {
		if cs.code != code {
			continue
		}
		err := fmt.Errorf("%w: remote: %s", cs.sentinel, msg)
		switch code {
		case codeQueueFull, codeTimeout:
			return errors.WrapTransient(err, "Client", method, "remote call")
		case codeClosed:
			return errors.Wrap(err, "Client", method, "remote call")
		default:
			return errors.WrapInvalid(err, "Client", method, "remote call")
		}
	}
	return errors.Wrap(fmt.Errorf("remote: %s", msg), "Client", method, "remote call")
}

func encodeResponse(result json.RawMessage, err error) []byte {
	resp := response{Result: result}
	if err != nil {
		resp.Result = nil
		resp.Error = err.Error()
		resp.Code = errorCode(err)
	}
	data, mErr := json.Marshal(resp)
	if mErr != nil {
		data, _ = json.Marshal(response{Error: mErr.Error(), Code: codeInternal})
	}
	return data
}
