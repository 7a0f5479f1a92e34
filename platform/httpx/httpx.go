// Package httpx binds network primitives into typed tasks, exercising the
// read/network capability category.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"unicode/utf8"

	"github.com/taskrow/taskrow/capability"
	"github.com/taskrow/taskrow/effect"
	"github.com/taskrow/taskrow/row"
	"github.com/taskrow/taskrow/task"
)

// ConnectionFailed reports a target that refused or never accepted the
// connection.
type ConnectionFailed struct {
	URL string
	Err error
}

func (v ConnectionFailed) Tag() string { return "connection_failed" }
func (v ConnectionFailed) Error() string {
	return fmt.Sprintf("connection failed: %s: %v", v.URL, v.Err)
}
func (v ConnectionFailed) Unwrap() error { return v.Err }

// Timedout reports a request that exceeded its deadline at the transport
// level rather than being cancelled by the caller's context.
type Timedout struct{ URL string }

func (v Timedout) Tag() string   { return "timedout" }
func (v Timedout) Error() string { return fmt.Sprintf("request timed out: %s", v.URL) }

// BadStatus reports a completed exchange with a non-2xx status.
type BadStatus struct {
	URL        string
	StatusCode int
}

func (v BadStatus) Tag() string   { return "bad_status" }
func (v BadStatus) Error() string { return fmt.Sprintf("bad status %d: %s", v.StatusCode, v.URL) }

// InvalidUTF8 reports a response body that does not decode as UTF-8.
type InvalidUTF8 struct{ URL string }

func (v InvalidUTF8) Tag() string   { return "invalid_utf8" }
func (v InvalidUTF8) Error() string { return fmt.Sprintf("body is not valid UTF-8: %s", v.URL) }

// TransportFailed is the row's extension slot for any other transport
// failure, kept classifiable so the mapping stays total.
type TransportFailed struct {
	URL string
	Err error
}

func (v TransportFailed) Tag() string   { return "transport_failed" }
func (v TransportFailed) Error() string { return fmt.Sprintf("transport failed: %s: %v", v.URL, v.Err) }
func (v TransportFailed) Unwrap() error { return v.Err }

// GetRow is the declared failure set of network reads.
var GetRow = row.Of(ConnectionFailed{}, Timedout{}, BadStatus{}, InvalidUTF8{}, TransportFailed{})

// GetDecl declares the annotation of network-read continuations for AndThen.
var GetDecl = task.Decl{
	Row:  GetRow,
	Caps: capability.NewSet(capability.Read(capability.ResourceNetwork)),
}

// rawExchange is the host-typed raw outcome of one GET: translation, not
// the primitive, decides what counts as failure.
type rawExchange struct {
	statusCode int
	body       []byte
}

// GetUTF8 returns a task that fetches url with client and decodes the body
// as UTF-8. Capability: read/network. A nil client uses
// http.DefaultClient.
func GetUTF8(client *http.Client, url string) task.Task[string] {
	if client == nil {
		client = http.DefaultClient
	}
	eff := effect.NewFunc(
		"httpx.get_utf8",
		capability.Read(capability.ResourceNetwork),
		func(ctx context.Context) effect.Outcome {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return effect.Outcome{Err: err}
			}
			resp, err := client.Do(req)
			if err != nil {
				return effect.Outcome{Err: err}
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return effect.Outcome{Err: err}
			}
			return effect.Outcome{Value: rawExchange{statusCode: resp.StatusCode, body: body}}
		},
	)
	return task.Lift(eff, GetRow, func(out effect.Outcome) (string, row.Variant) {
		raw, err := effect.TypedValue[rawExchange](out)
		if err != nil {
			return "", classifyTransportErr(url, err)
		}
		if raw.statusCode < 200 || raw.statusCode > 299 {
			return "", BadStatus{URL: url, StatusCode: raw.statusCode}
		}
		if !utf8.Valid(raw.body) {
			return "", InvalidUTF8{URL: url}
		}
		return string(raw.body), nil
	})
}

func classifyTransportErr(url string, err error) row.Variant {
	var ne net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET):
		return ConnectionFailed{URL: url, Err: err}
	case errors.As(err, &ne) && ne.Timeout():
		return Timedout{URL: url}
	default:
		return TransportFailed{URL: url, Err: err}
	}
}
