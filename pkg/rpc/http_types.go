package rpc

import (
	"errors"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
)

// Shared HTTP request/response DTOs for the intra-cluster transport and server.
type httpInvokeRequest struct {
	Origin  string          `json:"origin"`
	Kind    command.Kind    `json:"kind"`
	Command json.RawMessage `json:"command"`
}

const (
	statusSuccessful    = "successful"
	statusUnsuccessful  = "unsuccessful"
	statusException     = "exception"
	statusCacheNotFound = "cache_not_found"
)

type httpInvokeResponse struct {
	Status string          `json:"status"`
	Value  json.RawMessage `json:"value,omitempty"`
	Error  *httpError      `json:"error,omitempty"`
}

type httpError struct {
	Message string `json:"message"`
	// Outdated carries the topology id of an outdated topology failure.
	Outdated *int `json:"outdated,omitempty"`
	Protocol bool `json:"protocol,omitempty"`
}

func encodeRequest(origin string, cmd command.Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, ewrap.Wrap(err, "marshal command")
	}

	payload, err := json.Marshal(&httpInvokeRequest{Origin: origin, Kind: cmd.Kind(), Command: body})
	if err != nil {
		return nil, ewrap.Wrap(err, "marshal invoke request")
	}

	return payload, nil
}

func decodeRequest(data []byte) (string, command.Command, error) {
	var req httpInvokeRequest

	err := json.Unmarshal(data, &req)
	if err != nil {
		return "", nil, ewrap.Wrap(err, "unmarshal invoke request")
	}

	cmd, err := command.New(req.Kind)
	if err != nil {
		return "", nil, err
	}

	err = json.Unmarshal(req.Command, cmd)
	if err != nil {
		return "", nil, ewrap.Wrap(err, "unmarshal command")
	}

	return req.Origin, cmd, nil
}

func encodeResponse(resp Response) (*httpInvokeResponse, error) {
	switch r := resp.(type) {
	case SuccessfulResponse:
		if r.Value == nil {
			return &httpInvokeResponse{Status: statusSuccessful}, nil
		}

		value, err := json.Marshal(r.Value)
		if err != nil {
			return nil, ewrap.Wrap(err, "marshal result")
		}

		return &httpInvokeResponse{Status: statusSuccessful, Value: value}, nil
	case UnsuccessfulResponse:
		return &httpInvokeResponse{Status: statusUnsuccessful}, nil
	case CacheNotFoundResponse:
		return &httpInvokeResponse{Status: statusCacheNotFound}, nil
	case ExceptionResponse:
		return &httpInvokeResponse{Status: statusException, Error: encodeError(r.Err)}, nil
	}

	return nil, ewrap.Newf("unexpected response %T", resp)
}

func encodeError(err error) *httpError {
	he := &httpError{Message: err.Error()}

	var outdated *sentinel.OutdatedTopologyError
	if errors.As(err, &outdated) {
		id := outdated.TopologyID
		he.Outdated = &id
		he.Message = outdated.Reason
	}

	var protocol *sentinel.ProtocolError
	if errors.As(err, &protocol) {
		he.Protocol = true
		he.Message = protocol.Msg
	}

	return he
}

func decodeError(he *httpError) error {
	switch {
	case he == nil:
		return ewrap.New("remote failure without details")
	case he.Outdated != nil:
		return sentinel.NewOutdatedTopology(*he.Outdated, he.Message)
	case he.Protocol:
		return sentinel.NewProtocolError("%s", he.Message)
	}

	return ewrap.New(he.Message)
}

func decodeResponse(kind command.Kind, resp *httpInvokeResponse) (Response, error) {
	switch resp.Status {
	case statusUnsuccessful:
		return UnsuccessfulResponse{}, nil
	case statusCacheNotFound:
		return CacheNotFoundResponse{}, nil
	case statusException:
		return ExceptionResponse{Err: decodeError(resp.Error)}, nil
	case statusSuccessful:
		value, err := decodeResult(kind, resp.Value)
		if err != nil {
			return nil, err
		}

		return SuccessfulResponse{Value: value}, nil
	}

	return nil, sentinel.NewProtocolError("unexpected response status %q", resp.Status)
}

// decodeResult decodes the result of a command of kind into its Go shape.
func decodeResult(kind command.Kind, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil //nolint:nilnil
	}

	var target any

	switch kind {
	case command.KindWrite:
		target = &command.WriteResult{}
	case command.KindReadWriteKey:
		target = &command.ReadWriteResult{}
	case command.KindClusteredGet:
		target = &command.RemoteValue{}
	case command.KindClusteredGetAll, command.KindGetKeysInGroup:
		target = &[]*command.RemoteValue{}
	case command.KindGetAll:
		target = &[]command.KeyValue{}
	case command.KindReadOnlyMany:
		target = &[]any{}
	default:
		target = new(any)
	}

	err := json.Unmarshal(raw, target)
	if err != nil {
		return nil, ewrap.Wrapf(err, "unmarshal %s result", kind)
	}

	if kind == command.KindClusteredGet {
		// single entries travel as pointers
		return target, nil
	}

	return reflect.ValueOf(target).Elem().Interface(), nil
}
