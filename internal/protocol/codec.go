// Package protocol implements the StarCraft II client protocol wire format:
// typed request and response envelopes, an explicit field-number registry,
// and a codec for the 4-byte length-prefixed protobuf frames carried inside
// WebSocket binary messages.
package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Codec translates between typed envelopes and wire frames. Payload fields
// are validated against the registry in both directions: a payload number
// the registry does not know is rejected on decode rather than skipped, so
// schema drift surfaces as an explicit codec error.
type Codec struct {
	reg *Registry
}

// NewCodec creates a codec bound to the given registry.
func NewCodec(reg *Registry) *Codec {
	return &Codec{reg: reg}
}

// Registry returns the schema registry this codec validates against.
func (c *Codec) Registry() *Registry {
	return c.reg
}

// EncodeRequest serializes a request envelope into a length-prefixed frame.
func (c *Codec) EncodeRequest(req *Request) ([]byte, error) {
	kind := req.Kind()
	if kind == KindNone {
		return nil, fmt.Errorf("request envelope has no payload: %w", ErrCodec)
	}
	num, ok := c.reg.RequestNumber(kind)
	if !ok {
		return nil, fmt.Errorf("request kind %s not in registry: %w", kind, ErrCodec)
	}

	var payload []byte
	switch kind {
	case KindCreateGame:
		payload = marshalCreateGame(req.CreateGame)
	case KindJoinGame:
		payload = marshalJoinGame(req.JoinGame)
	case KindObservation:
		payload = marshalObservationRequest(req.Observation)
	case KindStep:
		payload = marshalStepRequest(req.Step)
	case KindLeaveGame, KindQuit, KindPing:
		// empty payload messages
	}

	body := appendMessageField(nil, num, payload)
	if req.ID != 0 {
		body = appendVarintField(body, fieldEnvelopeID, uint64(req.ID))
	}
	if len(body) > MaxFrameSize {
		return nil, fmt.Errorf("encoded request is %d bytes, cap is %d: %w",
			len(body), MaxFrameSize, ErrCodec)
	}
	return EncodeFrame(body), nil
}

// DecodeRequest parses a length-prefixed frame into a request envelope.
// This is the engine-facing direction, used by in-process test engines.
func (c *Codec) DecodeRequest(frame []byte) (*Request, error) {
	body, err := DecodeFrame(frame)
	if err != nil {
		return nil, err
	}

	req := &Request{}
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, parseFailure("request envelope", n)
		}
		body = body[n:]

		if num == fieldEnvelopeID {
			v, rest, err := consumeVarintField(body, typ, "request envelope.id")
			if err != nil {
				return nil, err
			}
			req.ID = uint32(v)
			body = rest
			continue
		}

		if typ != protowire.BytesType {
			if body, err = skipField(body, num, typ, "request envelope"); err != nil {
				return nil, err
			}
			continue
		}

		kind, ok := c.reg.RequestKindOf(num)
		if !ok {
			return nil, fmt.Errorf("unknown request payload field %d: %w", num, ErrCodec)
		}
		payload, rest, err := consumeBytesField(body, typ, "request envelope payload")
		if err != nil {
			return nil, err
		}
		body = rest
		if err := decodeRequestPayload(req, kind, payload); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// EncodeResponse serializes a response envelope into a length-prefixed
// frame. This is the engine-facing direction, used by in-process test
// engines. A KindNone envelope carries status and errors only.
func (c *Codec) EncodeResponse(resp *Response) ([]byte, error) {
	var body []byte

	if kind := resp.Kind(); kind != KindNone {
		num, ok := c.reg.ResponseNumber(kind)
		if !ok {
			return nil, fmt.Errorf("response kind %s not in registry: %w", kind, ErrCodec)
		}
		var payload []byte
		switch kind {
		case KindCreateGame:
			payload = marshalResponseCreateGame(resp.CreateGame)
		case KindJoinGame:
			payload = marshalResponseJoinGame(resp.JoinGame)
		case KindObservation:
			payload = marshalResponseObservation(resp.Observation)
		case KindStep:
			payload = marshalResponseStep(resp.Step)
		case KindPing:
			payload = marshalResponsePing(resp.Ping)
		case KindLeaveGame, KindQuit:
			// empty payload messages
		}
		body = appendMessageField(body, num, payload)
	}

	if resp.ID != 0 {
		body = appendVarintField(body, fieldEnvelopeID, uint64(resp.ID))
	}
	for _, msg := range resp.Error {
		body = appendStringField(body, fieldEnvelopeError, msg)
	}
	if resp.Status != 0 {
		body = appendVarintField(body, fieldEnvelopeStatus, uint64(resp.Status))
	}
	if len(body) > MaxFrameSize {
		return nil, fmt.Errorf("encoded response is %d bytes, cap is %d: %w",
			len(body), MaxFrameSize, ErrCodec)
	}
	return EncodeFrame(body), nil
}

// DecodeResponse parses a length-prefixed frame into a response envelope.
func (c *Codec) DecodeResponse(frame []byte) (*Response, error) {
	body, err := DecodeFrame(frame)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, parseFailure("response envelope", n)
		}
		body = body[n:]

		switch num {
		case fieldEnvelopeID:
			v, rest, err := consumeVarintField(body, typ, "response envelope.id")
			if err != nil {
				return nil, err
			}
			resp.ID = uint32(v)
			body = rest
			continue
		case fieldEnvelopeError:
			msg, rest, err := consumeStringField(body, typ, "response envelope.error")
			if err != nil {
				return nil, err
			}
			resp.Error = append(resp.Error, msg)
			body = rest
			continue
		case fieldEnvelopeStatus:
			v, rest, err := consumeVarintField(body, typ, "response envelope.status")
			if err != nil {
				return nil, err
			}
			resp.Status = Status(v)
			body = rest
			continue
		}

		if typ != protowire.BytesType {
			if body, err = skipField(body, num, typ, "response envelope"); err != nil {
				return nil, err
			}
			continue
		}

		kind, ok := c.reg.ResponseKindOf(num)
		if !ok {
			return nil, fmt.Errorf("unknown response payload field %d: %w", num, ErrCodec)
		}
		payload, rest, err := consumeBytesField(body, typ, "response envelope payload")
		if err != nil {
			return nil, err
		}
		body = rest
		if err := decodeResponsePayload(resp, kind, payload); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func decodeRequestPayload(req *Request, kind RequestKind, payload []byte) error {
	var err error
	switch kind {
	case KindCreateGame:
		req.CreateGame, err = unmarshalCreateGame(payload)
	case KindJoinGame:
		req.JoinGame, err = unmarshalJoinGame(payload)
	case KindLeaveGame:
		if err = skipAllFields(payload, "leave_game request"); err == nil {
			req.LeaveGame = &RequestLeaveGame{}
		}
	case KindQuit:
		if err = skipAllFields(payload, "quit request"); err == nil {
			req.Quit = &RequestQuit{}
		}
	case KindObservation:
		req.Observation, err = unmarshalObservationRequest(payload)
	case KindStep:
		req.Step, err = unmarshalStepRequest(payload)
	case KindPing:
		if err = skipAllFields(payload, "ping request"); err == nil {
			req.Ping = &RequestPing{}
		}
	}
	return err
}

func decodeResponsePayload(resp *Response, kind RequestKind, payload []byte) error {
	var err error
	switch kind {
	case KindCreateGame:
		resp.CreateGame, err = unmarshalResponseCreateGame(payload)
	case KindJoinGame:
		resp.JoinGame, err = unmarshalResponseJoinGame(payload)
	case KindLeaveGame:
		if err = skipAllFields(payload, "leave_game response"); err == nil {
			resp.LeaveGame = &ResponseLeaveGame{}
		}
	case KindQuit:
		if err = skipAllFields(payload, "quit response"); err == nil {
			resp.Quit = &ResponseQuit{}
		}
	case KindObservation:
		resp.Observation, err = unmarshalResponseObservation(payload)
	case KindStep:
		resp.Step, err = unmarshalResponseStep(payload)
	case KindPing:
		resp.Ping, err = unmarshalResponsePing(payload)
	}
	return err
}
