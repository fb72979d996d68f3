package protocol

import "google.golang.org/protobuf/encoding/protowire"

// Envelope field numbers shared by request and response messages. Payload
// variants occupy 1..19; the trailing scalar fields sit in the 97..99 range
// so they never collide with a payload.
const (
	fieldCreateGame  protowire.Number = 1
	fieldJoinGame    protowire.Number = 2
	fieldLeaveGame   protowire.Number = 5
	fieldQuit        protowire.Number = 8
	fieldObservation protowire.Number = 10
	fieldStep        protowire.Number = 12
	fieldPing        protowire.Number = 19

	fieldEnvelopeID     protowire.Number = 97
	fieldEnvelopeError  protowire.Number = 98
	fieldEnvelopeStatus protowire.Number = 99
)

// Registry is the explicit schema a Codec works against: it maps envelope
// payload field numbers to message kinds and back, for both directions of
// the protocol. Payload fields outside the registry are rejected on decode,
// so a registry instance pins down exactly which messages a codec accepts.
type Registry struct {
	requestKinds  map[protowire.Number]RequestKind
	responseKinds map[protowire.Number]RequestKind
	requestNums   map[RequestKind]protowire.Number
	responseNums  map[RequestKind]protowire.Number
}

// NewRegistry returns a registry covering every message kind this client
// speaks. Request and response envelopes use the same payload numbering.
func NewRegistry() *Registry {
	r := &Registry{
		requestKinds:  make(map[protowire.Number]RequestKind),
		responseKinds: make(map[protowire.Number]RequestKind),
		requestNums:   make(map[RequestKind]protowire.Number),
		responseNums:  make(map[RequestKind]protowire.Number),
	}
	for kind, num := range map[RequestKind]protowire.Number{
		KindCreateGame:  fieldCreateGame,
		KindJoinGame:    fieldJoinGame,
		KindLeaveGame:   fieldLeaveGame,
		KindQuit:        fieldQuit,
		KindObservation: fieldObservation,
		KindStep:        fieldStep,
		KindPing:        fieldPing,
	} {
		r.requestKinds[num] = kind
		r.responseKinds[num] = kind
		r.requestNums[kind] = num
		r.responseNums[kind] = num
	}
	return r
}

// RequestNumber returns the envelope field number for a request kind.
func (r *Registry) RequestNumber(kind RequestKind) (protowire.Number, bool) {
	num, ok := r.requestNums[kind]
	return num, ok
}

// ResponseNumber returns the envelope field number for a response kind.
func (r *Registry) ResponseNumber(kind RequestKind) (protowire.Number, bool) {
	num, ok := r.responseNums[kind]
	return num, ok
}

// RequestKindOf resolves a request envelope payload field number.
func (r *Registry) RequestKindOf(num protowire.Number) (RequestKind, bool) {
	kind, ok := r.requestKinds[num]
	return kind, ok
}

// ResponseKindOf resolves a response envelope payload field number.
func (r *Registry) ResponseKindOf(num protowire.Number) (RequestKind, bool) {
	kind, ok := r.responseKinds[num]
	return kind, ok
}
