package protocol

import "google.golang.org/protobuf/encoding/protowire"

// Field append helpers. Optional scalars follow proto2 presence rules:
// zero-valued strings and false booleans are omitted entirely.

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarintField(b, num, 1)
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessageField(b []byte, num protowire.Number, payload []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func marshalLocalMap(m *LocalMap) []byte {
	b := appendStringField(nil, 1, m.MapPath)
	if len(m.MapData) > 0 {
		b = appendMessageField(b, 2, m.MapData)
	}
	return b
}

func marshalPlayerSetup(m *PlayerSetup) []byte {
	b := appendVarintField(nil, 1, uint64(m.Type))
	if m.Race != RaceNone {
		b = appendVarintField(b, 2, uint64(m.Race))
	}
	if m.Difficulty != 0 {
		b = appendVarintField(b, 3, uint64(m.Difficulty))
	}
	b = appendStringField(b, 4, m.PlayerName)
	if m.AIBuild != 0 {
		b = appendVarintField(b, 5, uint64(m.AIBuild))
	}
	return b
}

func marshalCreateGame(m *RequestCreateGame) []byte {
	var b []byte
	switch {
	case m.LocalMap != nil:
		b = appendMessageField(b, 1, marshalLocalMap(m.LocalMap))
	case m.BattlenetMapName != "":
		b = appendStringField(b, 2, m.BattlenetMapName)
	}
	for i := range m.PlayerSetup {
		b = appendMessageField(b, 3, marshalPlayerSetup(&m.PlayerSetup[i]))
	}
	b = appendBoolField(b, 4, m.DisableFog)
	if m.RandomSeed != nil {
		b = appendVarintField(b, 6, uint64(*m.RandomSeed))
	}
	b = appendBoolField(b, 7, m.Realtime)
	return b
}

func marshalInterfaceOptions(m *InterfaceOptions) []byte {
	b := appendBoolField(nil, 1, m.Raw)
	b = appendBoolField(b, 2, m.Score)
	b = appendBoolField(b, 5, m.ShowCloaked)
	b = appendBoolField(b, 6, m.RawAffectsSelection)
	b = appendBoolField(b, 7, m.RawCropToPlayableArea)
	b = appendBoolField(b, 8, m.ShowPlaceholders)
	b = appendBoolField(b, 9, m.ShowBurrowedShadows)
	return b
}

func marshalPortSet(m *PortSet) []byte {
	b := appendVarintField(nil, 1, uint64(int64(m.GamePort)))
	return appendVarintField(b, 2, uint64(int64(m.BasePort)))
}

func marshalJoinGame(m *RequestJoinGame) []byte {
	var b []byte
	if m.ObservedPlayerID != nil {
		b = appendVarintField(b, 2, uint64(*m.ObservedPlayerID))
	} else {
		b = appendVarintField(b, 1, uint64(m.Race))
	}
	if m.Options != nil {
		b = appendMessageField(b, 3, marshalInterfaceOptions(m.Options))
	}
	if m.ServerPorts != nil {
		b = appendMessageField(b, 4, marshalPortSet(m.ServerPorts))
	}
	for i := range m.ClientPorts {
		b = appendMessageField(b, 5, marshalPortSet(&m.ClientPorts[i]))
	}
	b = appendStringField(b, 7, m.PlayerName)
	b = appendStringField(b, 8, m.HostIP)
	return b
}

func marshalObservationRequest(m *RequestObservation) []byte {
	b := appendBoolField(nil, 1, m.DisableFog)
	if m.GameLoop != 0 {
		b = appendVarintField(b, 2, uint64(m.GameLoop))
	}
	return b
}

func marshalStepRequest(m *RequestStep) []byte {
	return appendVarintField(nil, 1, uint64(m.Count))
}

func marshalResponseCreateGame(m *ResponseCreateGame) []byte {
	var b []byte
	if m.ErrorCode != 0 {
		b = appendVarintField(b, 1, uint64(m.ErrorCode))
	}
	return appendStringField(b, 2, m.ErrorDetails)
}

func marshalResponseJoinGame(m *ResponseJoinGame) []byte {
	var b []byte
	if m.PlayerID != 0 {
		b = appendVarintField(b, 1, uint64(m.PlayerID))
	}
	if m.ErrorCode != 0 {
		b = appendVarintField(b, 2, uint64(m.ErrorCode))
	}
	return appendStringField(b, 3, m.ErrorDetails)
}

// marshalObservation emits Raw verbatim when present so a decoded
// observation survives re-encoding byte for byte.
func marshalObservation(m *Observation) []byte {
	if m.Raw != nil {
		return m.Raw
	}
	return appendVarintField(nil, 9, uint64(m.GameLoop))
}

func marshalPlayerResult(m *PlayerResult) []byte {
	b := appendVarintField(nil, 1, uint64(m.PlayerID))
	return appendVarintField(b, 2, uint64(m.Result))
}

func marshalResponseObservation(m *ResponseObservation) []byte {
	var b []byte
	if m.Observation != nil {
		b = appendMessageField(b, 3, marshalObservation(m.Observation))
	}
	for i := range m.PlayerResult {
		b = appendMessageField(b, 4, marshalPlayerResult(&m.PlayerResult[i]))
	}
	return b
}

func marshalResponseStep(m *ResponseStep) []byte {
	if m.SimulationLoop == 0 {
		return nil
	}
	return appendVarintField(nil, 1, uint64(m.SimulationLoop))
}

func marshalResponsePing(m *ResponsePing) []byte {
	b := appendStringField(nil, 1, m.GameVersion)
	b = appendStringField(b, 2, m.DataVersion)
	if m.DataBuild != 0 {
		b = appendVarintField(b, 3, uint64(m.DataBuild))
	}
	if m.BaseBuild != 0 {
		b = appendVarintField(b, 4, uint64(m.BaseBuild))
	}
	return b
}
