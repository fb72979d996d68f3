package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field consume helpers. Known fields are decoded strictly: a wire type
// that disagrees with the schema is a codec error, not an unknown field.

func parseFailure(what string, n int) error {
	return fmt.Errorf("%s: %v: %w", what, protowire.ParseError(n), ErrCodec)
}

func consumeVarintField(b []byte, typ protowire.Type, what string) (uint64, []byte, error) {
	if typ != protowire.VarintType {
		return 0, nil, fmt.Errorf("%s: wire type %d, want varint: %w", what, typ, ErrCodec)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, nil, parseFailure(what, n)
	}
	return v, b[n:], nil
}

func consumeBytesField(b []byte, typ protowire.Type, what string) ([]byte, []byte, error) {
	if typ != protowire.BytesType {
		return nil, nil, fmt.Errorf("%s: wire type %d, want bytes: %w", what, typ, ErrCodec)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, parseFailure(what, n)
	}
	return v, b[n:], nil
}

func consumeStringField(b []byte, typ protowire.Type, what string) (string, []byte, error) {
	v, rest, err := consumeBytesField(b, typ, what)
	return string(v), rest, err
}

func skipField(b []byte, num protowire.Number, typ protowire.Type, what string) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return nil, parseFailure(what, n)
	}
	return b[n:], nil
}

// skipAllFields validates an empty-in-our-schema message, tolerating any
// fields future engine versions may add.
func skipAllFields(b []byte, what string) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseFailure(what, n)
		}
		var err error
		if b, err = skipField(b[n:], num, typ, what); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalLocalMap(b []byte) (*LocalMap, error) {
	m := &LocalMap{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("local_map", n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			m.MapPath, b, err = consumeStringField(b, typ, "local_map.map_path")
		case 2:
			m.MapData, b, err = consumeBytesField(b, typ, "local_map.map_data")
		default:
			b, err = skipField(b, num, typ, "local_map")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func unmarshalPlayerSetup(b []byte) (PlayerSetup, error) {
	var m PlayerSetup
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, parseFailure("player_setup", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 1:
			v, b, err = consumeVarintField(b, typ, "player_setup.type")
			m.Type = PlayerType(v)
		case 2:
			v, b, err = consumeVarintField(b, typ, "player_setup.race")
			m.Race = Race(v)
		case 3:
			v, b, err = consumeVarintField(b, typ, "player_setup.difficulty")
			m.Difficulty = Difficulty(v)
		case 4:
			m.PlayerName, b, err = consumeStringField(b, typ, "player_setup.player_name")
		case 5:
			v, b, err = consumeVarintField(b, typ, "player_setup.ai_build")
			m.AIBuild = AIBuild(v)
		default:
			b, err = skipField(b, num, typ, "player_setup")
		}
		if err != nil {
			return m, err
		}
	}
	return m, nil
}

func unmarshalCreateGame(b []byte) (*RequestCreateGame, error) {
	m := &RequestCreateGame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("create_game", n)
		}
		b = b[n:]
		var raw []byte
		var v uint64
		var err error
		switch num {
		case 1:
			raw, b, err = consumeBytesField(b, typ, "create_game.local_map")
			if err == nil {
				m.LocalMap, err = unmarshalLocalMap(raw)
			}
		case 2:
			m.BattlenetMapName, b, err = consumeStringField(b, typ, "create_game.battlenet_map_name")
		case 3:
			raw, b, err = consumeBytesField(b, typ, "create_game.player_setup")
			if err == nil {
				var ps PlayerSetup
				if ps, err = unmarshalPlayerSetup(raw); err == nil {
					m.PlayerSetup = append(m.PlayerSetup, ps)
				}
			}
		case 4:
			v, b, err = consumeVarintField(b, typ, "create_game.disable_fog")
			m.DisableFog = v != 0
		case 6:
			v, b, err = consumeVarintField(b, typ, "create_game.random_seed")
			seed := uint32(v)
			m.RandomSeed = &seed
		case 7:
			v, b, err = consumeVarintField(b, typ, "create_game.realtime")
			m.Realtime = v != 0
		default:
			b, err = skipField(b, num, typ, "create_game")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func unmarshalInterfaceOptions(b []byte) (*InterfaceOptions, error) {
	m := &InterfaceOptions{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("interface_options", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 1:
			v, b, err = consumeVarintField(b, typ, "interface_options.raw")
			m.Raw = v != 0
		case 2:
			v, b, err = consumeVarintField(b, typ, "interface_options.score")
			m.Score = v != 0
		case 5:
			v, b, err = consumeVarintField(b, typ, "interface_options.show_cloaked")
			m.ShowCloaked = v != 0
		case 6:
			v, b, err = consumeVarintField(b, typ, "interface_options.raw_affects_selection")
			m.RawAffectsSelection = v != 0
		case 7:
			v, b, err = consumeVarintField(b, typ, "interface_options.raw_crop_to_playable_area")
			m.RawCropToPlayableArea = v != 0
		case 8:
			v, b, err = consumeVarintField(b, typ, "interface_options.show_placeholders")
			m.ShowPlaceholders = v != 0
		case 9:
			v, b, err = consumeVarintField(b, typ, "interface_options.show_burrowed_shadows")
			m.ShowBurrowedShadows = v != 0
		default:
			b, err = skipField(b, num, typ, "interface_options")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func unmarshalPortSet(b []byte) (PortSet, error) {
	var m PortSet
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, parseFailure("port_set", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 1:
			v, b, err = consumeVarintField(b, typ, "port_set.game_port")
			m.GamePort = int32(v)
		case 2:
			v, b, err = consumeVarintField(b, typ, "port_set.base_port")
			m.BasePort = int32(v)
		default:
			b, err = skipField(b, num, typ, "port_set")
		}
		if err != nil {
			return m, err
		}
	}
	return m, nil
}

func unmarshalJoinGame(b []byte) (*RequestJoinGame, error) {
	m := &RequestJoinGame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("join_game", n)
		}
		b = b[n:]
		var raw []byte
		var v uint64
		var err error
		switch num {
		case 1:
			v, b, err = consumeVarintField(b, typ, "join_game.race")
			m.Race = Race(v)
		case 2:
			v, b, err = consumeVarintField(b, typ, "join_game.observed_player_id")
			id := uint32(v)
			m.ObservedPlayerID = &id
		case 3:
			raw, b, err = consumeBytesField(b, typ, "join_game.options")
			if err == nil {
				m.Options, err = unmarshalInterfaceOptions(raw)
			}
		case 4:
			raw, b, err = consumeBytesField(b, typ, "join_game.server_ports")
			if err == nil {
				var ps PortSet
				if ps, err = unmarshalPortSet(raw); err == nil {
					m.ServerPorts = &ps
				}
			}
		case 5:
			raw, b, err = consumeBytesField(b, typ, "join_game.client_ports")
			if err == nil {
				var ps PortSet
				if ps, err = unmarshalPortSet(raw); err == nil {
					m.ClientPorts = append(m.ClientPorts, ps)
				}
			}
		case 7:
			m.PlayerName, b, err = consumeStringField(b, typ, "join_game.player_name")
		case 8:
			m.HostIP, b, err = consumeStringField(b, typ, "join_game.host_ip")
		default:
			b, err = skipField(b, num, typ, "join_game")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func unmarshalObservationRequest(b []byte) (*RequestObservation, error) {
	m := &RequestObservation{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("observation request", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 1:
			v, b, err = consumeVarintField(b, typ, "observation request.disable_fog")
			m.DisableFog = v != 0
		case 2:
			v, b, err = consumeVarintField(b, typ, "observation request.game_loop")
			m.GameLoop = uint32(v)
		default:
			b, err = skipField(b, num, typ, "observation request")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func unmarshalStepRequest(b []byte) (*RequestStep, error) {
	m := &RequestStep{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("step request", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 1:
			v, b, err = consumeVarintField(b, typ, "step request.count")
			m.Count = uint32(v)
		default:
			b, err = skipField(b, num, typ, "step request")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func unmarshalResponseCreateGame(b []byte) (*ResponseCreateGame, error) {
	m := &ResponseCreateGame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("create_game response", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 1:
			v, b, err = consumeVarintField(b, typ, "create_game response.error")
			m.ErrorCode = uint32(v)
		case 2:
			m.ErrorDetails, b, err = consumeStringField(b, typ, "create_game response.error_details")
		default:
			b, err = skipField(b, num, typ, "create_game response")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func unmarshalResponseJoinGame(b []byte) (*ResponseJoinGame, error) {
	m := &ResponseJoinGame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("join_game response", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 1:
			v, b, err = consumeVarintField(b, typ, "join_game response.player_id")
			m.PlayerID = uint32(v)
		case 2:
			v, b, err = consumeVarintField(b, typ, "join_game response.error")
			m.ErrorCode = uint32(v)
		case 3:
			m.ErrorDetails, b, err = consumeStringField(b, typ, "join_game response.error_details")
		default:
			b, err = skipField(b, num, typ, "join_game response")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// unmarshalObservation models only the loop counter and keeps the full
// payload in Raw. The slice aliases the decoded frame.
func unmarshalObservation(b []byte) (*Observation, error) {
	m := &Observation{Raw: b}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("observation", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 9:
			v, b, err = consumeVarintField(b, typ, "observation.game_loop")
			m.GameLoop = uint32(v)
		default:
			b, err = skipField(b, num, typ, "observation")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func unmarshalPlayerResult(b []byte) (PlayerResult, error) {
	var m PlayerResult
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, parseFailure("player_result", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 1:
			v, b, err = consumeVarintField(b, typ, "player_result.player_id")
			m.PlayerID = uint32(v)
		case 2:
			v, b, err = consumeVarintField(b, typ, "player_result.result")
			m.Result = Result(v)
		default:
			b, err = skipField(b, num, typ, "player_result")
		}
		if err != nil {
			return m, err
		}
	}
	return m, nil
}

func unmarshalResponseObservation(b []byte) (*ResponseObservation, error) {
	m := &ResponseObservation{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("observation response", n)
		}
		b = b[n:]
		var raw []byte
		var err error
		switch num {
		case 3:
			raw, b, err = consumeBytesField(b, typ, "observation response.observation")
			if err == nil {
				m.Observation, err = unmarshalObservation(raw)
			}
		case 4:
			raw, b, err = consumeBytesField(b, typ, "observation response.player_result")
			if err == nil {
				var pr PlayerResult
				if pr, err = unmarshalPlayerResult(raw); err == nil {
					m.PlayerResult = append(m.PlayerResult, pr)
				}
			}
		default:
			b, err = skipField(b, num, typ, "observation response")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func unmarshalResponseStep(b []byte) (*ResponseStep, error) {
	m := &ResponseStep{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("step response", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 1:
			v, b, err = consumeVarintField(b, typ, "step response.simulation_loop")
			m.SimulationLoop = uint32(v)
		default:
			b, err = skipField(b, num, typ, "step response")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func unmarshalResponsePing(b []byte) (*ResponsePing, error) {
	m := &ResponsePing{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, parseFailure("ping response", n)
		}
		b = b[n:]
		var v uint64
		var err error
		switch num {
		case 1:
			m.GameVersion, b, err = consumeStringField(b, typ, "ping response.game_version")
		case 2:
			m.DataVersion, b, err = consumeStringField(b, typ, "ping response.data_version")
		case 3:
			v, b, err = consumeVarintField(b, typ, "ping response.data_build")
			m.DataBuild = uint32(v)
		case 4:
			v, b, err = consumeVarintField(b, typ, "ping response.base_build")
			m.BaseBuild = uint32(v)
		default:
			b, err = skipField(b, num, typ, "ping response")
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}
