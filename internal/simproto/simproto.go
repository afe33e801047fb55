// Package simproto encodes and decodes the socket.io text frames exchanged
// with the driving simulator.
//
// An event frame is the two characters "42" followed by a JSON array whose
// first element is the event name and whose second is the event body:
//
//	42["telemetry",{"x":909.48,"y":1128.67,...}]
//	42["control",{"next_x":[...],"next_y":[...]}]
package simproto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/highway-planner/internal/planner"
	"github.com/banshee-data/highway-planner/internal/vehicle"
)

// ErrMalformed is returned for an event frame whose body cannot be parsed.
var ErrMalformed = errors.New("simproto: malformed frame")

const eventPrefix = "42"

// Event names.
const (
	EventTelemetry = "telemetry"
	EventControl   = "control"
	EventManual    = "manual"
)

// Kind says what a decoded frame asks of the planner.
type Kind int

const (
	// Ignore frames are not events, or are events the planner does not
	// handle. No reply is sent.
	Ignore Kind = iota
	// Manual frames carry no data; the simulator is driven by hand and
	// gets a manual reply.
	Manual
	// Telemetry frames carry a snapshot to plan from.
	Telemetry
)

func (k Kind) String() string {
	switch k {
	case Manual:
		return "manual"
	case Telemetry:
		return "telemetry"
	default:
		return "ignore"
	}
}

// Frame is a decoded inbound frame.
type Frame struct {
	Kind      Kind
	Event     string
	Telemetry planner.Telemetry
}

// telemetryBody mirrors the simulator's telemetry object. Every field is a
// pointer so an absent field is told apart from a zero or empty one.
// sensor_fusion rows are positional: [id, x, y, vx, vy, s, d].
type telemetryBody struct {
	X             *float64     `json:"x"`
	Y             *float64     `json:"y"`
	S             *float64     `json:"s"`
	D             *float64     `json:"d"`
	Yaw           *float64     `json:"yaw"`
	Speed         *float64     `json:"speed"`
	PreviousPathX *[]float64   `json:"previous_path_x"`
	PreviousPathY *[]float64   `json:"previous_path_y"`
	EndPathS      *float64     `json:"end_path_s"`
	EndPathD      *float64     `json:"end_path_d"`
	SensorFusion  *[][]float64 `json:"sensor_fusion"`
}

const sensorFusionFields = 7

// Decode parses one inbound text frame.
func Decode(msg []byte) (Frame, error) {
	if !bytes.HasPrefix(msg, []byte(eventPrefix)) || len(msg) <= len(eventPrefix) {
		return Frame{Kind: Ignore}, nil
	}
	payload, ok := eventPayload(msg)
	if !ok {
		return Frame{Kind: Manual}, nil
	}

	var event []json.RawMessage
	if err := json.Unmarshal(payload, &event); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(event) == 0 {
		return Frame{}, fmt.Errorf("%w: empty event", ErrMalformed)
	}
	var name string
	if err := json.Unmarshal(event[0], &name); err != nil {
		return Frame{}, fmt.Errorf("%w: event name: %v", ErrMalformed, err)
	}
	if name != EventTelemetry {
		return Frame{Kind: Ignore, Event: name}, nil
	}
	if len(event) < 2 {
		return Frame{}, fmt.Errorf("%w: telemetry without body", ErrMalformed)
	}

	t, err := decodeTelemetry(event[1])
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: Telemetry, Event: name, Telemetry: t}, nil
}

// eventPayload returns the JSON array in msg. A frame mentioning null, or
// without an array, has no data.
func eventPayload(msg []byte) ([]byte, bool) {
	if bytes.Contains(msg, []byte("null")) {
		return nil, false
	}
	start := bytes.IndexByte(msg, '[')
	end := bytes.LastIndexByte(msg, ']')
	if start < 0 || end < start {
		return nil, false
	}
	return msg[start : end+1], true
}

func decodeTelemetry(raw json.RawMessage) (planner.Telemetry, error) {
	var body telemetryBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return planner.Telemetry{}, fmt.Errorf("%w: telemetry: %v", ErrMalformed, err)
	}
	required := []struct {
		name string
		v    *float64
	}{
		{"x", body.X}, {"y", body.Y}, {"s", body.S}, {"d", body.D},
		{"yaw", body.Yaw}, {"speed", body.Speed},
	}
	for _, f := range required {
		if f.v == nil {
			return planner.Telemetry{}, fmt.Errorf("%w: telemetry missing %q", ErrMalformed, f.name)
		}
	}
	switch {
	case body.PreviousPathX == nil:
		return planner.Telemetry{}, fmt.Errorf("%w: telemetry missing %q", ErrMalformed, "previous_path_x")
	case body.PreviousPathY == nil:
		return planner.Telemetry{}, fmt.Errorf("%w: telemetry missing %q", ErrMalformed, "previous_path_y")
	case body.SensorFusion == nil:
		return planner.Telemetry{}, fmt.Errorf("%w: telemetry missing %q", ErrMalformed, "sensor_fusion")
	}

	t := planner.Telemetry{
		X: *body.X, Y: *body.Y, S: *body.S, D: *body.D,
		Yaw: *body.Yaw, Speed: *body.Speed,
		PreviousPathX: *body.PreviousPathX,
		PreviousPathY: *body.PreviousPathY,
		SensorFusion:  make([]vehicle.SensorReading, 0, len(*body.SensorFusion)),
	}
	// The end of the previous path only matters while it has points left.
	if len(t.PreviousPathX) > 0 || len(t.PreviousPathY) > 0 {
		if body.EndPathS == nil || body.EndPathD == nil {
			return planner.Telemetry{}, fmt.Errorf("%w: telemetry with a previous path missing end_path_s/end_path_d", ErrMalformed)
		}
	}
	if body.EndPathS != nil {
		t.EndPathS = *body.EndPathS
	}
	if body.EndPathD != nil {
		t.EndPathD = *body.EndPathD
	}
	for i, row := range *body.SensorFusion {
		if len(row) != sensorFusionFields {
			return planner.Telemetry{}, fmt.Errorf("%w: sensor_fusion row %d has %d fields, want %d",
				ErrMalformed, i, len(row), sensorFusionFields)
		}
		t.SensorFusion = append(t.SensorFusion, vehicle.SensorReading{
			ID: int(row[0]), X: row[1], Y: row[2], VX: row[3], VY: row[4], S: row[5], D: row[6],
		})
	}
	return t, nil
}

type controlBody struct {
	NextX []float64 `json:"next_x"`
	NextY []float64 `json:"next_y"`
}

// EncodeControl returns the control frame carrying a trajectory.
func EncodeControl(xs, ys []float64) ([]byte, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("simproto: next_x has %d points, next_y has %d", len(xs), len(ys))
	}
	if xs == nil {
		xs = []float64{}
	}
	if ys == nil {
		ys = []float64{}
	}
	return encodeEvent(EventControl, controlBody{NextX: xs, NextY: ys})
}

// EncodeManual returns the reply sent when a frame carries no data.
func EncodeManual() []byte {
	return []byte(eventPrefix + `["` + EventManual + `",{}]`)
}

func encodeEvent(name string, body interface{}) ([]byte, error) {
	data, err := json.Marshal([]interface{}{name, body})
	if err != nil {
		return nil, fmt.Errorf("simproto: encode %s: %w", name, err)
	}
	return append([]byte(eventPrefix), data...), nil
}
