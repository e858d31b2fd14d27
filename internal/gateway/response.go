package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-zwave/internal/automation"
)

// Flat text separators.
const (
	fieldSep  = "~"
	recordSep = "#"
)

// ProtocolError is a malformed or unrecognised command.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// Protocol error codes.
const (
	CodeUnknownCommand = 1
	CodeWrongArgCount  = 2
	CodeNoScenes       = 3
	CodeSceneNotFound  = 4
)

// CommandError is a failure of a well-formed command. Main is the headline
// shown to clients; Err carries the cause.
type CommandError struct {
	Main string
	Err  error
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return e.Main
	}
	return e.Main + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// LabelValue is one capability of a node as shown by ALIST.
type LabelValue struct {
	Label string
	Value string
}

// Values is an ordered label/value list rendered as a JSON object. A label
// seen twice keeps its first position and its last value.
type Values []LabelValue

// MarshalJSON writes v as an object in discovery order.
func (v Values) MarshalJSON() ([]byte, error) {
	order := make([]string, 0, len(v))
	latest := make(map[string]string, len(v))
	for _, lv := range v {
		if _, seen := latest[lv.Label]; !seen {
			order = append(order, lv.Label)
		}
		latest[lv.Label] = lv.Value
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(latest[label])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NodeRecord is one ALIST entry.
type NodeRecord struct {
	Name         string `json:"Name"`
	ID           uint8  `json:"ID"`
	Location     string `json:"Location"`
	Type         string `json:"Type"`
	Manufacturer string `json:"Manufacturer"`
	ProductName  string `json:"ProductName"`
	ProductID    string `json:"ProductId"`
	Values       Values `json:"Values"`
	LastSeen     string `json:"LastSeen"`
}

// RoomRecord is one ROOMLIST entry. The current temperature is text, as
// existing clients expect.
type RoomRecord struct {
	Name        string  `json:"Name"`
	Setpoint    float64 `json:"currentSetpoint"`
	CurrentTemp string  `json:"currentTemp"`
}

func roomRecord(r automation.Room) RoomRecord {
	return RoomRecord{
		Name:        r.Name,
		Setpoint:    r.Setpoint,
		CurrentTemp: formatFloat(r.CurrentTemp),
	}
}

// SceneRecord is one SCENELIST entry.
type SceneRecord struct {
	Name   string `json:"Name"`
	Active bool   `json:"Active"`
}

// AlarmRecord is one ALARMLIST entry.
type AlarmRecord struct {
	Description string `json:"description"`
	Time        string `json:"time"`
}

// ErrorBody is the error member of a response.
type ErrorBody struct {
	Main    string `json:"err_main"`
	Message string `json:"err_message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// Response is the result of one command. Only the members relevant to the
// command are set.
type Response struct {
	Command string          `json:"command"`
	Nodes   []NodeRecord    `json:"nodes,omitempty"`
	Rooms   []RoomRecord    `json:"rooms,omitempty"`
	Room    *RoomRecord     `json:"room,omitempty"`
	Scenes  []SceneRecord   `json:"scenes,omitempty"`
	Alarms  []AlarmRecord   `json:"alarms,omitempty"`
	Text    string          `json:"text,omitempty"`
	AtHome  *bool           `json:"athome,omitempty"`
	Auth    *bool           `json:"auth,omitempty"`
	Profile json.RawMessage `json:"profile,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// Failed reports whether the response carries an error.
func (r *Response) Failed() bool {
	return r.Error != nil
}

// SetError records err on the response. Scene lookup failures become the
// matching protocol errors.
func (r *Response) SetError(err error) {
	switch {
	case errors.Is(err, automation.ErrNoScenes):
		err = &ProtocolError{Code: CodeNoScenes, Message: "No scenes created"}
	case errors.Is(err, automation.ErrSceneNotFound):
		err = &ProtocolError{Code: CodeSceneNotFound, Message: "Scene not found"}
	}

	var pe *ProtocolError
	var ce *CommandError
	switch {
	case errors.As(err, &pe):
		r.Error = &ErrorBody{Main: "ProtocolException", Message: pe.Message, Code: pe.Code}
	case errors.As(err, &ce):
		r.Error = &ErrorBody{Main: ce.Main, Message: ce.detail()}
	default:
		r.Error = &ErrorBody{Main: err.Error()}
	}
}

// JSON renders the response for WebSocket clients.
func (r *Response) JSON() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		// Only reachable through a broken Profile payload.
		fallback, _ := json.Marshal(&Response{
			Command: r.Command,
			Error:   &ErrorBody{Main: "Could not encode response", Message: err.Error()},
		})
		return fallback
	}
	return data
}

var flatEscaper = strings.NewReplacer(fieldSep, " ", recordSep, " ", "\n", " ", "\r", "")

// Flat renders the response for line-socket clients: fields separated by
// "~", records by "#", no trailing separator. Errors render as
// ERROR~code~message. A response without records renders empty.
func (r *Response) Flat() string {
	if r.Error != nil {
		fields := []string{"ERROR", strconv.Itoa(r.Error.Code), r.Error.Main}
		if r.Error.Message != "" {
			fields = append(fields, r.Error.Message)
		}
		return joinFields(fields...)
	}

	var records []string
	for _, n := range r.Nodes {
		fields := []string{n.Name, strconv.Itoa(int(n.ID)), n.Location, n.Type, n.Manufacturer, n.ProductName, n.ProductID, n.LastSeen}
		for _, lv := range n.Values {
			fields = append(fields, lv.Label+"="+lv.Value)
		}
		records = append(records, joinFields(fields...))
	}
	for _, room := range r.Rooms {
		records = append(records, joinFields(room.Name, formatFloat(room.Setpoint), room.CurrentTemp))
	}
	if r.Room != nil {
		records = append(records, joinFields(r.Room.Name, formatFloat(r.Room.Setpoint), r.Room.CurrentTemp))
	}
	for _, sc := range r.Scenes {
		records = append(records, joinFields(sc.Name, strconv.FormatBool(sc.Active)))
	}
	for _, a := range r.Alarms {
		records = append(records, joinFields(a.Description, a.Time))
	}
	if r.AtHome != nil {
		records = append(records, strconv.FormatBool(*r.AtHome))
	}
	if r.Auth != nil {
		records = append(records, strconv.FormatBool(*r.Auth))
	}
	if r.Text != "" {
		lines := strings.Split(strings.TrimRight(r.Text, "\n"), "\n")
		records = append(records, joinFields(lines...))
	}

	return strings.Join(records, recordSep)
}

func joinFields(fields ...string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = flatEscaper.Replace(f)
	}
	return strings.Join(escaped, fieldSep)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boolPtr(b bool) *bool { return &b }
