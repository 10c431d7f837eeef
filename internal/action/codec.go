package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Wire keys of the tagged union, stable across document versions
const (
	keyClick      = "click"
	keyInput      = "input"
	keyURLChange  = "urlChange"
	keyOpenURL    = "openURL"
	keyGetResult  = "getResult"
	keyIFrame     = "iframe"
	keyUploadFile = "uploadFile"
)

// wireKeys lists the recognized union members
var wireKeys = []string{keyClick, keyInput, keyURLChange, keyOpenURL, keyGetResult, keyIFrame, keyUploadFile}

// wireAction is the shared JSON and YAML form of an Action
type wireAction struct {
	Type    typeBox `json:"type" yaml:"type"`
	Timeout float64 `json:"timeout" yaml:"timeout"`
}

type iframePayload struct {
	Path   string  `json:"path" yaml:"path"`
	Action typeBox `json:"action" yaml:"action"`
}

type openURLPayload struct {
	URL    string `json:"url" yaml:"url"`
	Mobile bool   `json:"mobile" yaml:"mobile"`
}

// MarshalJSON implements json.Marshaler
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.wire())
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Action) UnmarshalJSON(data []byte) error {
	var w struct {
		Type    typeBox         `json:"type"`
		Timeout json.RawMessage `json:"timeout"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return asDecodeError(err)
	}
	var secs float64
	if len(w.Timeout) > 0 && json.Unmarshal(w.Timeout, &secs) != nil {
		secs = 0
	}
	return a.set(w.Type, secs)
}

// MarshalYAML implements yaml.Marshaler
func (a Action) MarshalYAML() (interface{}, error) {
	return a.wire(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	var w struct {
		Type    typeBox   `yaml:"type"`
		Timeout yaml.Node `yaml:"timeout"`
	}
	if err := node.Decode(&w); err != nil {
		return asDecodeError(err)
	}
	var secs float64
	if w.Timeout.Kind != 0 && w.Timeout.Decode(&secs) != nil {
		secs = 0
	}
	return a.set(w.Type, secs)
}

func (a Action) wire() wireAction {
	return wireAction{Type: typeBox{a.typ}, Timeout: a.timeout.Seconds()}
}

func (a *Action) set(box typeBox, secs float64) error {
	if box.t == nil {
		return &DecodeError{Err: ErrMissingActionType}
	}
	if secs < 0 {
		secs = 0
	}
	*a = Action{
		id:      uuid.New(),
		typ:     box.t,
		timeout: time.Duration(math.Round(secs * float64(time.Second))),
	}
	return nil
}

// typeBox carries an ActionType through the codecs
type typeBox struct {
	t ActionType
}

func (b typeBox) MarshalJSON() ([]byte, error) {
	f := Visit[field](b.t, encoder{})
	return json.Marshal(map[string]interface{}{f.key: f.value})
}

func (b typeBox) MarshalYAML() (interface{}, error) {
	f := Visit[field](b.t, encoder{})
	return map[string]interface{}{f.key: f.value}, nil
}

func (b *typeBox) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return malformed("", err)
	}
	fields := make(map[string]payload, len(m))
	for k, raw := range m {
		raw := raw
		fields[k] = func(v interface{}) error { return json.Unmarshal(raw, v) }
	}
	t, err := decodeType(fields)
	if err != nil {
		return err
	}
	b.t = t
	return nil
}

func (b *typeBox) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return malformed("", errors.New("action type must be a mapping"))
	}
	fields := make(map[string]payload, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		fields[node.Content[i].Value] = node.Content[i+1].Decode
	}
	t, err := decodeType(fields)
	if err != nil {
		return err
	}
	b.t = t
	return nil
}

// field is one encoded union member
type field struct {
	key   string
	value interface{}
}

type encoder struct{}

func (encoder) Click(t Click) field { return field{keyClick, t.Path} }

func (encoder) Input(t Input) field { return field{keyInput, []string{t.Path, t.Text}} }

func (encoder) IFrame(t IFrame) field {
	return field{keyIFrame, iframePayload{Path: t.Path, Action: typeBox{t.Action}}}
}

func (encoder) GetResult(t GetResult) field { return field{keyGetResult, t.Path} }

func (encoder) URLChange(URLChange) field { return field{keyURLChange, true} }

func (encoder) UploadFile(t UploadFile) field {
	return field{keyUploadFile, []string{t.Path, t.File.Token()}}
}

func (encoder) OpenURL(t OpenURL) field {
	return field{keyOpenURL, openURLPayload{URL: t.URL, Mobile: t.Mobile}}
}

// payload decodes one union member into v
type payload func(v interface{}) error

func decodeType(fields map[string]payload) (ActionType, error) {
	if len(fields) == 0 {
		return nil, &DecodeError{Err: ErrMissingActionType}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !slices.Contains(wireKeys, k) {
			return nil, &DecodeError{Key: k, Err: ErrUnknownActionType}
		}
	}
	// A union value holds exactly one member
	if len(keys) > 1 {
		return nil, malformed(keys[0], fmt.Errorf("conflicting action types %v", keys))
	}
	return decodeField(keys[0], fields[keys[0]])
}

func decodeField(key string, p payload) (ActionType, error) {
	switch key {
	case keyClick, keyGetResult:
		var path string
		if err := p(&path); err != nil {
			return nil, malformed(key, err)
		}
		if key == keyClick {
			return Click{Path: path}, nil
		}
		return GetResult{Path: path}, nil

	case keyInput:
		var pair []string
		if err := p(&pair); err != nil {
			return nil, malformed(key, err)
		}
		if len(pair) != 2 {
			return nil, malformed(key, errors.New("expected [selector, text]"))
		}
		return Input{Path: pair[0], Text: pair[1]}, nil

	case keyURLChange:
		var ok bool
		if err := p(&ok); err != nil {
			return nil, malformed(key, err)
		}
		return URLChange{}, nil

	case keyOpenURL:
		// Older documents store the bare URL
		var url string
		if err := p(&url); err == nil {
			return OpenURL{URL: url}, nil
		}
		var o openURLPayload
		if err := p(&o); err != nil {
			return nil, malformed(key, err)
		}
		return OpenURL{URL: o.URL, Mobile: o.Mobile}, nil

	case keyIFrame:
		var f iframePayload
		if err := p(&f); err != nil {
			return nil, asDecodeError(err)
		}
		if f.Action.t == nil {
			return nil, &DecodeError{Key: key, Err: ErrMissingActionType}
		}
		return IFrame{Path: f.Path, Action: f.Action.t}, nil

	case keyUploadFile:
		var pair []string
		if err := p(&pair); err != nil {
			return nil, malformed(key, err)
		}
		if len(pair) != 2 {
			return nil, malformed(key, errors.New("expected [selector, file]"))
		}
		return UploadFile{Path: pair[0], File: FileRefFromToken(pair[1])}, nil
	}
	return nil, &DecodeError{Key: key, Err: ErrUnknownActionType}
}

func asDecodeError(err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return de
	}
	return malformed("", err)
}
