package channel

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
)

// Kind tags an envelope on the wire.
type Kind string

const (
	KindSend   Kind = "send"
	KindInvoke Kind = "invoke"
	KindReply  Kind = "reply"
	KindPush   Kind = "push"
)

// Envelope is the frame exchanged over stream transports. Invoke and reply
// frames are correlated by ID.
type Envelope struct {
	ID     string          `json:"id,omitempty"`
	Kind   Kind            `json:"kind"`
	Topic  string          `json:"topic,omitempty"`
	Args   Args            `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewSend builds a one-way frame.
func NewSend(topic string, args ...any) (*Envelope, error) {
	return newRequest(KindSend, "", topic, args)
}

// NewInvoke builds a round-trip frame with a fresh correlation id.
func NewInvoke(topic string, args ...any) (*Envelope, error) {
	return newRequest(KindInvoke, uuid.NewString(), topic, args)
}

// NewPush builds a controller push frame.
func NewPush(topic string, args ...any) (*Envelope, error) {
	return newRequest(KindPush, "", topic, args)
}

func newRequest(kind Kind, id, topic string, args []any) (*Envelope, error) {
	encoded, err := EncodeArgs(args...)
	if err != nil {
		return nil, err
	}
	return &Envelope{ID: id, Kind: kind, Topic: topic, Args: encoded}, nil
}

// NewReply answers the invoke frame with the given id. A non-nil failure
// is carried as text; result is ignored in that case.
func NewReply(id string, result any, failure error) (*Envelope, error) {
	env := &Envelope{ID: id, Kind: KindReply}
	if failure != nil {
		env.Error = failure.Error()
		return env, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply: %w", err)
	}
	env.Result = raw
	return env, nil
}

// Validate checks the fields each kind requires.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindSend, KindPush:
		if e.Topic == "" {
			return fmt.Errorf("%s frame without topic", e.Kind)
		}
	case KindInvoke:
		if e.Topic == "" || e.ID == "" {
			return errors.New("invoke frame needs topic and id")
		}
	case KindReply:
		if e.ID == "" {
			return errors.New("reply frame without id")
		}
	default:
		return fmt.Errorf("unknown frame kind %q", e.Kind)
	}
	return nil
}

// Request converts a send or invoke frame into a Request for a Handler.
func (e *Envelope) Request() Request {
	return Request{Topic: e.Topic, Args: e.Args, Sync: e.Kind == KindInvoke}
}

// EncodeEnvelope marshals a frame.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// DecodeEnvelope unmarshals and validates a frame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
