package live

import (
	"encoding/json"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"
)

// Message types pushed to subscribers.
const (
	TypeConnected    = "connected"
	TypeSnapshot     = "snapshot"
	TypeStatusUpdate = "status_update"
)

// Envelope is the frame sent to every subscriber: {"type": ..., "data": ...}.
type Envelope struct {
	Type string
	Data any
}

// MarshalEasyJSON writes the envelope. Data is encoded with encoding/json since
// it carries model types without generated marshalers.
func (e Envelope) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"type":`)
	w.String(e.Type)
	if e.Data != nil {
		w.RawString(`,"data":`)
		w.Raw(json.Marshal(e.Data))
	}
	w.RawByte('}')
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return easyjson.Marshal(e)
}

func encode(msgType string, data any) ([]byte, error) {
	return easyjson.Marshal(Envelope{Type: msgType, Data: data})
}
