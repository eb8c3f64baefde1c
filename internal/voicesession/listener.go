package voicesession

import (
	"encoding/json"

	"github.com/eleven-am/voice-client/internal/transport"
)

// Listener receives session events for the UI layer.
type Listener interface {
	OnStatus(status transport.Status)
	OnTranscript(role transport.Role, text string)
	OnMetadata(raw json.RawMessage)
	OnError(err error)
}

type NopListener struct{}

func (NopListener) OnStatus(transport.Status)           {}
func (NopListener) OnTranscript(transport.Role, string) {}
func (NopListener) OnMetadata(json.RawMessage)          {}
func (NopListener) OnError(error)                       {}
