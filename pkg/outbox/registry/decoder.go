package registry

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// DecoderFunc turns an envelope's data field into a typed payload.
type DecoderFunc func(payload json.RawMessage) (any, error)

// VersionedDecoder adds or replaces the decoder for one schema version.
type VersionedDecoder struct {
	EventType enums.OutboxEventType
	Version   int
	Decode    DecoderFunc
}

type schemaVersion struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoders is an immutable lookup of payload decoders keyed by event type
// and schema version. It is safe for concurrent use.
type Decoders struct {
	byVersion map[schemaVersion]DecoderFunc
}

// NewConsumerDecoders decodes every event of reg at version 1 into its
// registered payload type. extra entries are applied afterwards.
func NewConsumerDecoders(reg *EventRegistry, extra ...VersionedDecoder) *Decoders {
	d := &Decoders{byVersion: make(map[schemaVersion]DecoderFunc, len(reg.entries)+len(extra))}
	for eventType, desc := range reg.entries {
		d.byVersion[schemaVersion{eventType, 1}] = unmarshalInto(desc.PayloadFactory)
	}
	for _, e := range extra {
		if e.Decode != nil {
			d.byVersion[schemaVersion{e.EventType, e.Version}] = e.Decode
		}
	}
	return d
}

func unmarshalInto(factory func() any) DecoderFunc {
	return func(payload json.RawMessage) (any, error) {
		v := factory()
		if err := json.Unmarshal(payload, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Decode fails for versions nobody registered; consumers drop such events.
func (d *Decoders) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	fn, ok := d.byVersion[schemaVersion{eventType, version}]
	if !ok {
		return nil, fmt.Errorf("no decoder for %s v%d", eventType, version)
	}
	return fn(payload)
}
