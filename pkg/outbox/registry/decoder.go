package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
)

type decoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// Decoders derives v1 decoders for every event the registry publishes, so
// consumers decode exactly the shapes producers emit.
func (r *EventRegistry) Decoders() *DecoderRegistry {
	decoders := NewDecoderRegistry()
	for eventType, desc := range r.entries {
		factory := desc.PayloadFactory
		decoders.Register(eventType, 1, func(payload json.RawMessage) (interface{}, error) {
			target := factory()
			if err := json.Unmarshal(payload, target); err != nil {
				return nil, err
			}
			return target, nil
		})
	}
	return decoders
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, NewNonRetryableError(fmt.Errorf("decoder not registered for %s@v%d", eventType, version))
}

// DecodeMessage unwraps a published envelope and decodes its payload.
func (r *DecoderRegistry) DecodeMessage(eventType enums.OutboxEventType, data []byte) (outbox.PayloadEnvelope, interface{}, error) {
	env, err := outbox.DecodeEnvelope(data)
	if err != nil {
		return outbox.PayloadEnvelope{}, nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	version := env.Version
	if version == 0 {
		version = 1
	}
	payload, err := r.Decode(eventType, version, env.Data)
	if err != nil {
		return env, nil, err
	}
	return env, payload, nil
}
