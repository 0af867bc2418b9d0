// Package codec implements the schema-registry-style binary framing used
// on the request and result topics: a leading magic byte, a 4-byte
// big-endian schema id, then a protobuf-encoded envelope carrying the
// caller's opaque payload.
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// magicByte is the Confluent wire-format marker preceding the schema id.
const magicByte = 0x0

// SchemaRegistry is a process-local stand-in for a real schema registry. It
// hands out a monotonically increasing schema id per subject; Refresh
// re-registers a subject under a new id. KafkaProducer reads the id once, on
// its first publish, and calls Refresh only after an encode failure (then
// retries once); it has no reconnect path that re-reads the id.
type SchemaRegistry struct {
	mu  sync.Mutex
	ids map[string]int32
	next int32
}

// NewSchemaRegistry creates an empty registry; ids start at 1.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{ids: make(map[string]int32), next: 1}
}

// LatestSchemaID returns the current schema id for subject, registering one
// on first use.
func (r *SchemaRegistry) LatestSchemaID(subject string) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[subject]; ok {
		return id
	}
	id := r.next
	r.ids[subject] = id
	r.next++
	return id
}

// Refresh forces re-registration of subject, returning a new schema id. It
// models a registry lookup that discovers a schema evolved since connect.
func (r *SchemaRegistry) Refresh(subject string) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.ids[subject] = id
	r.next++
	return id
}

// RequestSubject returns the value subject name for a request topic.
func RequestSubject(topic string) string {
	return topic + "-value"
}

// Encode wraps payload in a structpb.Struct, marshals it with protobuf, and
// frames it with the magic byte and schema id.
func Encode(schemaID int32, payload []byte) ([]byte, error) {
	value, err := structpb.NewStruct(map[string]interface{}{
		"payload_b64": base64.StdEncoding.EncodeToString(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("build envelope: %w", err)
	}

	body, err := proto.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	framed := make([]byte, 0, 1+4+len(body))
	framed = append(framed, magicByte)
	framed = binary.BigEndian.AppendUint32(framed, uint32(schemaID))
	framed = append(framed, body...)
	return framed, nil
}

// Decode reverses Encode, returning the schema id and the original payload
// bytes.
func Decode(framed []byte) (schemaID int32, payload []byte, err error) {
	if len(framed) < 5 {
		return 0, nil, fmt.Errorf("frame too short: %d bytes", len(framed))
	}
	if framed[0] != magicByte {
		return 0, nil, fmt.Errorf("unexpected magic byte 0x%x", framed[0])
	}

	schemaID = int32(binary.BigEndian.Uint32(framed[1:5]))

	value := &structpb.Struct{}
	if err := proto.Unmarshal(framed[5:], value); err != nil {
		return 0, nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	b64, ok := value.Fields["payload_b64"]
	if !ok {
		return 0, nil, fmt.Errorf("envelope missing payload_b64 field")
	}
	payload, err = base64.StdEncoding.DecodeString(b64.GetStringValue())
	if err != nil {
		return 0, nil, fmt.Errorf("decode payload: %w", err)
	}
	return schemaID, payload, nil
}
