package cache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes shards for the filesystem backend.
type Codec interface {
	Marshal(shard Shard) ([]byte, error)
	Unmarshal(data []byte) (Shard, error)
	// Ext is the file extension including the dot.
	Ext() string
}

// JSONCodec writes shards as indented JSON objects.
type JSONCodec struct{}

func (JSONCodec) Marshal(shard Shard) ([]byte, error) {
	return json.MarshalIndent(shard, "", "  ")
}

func (JSONCodec) Unmarshal(data []byte) (Shard, error) {
	shard := make(Shard)
	if len(bytes.TrimSpace(data)) == 0 {
		return shard, nil
	}
	if err := json.Unmarshal(data, &shard); err != nil {
		return make(Shard), err
	}
	if shard == nil {
		shard = make(Shard)
	}
	return shard, nil
}

func (JSONCodec) Ext() string { return ".json" }

// MsgpackCodec writes shards as MessagePack. Shards are several times smaller
// than the JSON form for large collections like systems.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(shard Shard) ([]byte, error) {
	return msgpack.Marshal(map[string]Record(shard))
}

func (MsgpackCodec) Unmarshal(data []byte) (Shard, error) {
	shard := make(Shard)
	if len(data) == 0 {
		return shard, nil
	}
	var decoded map[string]Record
	if err := msgpack.Unmarshal(data, &decoded); err != nil {
		return shard, err
	}
	for k, v := range decoded {
		shard[k] = v
	}
	return shard, nil
}

func (MsgpackCodec) Ext() string { return ".msgpack" }

// CodecByName returns the codec for a config value ("json" or "msgpack").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}
