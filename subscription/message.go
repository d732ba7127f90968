package subscription

import (
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/types"
)

func toMessage(msg jetstream.Msg, destination string, partition int) *types.Message {
	m := &types.Message{
		Destination: destination,
		Partition:   partition,
		Payload:     msg.Data(),
	}

	hdr := msg.Headers()
	if len(hdr) == 0 {
		return m
	}

	m.ID = hdr.Get(types.HeaderMsgID)
	m.Key = hdr.Get(types.HeaderPartitionKey)
	for k := range hdr {
		if k == types.HeaderMsgID || k == types.HeaderPartitionKey {
			continue
		}
		if m.Headers == nil {
			m.Headers = make(map[string]string, len(hdr))
		}
		m.Headers[k] = hdr.Get(k)
	}

	return m
}
