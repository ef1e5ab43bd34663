package sfumedia

import "encoding/json"

type consumerInfo struct {
	ConsumerID string       `json:"consumerId"`
	ProducerID string       `json:"producerId"`
	Kind       ProducerKind `json:"kind"`
}

func marshalConsumer(consumerID, producerID string, kind ProducerKind) (RawPayload, error) {
	return json.Marshal(consumerInfo{ConsumerID: consumerID, ProducerID: producerID, Kind: kind})
}
