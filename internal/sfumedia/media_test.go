package sfumedia

import (
	"encoding/json"
	"testing"
)

func TestProduceRejectsVideoInAudioOnlyMode(t *testing.T) {
	e := newTestEngine(t, true)
	transportRaw, err := e.CreateTransport("chan_voice", "usr_1", DirectionSend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	transportID := decodeTransportID(t, transportRaw)

	if _, err := e.Produce("chan_voice", "usr_1", transportID, ProducerKindVideo); err == nil {
		t.Fatal("expected video producing to be rejected in audio-only mode")
	}
}

func TestProduceEnforcesPerPeerProducerLimit(t *testing.T) {
	e := newTestEngine(t, false)
	transportRaw, err := e.CreateTransport("chan_voice", "usr_1", DirectionSend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	transportID := decodeTransportID(t, transportRaw)

	if _, err := e.Produce("chan_voice", "usr_1", transportID, ProducerKindAudio); err != nil {
		t.Fatalf("unexpected error on first producer: %v", err)
	}
	if _, err := e.Produce("chan_voice", "usr_1", transportID, ProducerKindVideo); err != nil {
		t.Fatalf("unexpected error on second producer: %v", err)
	}
	if _, err := e.Produce("chan_voice", "usr_1", transportID, ProducerKindAudio); err == nil {
		t.Fatal("expected the third producer to be rejected by the per-peer limit")
	}
}

func TestProduceRejectsWrongTransportDirection(t *testing.T) {
	e := newTestEngine(t, false)
	recvRaw, err := e.CreateTransport("chan_voice", "usr_1", DirectionRecv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recvID := decodeTransportID(t, recvRaw)

	if _, err := e.Produce("chan_voice", "usr_1", recvID, ProducerKindAudio); err == nil {
		t.Fatal("expected Produce against a recv transport to be rejected")
	}
}

func TestCloseProducerRemovesIt(t *testing.T) {
	e := newTestEngine(t, false)
	transportRaw, err := e.CreateTransport("chan_voice", "usr_1", DirectionSend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	transportID := decodeTransportID(t, transportRaw)

	producerID, err := e.Produce("chan_voice", "usr_1", transportID, ProducerKindAudio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.CloseProducer("chan_voice", "usr_1", producerID); err != nil {
		t.Fatalf("unexpected error closing producer: %v", err)
	}
	if err := e.CloseProducer("chan_voice", "usr_1", producerID); err == nil {
		t.Fatal("expected closing an already-closed producer to error")
	}
}

func TestListProducersExcludesSelfWhenRequested(t *testing.T) {
	e := newTestEngine(t, false)

	t1, err := e.CreateTransport("chan_voice", "usr_1", DirectionSend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Produce("chan_voice", "usr_1", decodeTransportID(t, t1), ProducerKindAudio); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t2, err := e.CreateTransport("chan_voice", "usr_2", DirectionSend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Produce("chan_voice", "usr_2", decodeTransportID(t, t2), ProducerKindAudio); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := e.ListProducers("chan_voice", "usr_1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 producers across the room, got %d", len(all))
	}

	others, err := e.ListProducers("chan_voice", "usr_1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(others) != 1 || others[0].UserID != "usr_2" {
		t.Fatalf("expected only usr_2's producer, got %+v", others)
	}
}

func TestResumeConsumerRejectsUnknownConsumer(t *testing.T) {
	e := newTestEngine(t, false)
	if _, err := e.CreateTransport("chan_voice", "usr_1", DirectionRecv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.ResumeConsumer("chan_voice", "usr_1", "nonexistent-consumer"); err == nil {
		t.Fatal("expected an error for an unknown consumer id")
	}
}

func decodeTransportID(t *testing.T, raw RawPayload) string {
	t.Helper()
	var info transportInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("decoding transport info: %v", err)
	}
	return info.ID
}
