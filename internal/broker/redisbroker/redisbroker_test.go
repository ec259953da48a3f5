package redisbroker

import (
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
)

func TestIsBusyGroupErr(t *testing.T) {
	if !isBusyGroupErr(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Fatalf("expected a BUSYGROUP error to be recognized")
	}
	if isBusyGroupErr(errors.New("connection refused")) {
		t.Fatalf("expected an unrelated error not to be recognized as BUSYGROUP")
	}
	if isBusyGroupErr(nil) {
		t.Fatalf("expected nil not to be recognized as BUSYGROUP")
	}
}

func TestDeliveryFromMessageStringPayload(t *testing.T) {
	msg := goredis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"payload": `{"task_id":"abc"}`},
	}
	d := deliveryFromMessage("my-queue", msg)
	if d.Queue != "my-queue" || d.ID != "1-0" {
		t.Fatalf("unexpected delivery envelope: %+v", d)
	}
	if string(d.Payload) != `{"task_id":"abc"}` {
		t.Fatalf("unexpected payload: %s", d.Payload)
	}
}

func TestDeliveryFromMessageBytesPayload(t *testing.T) {
	msg := goredis.XMessage{
		ID:     "2-0",
		Values: map[string]interface{}{"payload": []byte("raw-bytes")},
	}
	d := deliveryFromMessage("my-queue", msg)
	if string(d.Payload) != "raw-bytes" {
		t.Fatalf("unexpected payload: %s", d.Payload)
	}
}

func TestDeliveryFromMessageMissingPayload(t *testing.T) {
	msg := goredis.XMessage{
		ID:     "3-0",
		Values: map[string]interface{}{"other_field": "x"},
	}
	d := deliveryFromMessage("my-queue", msg)
	if d.Payload != nil {
		t.Fatalf("expected nil payload when no payload field is present, got %v", d.Payload)
	}
}
