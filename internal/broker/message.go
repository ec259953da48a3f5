package broker

import (
	"encoding/json"

	"github.com/fernlabs/reservecore/internal/codec"
	"github.com/google/uuid"
)

// ReservationRequest is published to the Resource Manager's dedicated inbox
// (spec.md §4.3). ResourceID is set for the single-resource form, ResourceIDs
// for the multi-resource form — exactly one of the two is populated.
type ReservationRequest struct {
	JobName     string       `json:"job_name"`
	TaskID      uuid.UUID    `json:"task_id"`
	ResourceID  string       `json:"resource_id,omitempty"`
	ResourceIDs []string     `json:"resource_id_list,omitempty"`
	Args        codec.Value  `json:"args"`
	Kwargs      codec.Value  `json:"kwargs"`
	Tags        []string     `json:"tags,omitempty"`
	GroupID     string       `json:"group_id,omitempty"`
}

// Multi reports whether this request carries the multi-resource form.
func (r ReservationRequest) Multi() bool { return len(r.ResourceIDs) > 0 }

// All returns the resource ids involved, regardless of single/multi form.
func (r ReservationRequest) All() []string {
	if r.Multi() {
		return r.ResourceIDs
	}
	if r.ResourceID != "" {
		return []string{r.ResourceID}
	}
	return nil
}

func EncodeReservationRequest(r ReservationRequest) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeReservationRequest(raw []byte) (ReservationRequest, error) {
	var r ReservationRequest
	err := json.Unmarshal(raw, &r)
	return r, err
}

// JobMessage is what the Resource Manager forwards to the chosen worker's inbox
// once placement succeeds (spec.md §4.3 "Dispatch"). Kind distinguishes the real
// job from the release job enqueued right after it on the same FIFO queue.
type JobMessage struct {
	Kind    JobKind     `json:"kind"`
	TaskID  uuid.UUID   `json:"task_id"`
	JobName string      `json:"job_name,omitempty"`
	Args    codec.Value `json:"args,omitempty"`
	Kwargs  codec.Value `json:"kwargs,omitempty"`
}

type JobKind string

const (
	JobKindWork    JobKind = "work"
	JobKindRelease JobKind = "release"
)

func EncodeJobMessage(m JobMessage) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeJobMessage(raw []byte) (JobMessage, error) {
	var m JobMessage
	err := json.Unmarshal(raw, &m)
	return m, err
}
