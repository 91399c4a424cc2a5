package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/geocoder89/ninjafinder/internal/domain/job"
)

func EncodePayload(t JobType, payload any) (json.RawMessage, error) {
	err := ValidatePayload(t, payload)

	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals j.Payload into the typed payload for j.Type.
func DecodePayload(j job.Job) (any, error) {
	t := JobType(j.Type)

	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}

	if len(j.Payload) == 0 {
		return nil, ErrInvalidJobPayload
	}

	switch t {
	case JobUserWelcome:
		var p UserWelcomePayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		if err := ValidatePayload(t, p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, ErrInvalidJobType
	}
}

// NewUserWelcome builds the create request for a welcome job.
func NewUserWelcome(p UserWelcomePayload) (job.CreateRequest, error) {
	raw, err := EncodePayload(JobUserWelcome, p)

	if err != nil {
		return job.CreateRequest{}, err
	}

	return job.CreateRequest{
		Type:    string(JobUserWelcome),
		Payload: raw,
	}, nil
}
