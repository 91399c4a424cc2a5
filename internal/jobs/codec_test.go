package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/ninjafinder/internal/domain/job"
)

func TestEncodeDecode_UserWelcome(t *testing.T) {
	payload := UserWelcomePayload{
		UserID:      "user-123",
		Email:       "kai@ninjago.io",
		Name:        "Kai",
		RequestedAt: time.Now().UTC(),
	}

	req, err := NewUserWelcome(payload)
	if err != nil {
		t.Fatalf("NewUserWelcome error: %v", err)
	}

	j := job.New(req)

	if j.Status != job.StatusPending {
		t.Fatalf("expected pending job, got %s", j.Status)
	}
	if j.MaxAttempts != job.DefaultMaxAttempts {
		t.Fatalf("expected default max attempts, got %d", j.MaxAttempts)
	}

	decoded, err := DecodePayload(j)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	p, ok := decoded.(UserWelcomePayload)
	if !ok {
		t.Fatalf("expected UserWelcomePayload, got %T", decoded)
	}

	if p.UserID != payload.UserID || p.Email != payload.Email {
		t.Fatalf("payload mismatch: %+v", p)
	}
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	_, err := EncodePayload(JobUserWelcome, struct{ Foo string }{Foo: "bar"})

	if !errors.Is(err, ErrPayloadTypeMismatch) {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}

func TestValidatePayload_RequiredIDs(t *testing.T) {
	err := ValidatePayload(JobUserWelcome, UserWelcomePayload{UserID: " ", Email: "a@b.io"})

	if !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload, got %v", err)
	}
}

func TestDecodePayload_UnknownType(t *testing.T) {
	_, err := DecodePayload(job.Job{Type: "event.publish", Payload: []byte(`{}`)})

	if !errors.Is(err, ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}

func TestDecodePayload_Garbage(t *testing.T) {
	_, err := DecodePayload(job.Job{Type: string(JobUserWelcome), Payload: []byte(`{not json`)})

	if !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload, got %v", err)
	}
}
