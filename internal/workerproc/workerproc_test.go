package workerproc

import (
	"errors"
	"fmt"
	"testing"

	"hsmt-backend/internal/queue"
)

func TestParseMessageErrors(t *testing.T) {
	var msg queue.ClassifyMessage
	if _, err := ParseMessage([]byte("  "), &msg); !errors.As(err, &ErrEmptyBody{}) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	meta, err := ParseMessage([]byte("{bad"), &msg)
	var decode ErrDecode
	if !errors.As(err, &decode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if meta.BodyLen != 4 || len(meta.BodySHA) != 64 {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if _, err := ParseMessage([]byte(`{"email":"a@b.vn"}`), &msg); !errors.As(err, &ErrMissingID{}) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if !IsParse(err) {
		t.Fatalf("expected parse classification")
	}
}

func TestParseMessageOK(t *testing.T) {
	var msg queue.ClassifyMessage
	if _, err := ParseMessage([]byte(`{"id":"hs-1","email":"a@b.vn"}`), &msg); err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.ID != "hs-1" || msg.Email != "a@b.vn" {
		t.Fatalf("unexpected msg %+v", msg)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{Data("hs", "không có file Hồ sơ mời thầu", nil), KindData},
		{fmt.Errorf("wrapped: %w", Model("hs", errors.New("bad json"))), KindModel},
		{errors.New("dial tcp: refused"), KindUpstream},
		{Settled("hs", errors.New("update status")), KindSettled},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v)=%s want %s", tc.err, got, tc.want)
		}
	}
	if Settled("hs", nil) != nil {
		t.Fatalf("Settled(nil) should be nil")
	}
	var proc ErrProcess
	if !errors.As(Data("hs", "msg", nil), &proc) || proc.UserMessage != "msg" {
		t.Fatalf("expected user message to be kept")
	}
}
