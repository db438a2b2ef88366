package workerproc

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"hsmt-backend/internal/queue"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body []byte) MessageMeta {
	if len(body) == 0 {
		return MessageMeta{}
	}
	sum := sha256.Sum256(body)
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingID indicates a message missing its routing id.
type ErrMissingID struct {
	Meta MessageMeta
}

func (e ErrMissingID) Error() string { return "missing id" }

// Kind classifies a processing failure for the driver's retry policy.
type Kind string

const (
	KindUpstream   Kind = "upstream"
	KindModel      Kind = "model"
	KindData       Kind = "data"
	KindValidation Kind = "validation"
	// KindSettled is a failure after the stage's external effect (a sent
	// mail) already happened. It is recorded, never retried or replied to.
	KindSettled Kind = "settled"
)

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	Kind Kind
	HSID string
	// UserMessage is the Vietnamese text mailed back to the sender for data errors.
	UserMessage string
	Err         error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process " + string(e.Kind)
	}
	return "process " + string(e.Kind) + ": " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Upstream wraps err as a transient external failure.
func Upstream(hsID string, err error) error {
	if err == nil {
		return nil
	}
	return ErrProcess{Kind: KindUpstream, HSID: hsID, Err: err}
}

// Data wraps err as a data failure that stops the pipeline with a user-visible reply.
func Data(hsID, userMessage string, err error) error {
	if err == nil {
		err = errors.New(userMessage)
	}
	return ErrProcess{Kind: KindData, HSID: hsID, UserMessage: userMessage, Err: err}
}

// Settled wraps err as a failure that follows a completed side effect.
func Settled(hsID string, err error) error {
	if err == nil {
		return nil
	}
	return ErrProcess{Kind: KindSettled, HSID: hsID, Err: err}
}

// Model wraps err as an unparseable model output.
func Model(hsID string, err error) error {
	if err == nil {
		return nil
	}
	return ErrProcess{Kind: KindModel, HSID: hsID, Err: err}
}

// KindOf returns the kind of err. Unclassified errors count as upstream.
func KindOf(err error) Kind {
	var proc ErrProcess
	if errors.As(err, &proc) {
		return proc.Kind
	}
	return KindUpstream
}

// IsParse reports whether err came from ParseMessage.
func IsParse(err error) bool {
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		missing ErrMissingID
	)
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &missing)
}

// ParseMessage validates and decodes body into v.
func ParseMessage(body []byte, v any) (MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(string(body)) == "" {
		return meta, ErrEmptyBody{Meta: meta}
	}
	if err := queue.Decode(body, v); err != nil {
		if errors.Is(err, queue.ErrMissingID) {
			return meta, ErrMissingID{Meta: meta}
		}
		return meta, ErrDecode{Meta: meta, Err: err}
	}
	return meta, nil
}

// Describe renders err for logs with its kind prefix.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if IsParse(err) {
		return fmt.Sprintf("parse: %v", err)
	}
	return fmt.Sprintf("%s: %v", KindOf(err), err)
}
