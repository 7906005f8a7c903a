package storage

import "orderbookSync/internal/model"

// DecodeErrorSink keeps exchange logs that failed to decode so they can be
// inspected or replayed once the decoder is fixed.
type DecodeErrorSink interface {
	PutDecodeErrors(errs []model.DecodeError) error
}

// Discard drops decode errors. The syncer still logs them.
type Discard struct{}

func (Discard) PutDecodeErrors([]model.DecodeError) error { return nil }
