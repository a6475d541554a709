package util

import (
	"encoding/json"
	"fmt"
)

// EncoderDecoder turns stored records into values and back.
type EncoderDecoder[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (*T, error)
}

// JsonEncDec is the JSON EncoderDecoder every store and the flow parser share.
type JsonEncDec[T any] struct{}

var _ EncoderDecoder[any] = new(JsonEncDec[any])

// NewJsonEncoderDecoder returns a stateless JSON codec for T, safe for concurrent use.
func NewJsonEncoderDecoder[T any]() *JsonEncDec[T] {
	return &JsonEncDec[T]{}
}

func (encdec *JsonEncDec[T]) Encode(value T) ([]byte, error) {
	return json.Marshal(value)
}

func (encdec *JsonEncDec[T]) Decode(data []byte) (*T, error) {
	res := new(T)
	if err := json.Unmarshal(data, res); err != nil {
		return nil, err
	}
	return res, nil
}

// DecodeAll decodes list or hash values read from a store, failing on the
// first malformed one with its position.
func (encdec *JsonEncDec[T]) DecodeAll(items []string) ([]*T, error) {
	out := make([]*T, 0, len(items))
	for i, item := range items {
		v, err := encdec.Decode([]byte(item))
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
