package net

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

func encode(v interface{}) ([]byte, error) {
	var b bytes.Buffer

	jh := new(codec.JsonHandle)
	jh.Canonical = true

	enc := codec.NewEncoder(&b, jh)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)

	jh := new(codec.JsonHandle)

	dec := codec.NewDecoder(b, jh)

	return dec.Decode(v)
}

// Marshal returns the JSON encoding of a Datum.
func (d *Datum) Marshal() ([]byte, error) {
	return encode(d)
}

// Unmarshal decodes and validates a JSON encoded Datum.
func (d *Datum) Unmarshal(data []byte) error {
	if err := decode(data, d); err != nil {
		return err
	}
	return d.validate()
}

// Marshal returns the JSON encoding of an Envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	return encode(e)
}

// Unmarshal decodes and validates a JSON encoded Envelope.
func (e *Envelope) Unmarshal(data []byte) error {
	if err := decode(data, e); err != nil {
		return err
	}
	return e.validate()
}
