// SPDX-License-Identifier: MIT

// Package osc packs beat and tempo events into real OSC (Open Sound
// Control) packets: a null-padded address pattern, a type tag string,
// and BigEndian arguments, matching what any standard OSC-speaking DAW,
// lighting console, or visualizer expects on the wire.
package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	applog "beatpulse/internal/log"
	"beatpulse/internal/transport/udp"
)

const (
	addressBeat  = "/beat"
	addressTempo = "/tempo"
)

// Publisher sends beat and tempo events as OSC messages over UDP to a
// single target address.
type Publisher struct {
	sender *udp.UDPSender
	buf    *bytes.Buffer
}

// NewPublisher dials a UDP sender targeting address ("host:port").
func NewPublisher(address string) (*Publisher, error) {
	sender, err := udp.NewUDPSender(address)
	if err != nil {
		return nil, fmt.Errorf("osc: failed to create sender: %w", err)
	}
	return &Publisher{sender: sender, buf: new(bytes.Buffer)}, nil
}

// PublishBeat sends "/beat" <float t>, t being the onset's audio-time in
// seconds.
func (p *Publisher) PublishBeat(onsetTimeSeconds float64) error {
	p.buf.Reset()
	if err := writeMessage(p.buf, addressBeat, "f", float32(onsetTimeSeconds)); err != nil {
		return fmt.Errorf("osc: failed to pack beat message: %w", err)
	}
	return p.send()
}

// PublishTempo sends "/tempo" <float bpm> <float conf>.
func (p *Publisher) PublishTempo(bpm, confidence float64) error {
	p.buf.Reset()
	if err := writeMessage(p.buf, addressTempo, "ff", float32(bpm), float32(confidence)); err != nil {
		return fmt.Errorf("osc: failed to pack tempo message: %w", err)
	}
	return p.send()
}

// writeMessage encodes an OSC message: the address pattern and type tag
// string each null-terminated and padded to a 4-byte boundary, followed
// by the BigEndian float32 arguments named in tags ("f" per argument).
func writeMessage(buf *bytes.Buffer, address, tags string, args ...float32) error {
	if err := writePaddedString(buf, address); err != nil {
		return err
	}
	if err := writePaddedString(buf, ","+tags); err != nil {
		return err
	}
	for _, a := range args {
		if err := binary.Write(buf, binary.BigEndian, a); err != nil {
			return err
		}
	}
	return nil
}

// writePaddedString writes s null-terminated and zero-padded so the
// buffer's length after writing is a multiple of 4, per the OSC spec.
func writePaddedString(buf *bytes.Buffer, s string) error {
	if _, err := buf.WriteString(s); err != nil {
		return err
	}
	pad := 4 - len(s)%4
	_, err := buf.Write(make([]byte, pad))
	return err
}

func (p *Publisher) send() error {
	if err := p.sender.Send(p.buf.Bytes()); err != nil {
		applog.Errorf("osc: failed to send %d-byte packet: %v", p.buf.Len(), err)
		return err
	}
	return nil
}

// Close releases the underlying UDP connection.
func (p *Publisher) Close() error {
	return p.sender.Close()
}
