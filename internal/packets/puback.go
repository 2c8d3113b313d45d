package packets

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PubackPacket represents an MQTT PUBACK control packet (QoS 1 acknowledgment).
type PubackPacket struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

// Type returns the packet type.
func (p *PubackPacket) Type() uint8 {
	return PUBACK
}

// Encode serializes the PUBACK packet into dst.
func (p *PubackPacket) Encode(dst []byte) ([]byte, error) {
	var propsLen int
	if p.ReasonCode != 0 || p.Properties != nil {
		var propBuf [128]byte
		encodedProps := appendProperties(propBuf[:0], p.Properties)
		propsLen = len(encodedProps)
	}

	variableHeaderLen := 2
	if p.ReasonCode != 0 || p.Properties != nil {
		variableHeaderLen += 1 + propsLen // ReasonCode + Props
	}

	header := FixedHeader{
		PacketType:      PUBACK,
		Flags:           0,
		RemainingLength: variableHeaderLen,
	}
	dst = append(dst, (header.PacketType<<4)|(header.Flags&0x0F))
	dst = appendVarInt(dst, header.RemainingLength)

	dst = binary.BigEndian.AppendUint16(dst, p.PacketID)

	if p.ReasonCode != 0 || p.Properties != nil {
		dst = append(dst, p.ReasonCode)
		dst = appendProperties(dst, p.Properties)
	}

	return dst, nil
}

// WriteTo writes the PUBACK packet to the writer.
func (p *PubackPacket) WriteTo(w io.Writer) (int64, error) {
	bufPtr := GetBuffer(4096)
	defer PutBuffer(bufPtr)

	data, err := p.Encode((*bufPtr)[:0])
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// DecodePuback decodes a PUBACK packet from the buffer.
func DecodePuback(buf []byte, version uint8) (*PubackPacket, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("buffer too short for PUBACK packet")
	}

	pkt := &PubackPacket{}
	pkt.PacketID = binary.BigEndian.Uint16(buf[0:2])

	if len(buf) > 2 {
		pkt.ReasonCode = buf[2]
		if len(buf) > 3 {
			props, _, err := decodeProperties(buf[3:])
			if err != nil {
				return nil, fmt.Errorf("failed to decode properties: %w", err)
			}
			pkt.Properties = props
		}
	}

	return pkt, nil
}
