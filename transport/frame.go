// Package transport implements the collector link: the length-prefixed XML
// envelope wrapping every sandesh, and the TCP session that carries it.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/NVIDIA/sandesh/cmn"
)

// wire framing constants; the attribute value is zero-padded to exactly
// lenWidth digits and counts both wrapper tags
const (
	openPrefix = `<sandesh length="`
	openSuffix = `">`
	closeTag   = `</sandesh>`
	lenWidth   = 10
	openLen    = len(openPrefix) + lenWidth + len(openSuffix)
)

// MaxFrameSize rejects absurd length attributes before buffering them.
const MaxFrameSize = 64 * cmn.MiB

// Encode renders msg as a complete wire frame: envelope, header
// sub-document, payload element.
func Encode(msg *cmn.Message) ([]byte, error) {
	hdr, err := xml.Marshal(&msg.Hdr)
	if err != nil {
		return nil, err
	}
	bodyLen := len(hdr) + len(msg.Body)
	total := openLen + bodyLen + len(closeTag)
	var b bytes.Buffer
	b.Grow(total)
	b.WriteString(openPrefix)
	fmt.Fprintf(&b, "%0*d", lenWidth, total)
	b.WriteString(openSuffix)
	b.Write(hdr)
	b.Write(msg.Body)
	b.WriteString(closeTag)
	return b.Bytes(), nil
}

// Decoder reassembles frames from an arbitrarily chunked byte stream.
// Any deviation from the envelope grammar is an unrecoverable framing
// error: the connection can no longer be resynchronized.
type Decoder struct {
	buf      bytes.Buffer
	frameLen int // 0: opener not yet parsed
}

// Feed appends chunk and emits every complete BODY (envelope stripped).
// Emission stops at the first emit error or framing error.
func (d *Decoder) Feed(chunk []byte, emit func(body []byte) error) error {
	d.buf.Write(chunk)
	for {
		if d.frameLen == 0 {
			n, err := d.parseOpener()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil // need more data
			}
			d.frameLen = n
		}
		if d.buf.Len() < d.frameLen {
			return nil
		}
		frame := d.buf.Next(d.frameLen)
		d.frameLen = 0
		if !bytes.HasSuffix(frame, []byte(closeTag)) {
			return cmn.NewErrFraming("missing close tag")
		}
		body := frame[openLen : len(frame)-len(closeTag)]
		if err := emit(body); err != nil {
			return err
		}
		if d.buf.Len() == 0 {
			return nil
		}
	}
}

func (d *Decoder) parseOpener() (int, error) {
	if d.buf.Len() < openLen {
		return 0, nil
	}
	opener := d.buf.Bytes()[:openLen]
	if !bytes.HasPrefix(opener, []byte(openPrefix)) ||
		!bytes.Equal(opener[openLen-len(openSuffix):], []byte(openSuffix)) {
		return 0, cmn.NewErrFraming("bad envelope opener %q", opener)
	}
	lenStr := string(opener[len(openPrefix) : len(openPrefix)+lenWidth])
	n, err := strconv.Atoi(lenStr)
	if err != nil || n < openLen+len(closeTag) || n > MaxFrameSize {
		return 0, cmn.NewErrFraming("invalid length attribute %q", lenStr)
	}
	return n, nil
}

// ParseBody splits a BODY into its header, the payload element name, and
// the raw payload bytes.
func ParseBody(body []byte) (hdr cmn.Header, name string, payload []byte, err error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return hdr, "", nil, err
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Local != "SandeshHeader" {
		return hdr, "", nil, cmn.NewErrFraming("body does not start with SandeshHeader")
	}
	if err = dec.DecodeElement(&hdr, &start); err != nil {
		return hdr, "", nil, err
	}
	off := dec.InputOffset()
	for {
		tok, err = dec.Token()
		if err != nil {
			return hdr, "", nil, cmn.NewErrFraming("body has no payload element")
		}
		if start, ok = tok.(xml.StartElement); ok {
			return hdr, start.Name.Local, bytes.TrimSpace(body[off:]), nil
		}
	}
}
