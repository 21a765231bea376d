package auth

import (
	"encoding/binary"
	"fmt"

	"github.com/tomyedwab/fbwire/wire"
)

// maxEntryPayload is the largest payload a single identification entry
// can carry; longer values are split into indexed parts.
const maxEntryPayload = 254

// identBlock accumulates the client identification block sent with the
// connect request: a sequence of (1-byte tag, 1-byte length, payload)
// entries.
type identBlock struct {
	buf []byte
}

func (b *identBlock) add(tag byte, payload []byte) {
	if len(payload) > 0xff {
		panic(fmt.Sprintf("auth: identification entry %d payload is %d bytes; use addChunked", tag, len(payload)))
	}
	b.buf = append(b.buf, tag, byte(len(payload)))
	b.buf = append(b.buf, payload...)
}

func (b *identBlock) addString(tag byte, s string) {
	b.add(tag, []byte(s))
}

// addChunked splits payloads longer than 254 bytes into successive
// entries of (tag, chunk-length-plus-one, zero-based part index, chunk).
func (b *identBlock) addChunked(tag byte, payload []byte) {
	if len(payload) <= maxEntryPayload {
		b.add(tag, payload)
		return
	}
	for part := 0; len(payload) > 0; part++ {
		n := len(payload)
		if n > maxEntryPayload {
			n = maxEntryPayload
		}
		b.buf = append(b.buf, tag, byte(n+1), byte(part))
		b.buf = append(b.buf, payload[:n]...)
		payload = payload[n:]
	}
}

func (b *identBlock) addInt32(tag byte, v int32) {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], uint32(v))
	b.add(tag, p[:])
}

// buildIdentification assembles the identification block for a connect
// request offering the given plugins in preference order.
func buildIdentification(cfg *Config, plugins []Plugin, pluginList string) []byte {
	var b identBlock

	b.addString(wire.CnctUser, osUserName())
	b.addString(wire.CnctHost, clientHostName())
	b.add(wire.CnctUserVerification, nil)

	if cfg.Trusted {
		b.addString(wire.CnctPluginName, plugins[0].Name())
		b.addChunked(wire.CnctSpecificData, plugins[0].ClientData())
		b.addString(wire.CnctPluginList, pluginList)
		b.addInt32(wire.CnctClientCrypt, wire.WireCryptDisabled)
	} else {
		b.addString(wire.CnctLogin, NormalizeLogin(cfg.User))
		b.addString(wire.CnctPluginName, plugins[0].Name())
		b.addChunked(wire.CnctSpecificData, plugins[0].ClientData())
		b.addString(wire.CnctPluginList, pluginList)
		b.addInt32(wire.CnctClientCrypt, cfg.WireCrypt)
	}

	return b.buf
}
