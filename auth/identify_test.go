package auth

import (
	"bytes"
	"testing"

	"github.com/tomyedwab/fbwire/wire"
)

// parseIdentEntries decodes (tag, length, payload) entries. The first
// occurrence of each tag wins; chunked continuations only matter for the
// presence checks below.
func parseIdentEntries(t *testing.T, buf []byte) map[byte][]byte {
	t.Helper()
	entries := map[byte][]byte{}
	for len(buf) > 0 {
		if len(buf) < 2 {
			t.Fatalf("truncated identification entry: % x", buf)
		}
		tag, length := buf[0], int(buf[1])
		if len(buf) < 2+length {
			t.Fatalf("entry %d declares %d bytes, %d available", tag, length, len(buf)-2)
		}
		if _, seen := entries[tag]; !seen {
			entries[tag] = append([]byte(nil), buf[2:2+length]...)
		}
		buf = buf[2+length:]
	}
	return entries
}

// TestChunkedEntryEncoding verifies payloads over 254 bytes split into
// (tag, length+1, part index, payload) chunks of at most 254 bytes.
func TestChunkedEntryEncoding(t *testing.T) {
	payload := make([]byte, 600)
	for i := range payload {
		payload[i] = byte(i)
	}

	var b identBlock
	b.addChunked(wire.CnctSpecificData, payload)
	buf := b.buf

	var got []byte
	part := 0
	for len(buf) > 0 {
		if buf[0] != wire.CnctSpecificData {
			t.Fatalf("chunk %d has tag %d, want %d", part, buf[0], wire.CnctSpecificData)
		}
		length := int(buf[1])
		if length-1 > maxEntryPayload {
			t.Fatalf("chunk %d payload %d exceeds %d", part, length-1, maxEntryPayload)
		}
		if int(buf[2]) != part {
			t.Fatalf("chunk %d carries part index %d", part, buf[2])
		}
		got = append(got, buf[3:2+length]...)
		buf = buf[2+length:]
		part++
	}

	if part != 3 {
		t.Errorf("600-byte payload split into %d chunks, want 3", part)
	}
	if !bytes.Equal(got, payload) {
		t.Error("reassembled chunks do not match the original payload")
	}
}

// TestSmallEntryNotChunked verifies payloads at or under the limit stay
// a single plain entry.
func TestSmallEntryNotChunked(t *testing.T) {
	payload := make([]byte, maxEntryPayload)
	var b identBlock
	b.addChunked(wire.CnctSpecificData, payload)

	if int(b.buf[1]) != maxEntryPayload {
		t.Errorf("entry length = %d, want %d", b.buf[1], maxEntryPayload)
	}
	if len(b.buf) != 2+maxEntryPayload {
		t.Errorf("entry size = %d, want %d", len(b.buf), 2+maxEntryPayload)
	}
}

// TestIdentificationBlockContents verifies the interactive block carries
// login, plugin names, plugin list, crypt level, user, host and the
// verification marker.
func TestIdentificationBlockContents(t *testing.T) {
	cfg := &Config{
		User:      "sysdba",
		Password:  "masterkey",
		WireCrypt: wire.WireCryptEnabled,
	}
	plugins := SelectPlugins(false)
	buf := buildIdentification(cfg, plugins, "Srp256,Srp")

	entries := parseIdentEntries(t, buf)

	if got := string(entries[wire.CnctLogin]); got != "SYSDBA" {
		t.Errorf("login entry = %q, want %q", got, "SYSDBA")
	}
	if got := string(entries[wire.CnctPluginName]); got != "Srp256" {
		t.Errorf("plugin name entry = %q, want %q", got, "Srp256")
	}
	if got := string(entries[wire.CnctPluginList]); got != "Srp256,Srp" {
		t.Errorf("plugin list entry = %q, want %q", got, "Srp256,Srp")
	}
	if len(entries[wire.CnctClientCrypt]) != 4 || entries[wire.CnctClientCrypt][0] != byte(wire.WireCryptEnabled) {
		t.Errorf("client crypt entry = % x", entries[wire.CnctClientCrypt])
	}
	if _, ok := entries[wire.CnctUserVerification]; !ok {
		t.Error("missing user verification marker")
	}
	if _, ok := entries[wire.CnctSpecificData]; !ok {
		t.Error("missing plugin specific data")
	}
}

// TestIdentificationEntryOrder verifies the block leads with the user
// name, host name and verification marker before any plugin entries.
func TestIdentificationEntryOrder(t *testing.T) {
	cfg := &Config{User: "sysdba", Password: "masterkey"}
	buf := buildIdentification(cfg, SelectPlugins(false), "Srp256,Srp")

	var tags []byte
	for len(buf) >= 2 {
		tags = append(tags, buf[0])
		buf = buf[2+int(buf[1]):]
	}
	if len(tags) < 3 {
		t.Fatalf("identification block has only %d entries", len(tags))
	}
	want := []byte{wire.CnctUser, wire.CnctHost, wire.CnctUserVerification}
	if !bytes.Equal(tags[:3], want) {
		t.Errorf("leading tags = %v, want %v", tags[:3], want)
	}
}

// TestOversizedPlainEntryPanics makes sure a payload that cannot fit a
// one-byte length never silently wraps into a corrupt entry.
func TestOversizedPlainEntryPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("add accepted a payload longer than 255 bytes")
		}
	}()
	var b identBlock
	b.add(wire.CnctSpecificData, make([]byte, 256))
}
