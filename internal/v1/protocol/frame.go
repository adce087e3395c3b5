// Package protocol implements the line-delimited JSON wire protocol: frame
// decode/encode, the per-connection session state machine, and the
// Hello/Set/List/State/Chat/Error/TLS command handlers (spec.md §4.1-4.10).
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Recognized top-level command tags. Any other tag drops the connection
// with an Error frame (spec.md §4.1).
const (
	TagHello = "Hello"
	TagSet   = "Set"
	TagList  = "List"
	TagState = "State"
	TagChat  = "Chat"
	TagError = "Error"
	TagTLS   = "TLS"
)

var knownTags = map[string]bool{
	TagHello: true,
	TagSet:   true,
	TagList:  true,
	TagState: true,
	TagChat:  true,
	TagError: true,
	TagTLS:   true,
}

// command is one top-level tag/payload pair from a decoded line, in the
// order it appeared on the wire.
type command struct {
	Tag     string
	Payload json.RawMessage
}

// decodeLine parses one line into an ordered list of commands, preserving
// the source key order so multiple commands on one line dispatch in
// iteration order (spec.md §4.1). A plain map-based json.Unmarshal would
// lose that order, since Go map iteration is randomized.
func decodeLine(line []byte) ([]command, error) {
	dec := json.NewDecoder(bytes.NewReader(line))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("protocol: expected top-level JSON object")
	}

	var cmds []command
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("protocol: non-string object key")
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		cmds = append(cmds, command{Tag: key, Payload: raw})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return cmds, nil
}

// isKnownTag reports whether tag is one of the seven recognized top-level
// commands.
func isKnownTag(tag string) bool {
	return knownTags[tag]
}
