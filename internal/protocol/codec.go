// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	bugjarerrors "github.com/tombee/bugjar/pkg/errors"
)

// Sentinel terminates every frame on the wire.
const Sentinel byte = 0x03

// Message is a decoded frame before its arguments are interpreted.
type Message struct {
	Name string
	Args json.RawMessage
}

// Encode serialises name and args as one frame, sentinel included.
// A nil args encodes as an empty object.
func Encode(name string, args any) ([]byte, error) {
	if args == nil {
		args = struct{}{}
	}
	payload, err := json.Marshal([]any{name, args})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}
	return append(payload, Sentinel), nil
}

// Parse decodes one frame (without its sentinel) into a Message.
func Parse(frame []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(frame, &parts); err != nil {
		return Message{}, bugjarerrors.NewProtocolError(frame, "not a JSON array", err)
	}
	if len(parts) != 2 {
		return Message{}, bugjarerrors.NewProtocolError(frame, fmt.Sprintf("expected 2 elements, got %d", len(parts)), nil)
	}

	var msg Message
	if err := json.Unmarshal(parts[0], &msg.Name); err != nil {
		return Message{}, bugjarerrors.NewProtocolError(frame, "message name is not a string", err)
	}
	if msg.Name == "" {
		return Message{}, bugjarerrors.NewProtocolError(frame, "empty message name", nil)
	}

	args := bytes.TrimSpace(parts[1])
	if bytes.Equal(args, []byte("null")) {
		args = []byte("{}")
	}
	if len(args) == 0 || args[0] != '{' {
		return Message{}, bugjarerrors.NewProtocolError(frame, "arguments are not an object", nil)
	}
	msg.Args = json.RawMessage(args)
	return msg, nil
}

// Decoder splits a byte stream into frames. It keeps the bytes after the
// last sentinel until a later chunk completes them.
//
// The zero value is ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	remainder []byte
}

// Feed appends chunk to the pending bytes and returns every frame completed
// by it, in order. Empty frames are skipped.
func (d *Decoder) Feed(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}
	d.remainder = append(d.remainder, chunk...)

	segments := bytes.Split(d.remainder, []byte{Sentinel})
	last := len(segments) - 1
	if chunk[len(chunk)-1] == Sentinel {
		// The trailing segment after the final sentinel is empty.
		d.remainder = nil
	} else {
		d.remainder = append([]byte(nil), segments[last]...)
	}
	segments = segments[:last]

	frames := make([][]byte, 0, len(segments))
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		frames = append(frames, append([]byte(nil), seg...))
	}
	return frames
}

// Pending reports how many bytes are buffered waiting for a sentinel.
func (d *Decoder) Pending() int {
	return len(d.remainder)
}

// Reset discards any buffered partial frame.
func (d *Decoder) Reset() {
	d.remainder = nil
}
