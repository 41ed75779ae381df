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

// Package protocol defines the wire format spoken between the debug engine
// and its controller.
//
// Every message is a JSON array of exactly two elements, the message name and
// an argument object, followed by the sentinel byte 0x03:
//
//	["break", {"filename": "/src/app.bj", "line": 10, "temporary": false}]\x03
//
// Commands flow from controller to engine, events from engine to controller.
// JSON escapes every control character inside strings, so the sentinel can
// never occur inside an encoded payload and needs no escaping of its own.
package protocol
