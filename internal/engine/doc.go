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

// Package engine implements the debugging session engine.
//
// An Engine runs a trace.Target under its own tracer on a single control
// goroutine. When execution reaches a stop condition the engine reports the
// stop to the bound controller and blocks on that controller's command queue
// until a command resumes execution. Commands arrive through a
// conn.Connection whose receive goroutine is the only other goroutine
// involved; the breakpoint table and the captured stack are touched only by
// the control goroutine and carry no locks.
//
// Restart, reconnection and termination are Transition values. Hooks turn
// any transition other than Resume into an *unwind error that travels out of
// the target and is handled by Serve.
package engine
