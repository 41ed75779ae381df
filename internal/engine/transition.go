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

package engine

import "fmt"

// Transition is what the interaction loop does after a command.
type Transition int

const (
	// Stay keeps the engine paused and reads the next command.
	Stay Transition = iota
	// Resume lets the program run until the next stop.
	Resume
	// Restart tears the program down and launches it again.
	Restart
	// AwaitReconnect waits for a new controller, then keeps the engine paused.
	AwaitReconnect
	// Terminate ends the session.
	Terminate
)

var transitionNames = [...]string{
	Stay:           "stay",
	Resume:         "resume",
	Restart:        "restart",
	AwaitReconnect: "await_reconnect",
	Terminate:      "terminate",
}

func (t Transition) String() string {
	if t >= 0 && int(t) < len(transitionNames) {
		return transitionNames[t]
	}
	return fmt.Sprintf("Transition(%d)", int(t))
}

// unwind carries a transition out of the target. cause is set when the
// session terminates because of a failure.
type unwind struct {
	to    Transition
	cause error
}

func (u *unwind) Error() string {
	if u.cause != nil {
		return fmt.Sprintf("session %s: %v", u.to, u.cause)
	}
	return "session " + u.to.String()
}

func (u *unwind) Unwrap() error {
	return u.cause
}
