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

// Package console is an interactive, line-oriented controller for a
// debugging session. It reads commands from an input stream, forwards them
// through a Controller (normally a proxy.Proxy) and renders the events the
// engine sends back.
//
// Commands:
//
//	break, b [file:]line|func [if expr]   set a breakpoint
//	tbreak [file:]line|func               set a one-shot breakpoint
//	enable N / disable N                  toggle a breakpoint
//	ignore N COUNT                        skip the next COUNT hits
//	condition N [expr]                    set or remove a condition
//	clear, cl N                           remove a breakpoint
//	step, s / next, n / return, r         stepping
//	until, u / continue, c                run on
//	up / down                             move between frames
//	restart [args...]                     relaunch the program
//	quit, q                               end the session
//	breakpoints, bl                       list breakpoints
//	where, bt                             show the stack
//	print, p NAME                         show a variable in the current frame
//	list, l                               show source around the current line
//	inspect, i QUERY                      run a jq query over the stack
//	help, h, ?                            show help
package console
