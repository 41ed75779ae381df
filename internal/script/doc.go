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

// Package script implements the small language bugjar debugs.
//
// Programs are line oriented. Each non-blank line is one statement:
//
//	# comment
//	name = expr
//	print expr
//	def name(a, b)
//	    return a + b
//	end
//	if expr
//	else
//	end
//	while expr
//	end
//	for item in expr
//	end
//	raise expr
//	load "other.bj"
//	pass
//	expr
//
// Text between triple-quote lines is a literal block and does not run.
// Expressions use the expr-lang syntax; functions defined with def are
// callable from any expression and may recurse. Execution is reported to a
// trace.Tracer one statement at a time.
package script
