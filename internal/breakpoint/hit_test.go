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

package breakpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func site(line int) Site {
	return Site{Filename: "/a.bj", Line: line, Func: "<module>"}
}

func TestEffective_LineBreakpoint(t *testing.T) {
	table := NewTable(nil)
	_, err := table.Create("/a.bj", 4, false, "")
	require.NoError(t, err)

	bp, temp := table.Effective(site(4), nil)
	require.NotNil(t, bp)
	assert.False(t, temp)
	assert.Equal(t, 1, bp.Hits)

	bp, _ = table.Effective(site(5), nil)
	assert.Nil(t, bp)
}

func TestEffective_Disabled(t *testing.T) {
	table := NewTable(nil)
	_, err := table.Create("/a.bj", 4, false, "")
	require.NoError(t, err)
	_, err = table.Disable(1)
	require.NoError(t, err)

	bp, _ := table.Effective(site(4), nil)
	assert.Nil(t, bp)
}

func TestEffective_IgnoreCount(t *testing.T) {
	table := NewTable(nil)
	_, err := table.Create("/a.bj", 4, false, "")
	require.NoError(t, err)
	_, err = table.Ignore(1, 2)
	require.NoError(t, err)

	var stops []int
	for pass := 1; pass <= 4; pass++ {
		if bp, _ := table.Effective(site(4), nil); bp != nil {
			stops = append(stops, pass)
		}
	}
	assert.Equal(t, []int{3, 4}, stops)

	bp, err := table.Lookup(1)
	require.NoError(t, err)
	assert.Zero(t, bp.Ignore)
	assert.Equal(t, 4, bp.Hits)
}

func TestEffective_Temporary(t *testing.T) {
	table := NewTable(nil)
	_, err := table.Create("/a.bj", 4, true, "")
	require.NoError(t, err)

	bp, temp := table.Effective(site(4), nil)
	require.NotNil(t, bp)
	assert.True(t, temp)
}

func TestEffective_Condition(t *testing.T) {
	table := NewTable(nil)
	_, err := table.Create("/a.bj", 4, true, "")
	require.NoError(t, err)
	_, err = table.SetCondition(1, "i == 2")
	require.NoError(t, err)

	i := 0
	cond := func(expr string) (bool, error) {
		assert.Equal(t, "i == 2", expr)
		return i == 2, nil
	}

	for ; i < 2; i++ {
		bp, _ := table.Effective(site(4), cond)
		assert.Nil(t, bp, "i=%d", i)
	}
	bp, temp := table.Effective(site(4), cond)
	require.NotNil(t, bp)
	assert.True(t, temp)

	broken := func(string) (bool, error) { return false, errors.New("boom") }
	bp, temp = table.Effective(site(4), broken)
	require.NotNil(t, bp, "evaluation errors stop execution")
	assert.False(t, temp, "a breakpoint whose condition failed is kept")
}

func TestEffective_FunctionBreakpoint(t *testing.T) {
	table := NewTable(nil)
	_, err := table.Create("/a.bj", 10, false, "add")
	require.NoError(t, err)

	// The def statement itself runs at module level and must not trigger.
	bp, _ := table.Effective(Site{Filename: "/a.bj", Line: 10, Func: "<module>"}, nil)
	assert.Nil(t, bp)

	in := func(line int) Site {
		return Site{Filename: "/a.bj", Line: line, Func: "add", FuncLine: 10}
	}
	bp, _ = table.Effective(in(11), nil)
	require.NotNil(t, bp, "first line of the function fires")

	bp, _ = table.Effective(in(12), nil)
	assert.Nil(t, bp, "later lines of the function do not")

	bp, _ = table.Effective(in(11), nil)
	assert.NotNil(t, bp, "the next call fires again")
}

func TestInfo(t *testing.T) {
	table := NewTable(nil)
	bp, err := table.Create("/a.bj", 4, true, "f")
	require.NoError(t, err)

	info := bp.Info()
	assert.Equal(t, 1, info.Bpnum)
	assert.Equal(t, "/a.bj", info.Filename)
	assert.True(t, info.Temporary)
	assert.True(t, info.Enabled)
	assert.Equal(t, "f", info.Funcname)
}
