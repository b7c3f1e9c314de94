// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package history_test

import (
	"fmt"
	"testing"

	"code.hybscloud.com/chatline/internal/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAndSnapshotOrder(t *testing.T) {
	s := history.New(3)
	s.Append("a")
	s.Append("b")
	s.Append("c")
	require.Equal(t, []string{"a", "b", "c"}, s.Snapshot())
}

func TestStore_EvictsOldestWhenFull(t *testing.T) {
	s := history.New(3)
	for i := 0; i < 5; i++ {
		s.Append(fmt.Sprintf("m%d", i))
	}
	assert.Equal(t, []string{"m2", "m3", "m4"}, s.Snapshot())
	assert.Equal(t, 3, s.Len())
}

func TestStore_DefaultCapacity(t *testing.T) {
	s := history.New(0)
	for i := 0; i < history.DefaultCapacity+10; i++ {
		s.Append(fmt.Sprintf("m%d", i))
	}
	assert.Equal(t, history.DefaultCapacity, s.Len())
	snap := s.Snapshot()
	assert.Equal(t, "m10", snap[0])
}
