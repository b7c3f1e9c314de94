// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package connection_test

import (
	"net"
	"testing"
	"time"

	"code.hybscloud.com/chatline/internal/connection"
	"code.hybscloud.com/chatline/internal/reactor"

	"github.com/stretchr/testify/require"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

func TestNew_DefaultsUsernameAndStampsLastActive(t *testing.T) {
	before := time.Now()
	var remote net.Addr = fakeAddr("127.0.0.1:9090")
	c := connection.New(7, remote, 0)

	require.Equal(t, 7, c.FD)
	require.Equal(t, connection.DefaultUsername, c.Username)
	require.Equal(t, remote, c.RemoteAddr)
	require.False(t, c.LastActive.Before(before))
	require.Equal(t, reactor.InterestNone, c.Interest)
	require.NotNil(t, c.In)
	require.NotNil(t, c.Out)
	require.True(t, c.Out.Empty())
}
