package protocol

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weebpoly/syncplay-go/internal/v1/roommanager"
)

func helloAndJoin(t *testing.T, client net.Conn, rd *bufio.Reader, username, roomName string) {
	t.Helper()
	writeLine(t, client, map[string]interface{}{
		"Hello": map[string]interface{}{
			"username":    username,
			"room":        map[string]interface{}{"name": roomName},
			"realversion": "1.6.9",
		},
	})
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply := readFrame(t, rd)
	require.Contains(t, reply, TagHello)
}

func TestHandleListRestrictedToOwnRoomWhenIsolated(t *testing.T) {
	manager := roommanager.New(true)

	alice, aliceDone := startSession(t, testConfig(), manager)
	defer aliceDone()
	aliceRd := bufio.NewReader(alice)
	helloAndJoin(t, alice, aliceRd, "alice", "room-a")

	bob, bobDone := startSession(t, testConfig(), manager)
	defer bobDone()
	bobRd := bufio.NewReader(bob)
	helloAndJoin(t, bob, bobRd, "bob", "room-b")

	writeLine(t, alice, map[string]interface{}{"List": nil})
	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply := readFrame(t, aliceRd)

	var rosters map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(reply[TagList], &rosters))
	assert.Contains(t, rosters, "room-a")
	assert.NotContains(t, rosters, "room-b")
}

func TestHandleListSpansAllRoomsWhenNotIsolated(t *testing.T) {
	manager := roommanager.New(false)

	alice, aliceDone := startSession(t, testConfig(), manager)
	defer aliceDone()
	aliceRd := bufio.NewReader(alice)
	helloAndJoin(t, alice, aliceRd, "alice", "room-a")

	bob, bobDone := startSession(t, testConfig(), manager)
	defer bobDone()
	bobRd := bufio.NewReader(bob)
	helloAndJoin(t, bob, bobRd, "bob", "room-b")

	writeLine(t, alice, map[string]interface{}{"List": nil})
	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply := readFrame(t, aliceRd)

	var rosters map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(reply[TagList], &rosters))
	assert.Contains(t, rosters, "room-a")
	assert.Contains(t, rosters, "room-b")
}
