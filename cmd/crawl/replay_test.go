package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEvents(t *testing.T) {
	in := strings.Join([]string{
		`{"event":"Mint","transactionHash":"0xA","logIndex":0,"blockTimestamp":1700000000,"args":{"nodeId":"1","amount":"5"}}`,
		``,
		`not json`,
		`{"event":"Burn","transactionHash":"0xA","logIndex":1,"blockTimestamp":1700000000,"args":{"nodeId":"1","amount":"2"}}`,
	}, "\n")

	events, skipped, err := readEvents(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, []int{3}, skipped)
	assert.Equal(t, "0xa-0", events[0].ID())
	assert.Equal(t, "Burn", events[1].Name)
}
