package memcache

import (
	"strconv"
	"testing"

	"github.com/colinmarc/memcache/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClusterConfigSingleNode(t *testing.T) {
	nodes, err := ParseClusterConfig("myhost.cache.amazonaws.com|10.0.0.1|11211")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "myhost.cache.amazonaws.com", nodes[0].FQDN)
	assert.Equal(t, "10.0.0.1", nodes[0].IP)
	assert.Equal(t, 11211, nodes[0].Port)
}

func TestParseClusterConfigMultipleNodes(t *testing.T) {
	line := "a.cache.amazonaws.com|10.0.0.1|11211 b.cache.amazonaws.com|10.0.0.2|11211"
	nodes, err := ParseClusterConfig(line)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "b.cache.amazonaws.com", nodes[1].FQDN)
	assert.Equal(t, 11211, nodes[1].Port)
}

func TestParseClusterConfigMalformedDescriptor(t *testing.T) {
	_, err := ParseClusterConfig("not-a-descriptor")
	require.Error(t, err)
	var illegal *IllegalInputError
	require.ErrorAs(t, err, &illegal)
}

func TestParseClusterConfigMalformedPort(t *testing.T) {
	_, err := ParseClusterConfig("host|10.0.0.1|notaport")
	require.Error(t, err)
	var illegal *IllegalInputError
	require.ErrorAs(t, err, &illegal)
}

func TestDiscoveredNodeEndpoint(t *testing.T) {
	node := DiscoveredNode{FQDN: "host.example.com", IP: "10.0.0.5", Port: 11211}
	assert.Equal(t, "host.example.com:11211", node.Endpoint(false).String())
	assert.Equal(t, "10.0.0.5:11211", node.Endpoint(true).String())
}

func TestRawClusterConfigParsesConfigReply(t *testing.T) {
	payload := "12\na.cache.amazonaws.com|10.0.0.1|11211 b.cache.amazonaws.com|10.0.0.2|11211\n"
	header := "CONFIG cluster 0 " + strconv.Itoa(len(payload)) + "\r\n"

	conn := testutils.NewConnectionMock(header, payload, "\r\n", "END\r\n")
	client := &SingleClient{
		endpoint: TCPEndpoint("cfg.example.com:11211"),
		config:   Config{}.withDefaults(),
		conn:     conn,
		fr:       newFramer(conn),
	}

	nodes, err := rawClusterConfig(t.Context(), client)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "a.cache.amazonaws.com", nodes[0].FQDN)
	assert.Equal(t, "b.cache.amazonaws.com", nodes[1].FQDN)
}

func TestRawClusterConfigRejectsMalformedHeader(t *testing.T) {
	conn := testutils.NewConnectionMock("ERROR\r\n")
	client := &SingleClient{
		endpoint: TCPEndpoint("cfg.example.com:11211"),
		config:   Config{}.withDefaults(),
		conn:     conn,
		fr:       newFramer(conn),
	}

	_, err := rawClusterConfig(t.Context(), client)
	require.Error(t, err)
	var unknownCmd *UnknownCommandError
	require.ErrorAs(t, err, &unknownCmd)
}
