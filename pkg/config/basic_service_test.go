package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBasicService_Validate(t *testing.T) {
	require.NoError(t, BasicService{}.Validate())
	require.NoError(t, BasicService{Enabled: true, Addresses: []string{":2112", "localhost:2113"}}.Validate())
	require.Error(t, BasicService{Enabled: true}.Validate())
	require.Error(t, BasicService{Enabled: true, Addresses: []string{"localhost"}}.Validate())
}
