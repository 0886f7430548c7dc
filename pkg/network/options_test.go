package network

import (
	"math"
	"testing"
	"time"

	"github.com/nspcc-dev/dsocket/pkg/config"
	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"github.com/stretchr/testify/require"
)

func TestReconnectPolicyDelay(t *testing.T) {
	p := ReconnectPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}
	for attempt, d := range []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	} {
		require.Equal(t, d, p.Delay(attempt), attempt)
	}

	p.Multiplier = 0
	require.Equal(t, 100*time.Millisecond, p.Delay(5))

	// No cap, the delay saturates instead of overflowing.
	p.Multiplier = 10
	p.MaxDelay = 0
	require.Equal(t, time.Duration(math.MaxInt64), p.Delay(100))
	require.Equal(t, time.Duration(math.MaxInt64), p.Delay(1000))
	require.Equal(t, time.Second, p.Delay(1))
}

func TestNewOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Client.Address = "localhost:20333"
	cfg.Client.Tag = "t"
	cfg.Client.Backup = "localhost:20334"
	cfg.Client.CallbackMode = "independent"
	cfg.Client.Pulse = config.Pulse{Interval: time.Second, LoseLimit: 5, Payload: "hb"}

	o, err := NewOptions(cfg.Client)
	require.NoError(t, err)
	require.True(t, o.Holden)
	require.Equal(t, action.ModeIndependent, o.CallbackMode)
	require.Equal(t, endpoint.Info{Host: "localhost", Port: 20334, Tag: "t"}, o.Backup)
	require.Equal(t, time.Second, o.PulseInterval)
	require.Equal(t, 5, o.PulseLoseLimit)
	require.Equal(t, frame.Text("hb"), o.Pulse())
	require.Equal(t, cfg.Client.Reconnect.InitialDelay, o.Reconnect.InitialDelay)

	info, err := ClientEndpoint(cfg.Client)
	require.NoError(t, err)
	require.Equal(t, endpoint.Info{Host: "localhost", Port: 20333, Tag: "t"}, info)

	cfg.Client.CallbackMode = "parallel"
	_, err = NewOptions(cfg.Client)
	require.Error(t, err)

	cfg.Client.CallbackMode = ""
	cfg.Client.Backup = "nowhere"
	_, err = NewOptions(cfg.Client)
	require.ErrorIs(t, err, endpoint.ErrInvalidAddress)
}

func TestNewServerOptions(t *testing.T) {
	cfg := config.Default().Server
	cfg.MaxClients = 7
	cfg.Pulse.Interval = time.Second
	o := NewServerOptions(cfg)
	require.Equal(t, "0.0.0.0", o.BindAddress)
	require.Equal(t, 7, o.MaxClients)
	require.False(t, o.Client.Reconnect.Enabled)
	require.Equal(t, time.Second, o.Client.PulseInterval)
	require.Equal(t, frame.Text(DefaultPulsePayload), o.Client.Pulse())
}
