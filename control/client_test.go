package control_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgersim/launcher/control"
	"github.com/ledgersim/launcher/internal/controltest"
)

func newClient(t *testing.T) (*control.Client, *controltest.Server) {
	t.Helper()
	fake := controltest.New()
	t.Cleanup(fake.Close)
	return control.NewClient(zap.NewNop().Sugar(), fake.Port()), fake
}

func TestCreateInstance(t *testing.T) {
	client, fake := newClient(t)

	req := &control.CreateInstanceRequest{
		Subnets:  control.SubnetConfig{Application: 1, NNS: true},
		StateDir: "/tmp/state",
		Gateway:  &control.GatewayConfig{Port: 9999, Domains: []string{"localhost"}},
	}
	inst, err := client.CreateInstance(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, fake.InstanceID, inst.ID)
	require.Equal(t, uint16(9999), inst.GatewayPort)
	require.Equal(t, fake.DefaultTargetID, inst.Topology.DefaultEffectiveTargetID)

	got := fake.CreateRequests()
	require.Len(t, got, 1)
	require.Equal(t, *req, got[0])
}

func TestSetAutoProgress(t *testing.T) {
	client, fake := newClient(t)

	delay := uint64(250)
	require.NoError(t, client.SetAutoProgress(context.Background(), fake.InstanceID, &delay))
	require.NoError(t, client.SetAutoProgress(context.Background(), fake.InstanceID, nil))

	cfgs := fake.AutoProgressConfigs()
	require.Len(t, cfgs, 2)
	require.NotNil(t, cfgs[0].ArtificialDelayMS)
	require.Equal(t, uint64(250), *cfgs[0].ArtificialDelayMS)
	require.Nil(t, cfgs[1].ArtificialDelayMS)
}

func TestRootKey(t *testing.T) {
	client, fake := newClient(t)

	key, err := client.RootKey(context.Background(), fake.InstanceID)
	require.NoError(t, err)
	require.Equal(t, fake.RootKey, key)
}

func TestDeleteInstance(t *testing.T) {
	client, fake := newClient(t)

	require.NoError(t, client.DeleteInstance(context.Background(), fake.InstanceID))
	require.Equal(t, []int{fake.InstanceID}, fake.Deleted())
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	client := control.NewClientURL(zap.NewNop().Sugar(), "http://127.0.0.1:1")
	_, err := client.CreateInstance(context.Background(), &control.CreateInstanceRequest{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "/instances")
}
