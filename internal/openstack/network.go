package openstack

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/agents"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/routers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/subnets"
	"github.com/gophercloud/gophercloud/pagination"
	"go.uber.org/zap"

	"github.com/jandubois/infraprobe/internal/probes/neutron"
)

// NetworkClient implements neutron.Client. Requests run under the context
// passed to Session.Network.
type NetworkClient struct {
	sc *gophercloud.ServiceClient
}

var _ neutron.Client = (*NetworkClient)(nil)

// Network authenticates and connects to the networking API, either through
// the service catalog or at ip when it is valid. The endpoint is queried
// once before returning so that an API that is down fails here.
func (s *Session) Network(ctx context.Context, ip netip.Addr) (*NetworkClient, error) {
	provider, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := s.serviceClient(provider, "network", Endpoint(ip, neutron.DefaultPort, ""), "v2.0/", openstack.NewNetworkV2)
	if err != nil {
		return nil, err
	}
	s.Log.Debug("networking endpoint", zap.String("endpoint", sc.Endpoint))

	err = networks.List(sc, networks.ListOpts{Limit: 1}).EachPage(func(pagination.Page) (bool, error) {
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("query networking api: %w", err)
	}
	return &NetworkClient{sc: sc}, nil
}

func (c *NetworkClient) ListNetworks(context.Context) ([]neutron.Resource, error) {
	pages, err := networks.List(c.sc, networks.ListOpts{}).AllPages()
	if err != nil {
		return nil, err
	}
	all, err := networks.ExtractNetworks(pages)
	if err != nil {
		return nil, err
	}
	out := make([]neutron.Resource, len(all))
	for i, n := range all {
		out[i] = neutron.Resource{ID: n.ID, Name: n.Name}
	}
	return out, nil
}

func (c *NetworkClient) ListAgents(context.Context) ([]neutron.Resource, error) {
	pages, err := agents.List(c.sc, agents.ListOpts{}).AllPages()
	if err != nil {
		return nil, err
	}
	all, err := agents.ExtractAgents(pages)
	if err != nil {
		return nil, err
	}
	out := make([]neutron.Resource, len(all))
	for i, a := range all {
		out[i] = neutron.Resource{ID: a.ID, Name: a.Host}
	}
	return out, nil
}

func (c *NetworkClient) ListRouters(context.Context) ([]neutron.Resource, error) {
	pages, err := routers.List(c.sc, routers.ListOpts{}).AllPages()
	if err != nil {
		return nil, err
	}
	all, err := routers.ExtractRouters(pages)
	if err != nil {
		return nil, err
	}
	out := make([]neutron.Resource, len(all))
	for i, r := range all {
		out[i] = neutron.Resource{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

func (c *NetworkClient) ListSubnets(context.Context) ([]neutron.Resource, error) {
	pages, err := subnets.List(c.sc, subnets.ListOpts{}).AllPages()
	if err != nil {
		return nil, err
	}
	all, err := subnets.ExtractSubnets(pages)
	if err != nil {
		return nil, err
	}
	out := make([]neutron.Resource, len(all))
	for i, s := range all {
		out[i] = neutron.Resource{ID: s.ID, Name: s.Name}
	}
	return out, nil
}
