package openstack

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/services"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/pagination"
	"go.uber.org/zap"

	"github.com/jandubois/infraprobe/internal/probes/nova"
)

// ComputeClient implements nova.Client.
type ComputeClient struct {
	sc *gophercloud.ServiceClient
}

var _ nova.Client = (*ComputeClient)(nil)

// Compute authenticates and connects to the compute API. With a valid ip the
// v2.1 API at that address is used instead of the catalog endpoint.
func (s *Session) Compute(ctx context.Context, ip netip.Addr) (*ComputeClient, error) {
	provider, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := s.serviceClient(provider, "compute", Endpoint(ip, nova.DefaultPort, "v2.1/"), "", openstack.NewComputeV2)
	if err != nil {
		return nil, err
	}
	s.Log.Debug("compute endpoint", zap.String("endpoint", sc.Endpoint))

	err = servers.List(sc, servers.ListOpts{Limit: 1}).EachPage(func(pagination.Page) (bool, error) {
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("query compute api: %w", err)
	}
	return &ComputeClient{sc: sc}, nil
}

func (c *ComputeClient) ListServices(context.Context) ([]nova.Service, error) {
	pages, err := services.List(c.sc, nil).AllPages()
	if err != nil {
		return nil, err
	}
	all, err := services.ExtractServices(pages)
	if err != nil {
		return nil, err
	}
	out := make([]nova.Service, len(all))
	for i, s := range all {
		out[i] = nova.Service{Binary: s.Binary, Host: s.Host, State: s.State}
	}
	return out, nil
}

func (c *ComputeClient) ListServers(context.Context) ([]nova.Server, error) {
	pages, err := servers.List(c.sc, servers.ListOpts{AllTenants: true}).AllPages()
	if err != nil {
		return nil, err
	}
	all, err := servers.ExtractServers(pages)
	if err != nil {
		return nil, err
	}
	out := make([]nova.Server, len(all))
	for i, s := range all {
		out[i] = nova.Server{ID: s.ID, Status: s.Status}
	}
	return out, nil
}
