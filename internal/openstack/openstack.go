// Package openstack adapts gophercloud to the networking and compute probe
// clients and classifies client failures as unreachable or faulted.
package openstack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"go.uber.org/zap"

	"github.com/jandubois/infraprobe/internal/probe"
)

// Session holds the ambient credentials for the control-plane probes. It is
// built once by the caller and handed to the probes explicitly.
type Session struct {
	Options gophercloud.AuthOptions
	Region  string
	Log     *zap.Logger
}

// SessionFromEnv reads OS_* credentials from the environment.
func SessionFromEnv(region string, log *zap.Logger) (*Session, error) {
	opts, err := openstack.AuthOptionsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("openstack credentials: %w", err)
	}
	opts.AllowReauth = true
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{Options: opts, Region: region, Log: log}, nil
}

// authenticate returns an authenticated provider whose requests use ctx.
func (s *Session) authenticate(ctx context.Context) (*gophercloud.ProviderClient, error) {
	provider, err := openstack.NewClient(s.Options.IdentityEndpoint)
	if err != nil {
		return nil, fmt.Errorf("identity client: %w", err)
	}
	provider.Context = ctx
	if err := openstack.Authenticate(provider, s.Options); err != nil {
		return nil, &AuthError{Err: err}
	}
	return provider, nil
}

// AuthError is a failure to obtain a token from the identity service. It is
// never reported as the probed API being down.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authenticate: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// serviceClient uses the catalog endpoint unless an override address is given.
func (s *Session) serviceClient(provider *gophercloud.ProviderClient, serviceType, override string, resourcePath string,
	fromCatalog func(*gophercloud.ProviderClient, gophercloud.EndpointOpts) (*gophercloud.ServiceClient, error)) (*gophercloud.ServiceClient, error) {
	if override == "" {
		sc, err := fromCatalog(provider, gophercloud.EndpointOpts{Region: s.Region})
		if err != nil {
			return nil, fmt.Errorf("%s endpoint: %w", serviceType, err)
		}
		return sc, nil
	}
	return &gophercloud.ServiceClient{
		ProviderClient: provider,
		Endpoint:       override,
		ResourceBase:   override + resourcePath,
		Type:           serviceType,
	}, nil
}

// Endpoint formats the override URL for ip, or returns "" if ip is not set.
func Endpoint(ip netip.Addr, port int, path string) string {
	if !ip.IsValid() {
		return ""
	}
	return fmt.Sprintf("http://%s/%s", netip.AddrPortFrom(ip, uint16(port)), path)
}

// Reach classifies the result of connecting to an API. Transport failures and
// HTTP status errors from the API mean the service is down; authentication
// failures and any other error are faults.
func Reach[T any](handle T, err error) probe.Reachability[T] {
	var authErr *AuthError
	switch {
	case err == nil:
		return probe.Ready(handle)
	case errors.As(err, &authErr):
		return probe.Fault[T](err)
	case IsClientError(err):
		return probe.Unreachable[T](probe.SourceUnreachable(err))
	default:
		return probe.Fault[T](err)
	}
}

// statusCoder is implemented by every gophercloud HTTP status error.
type statusCoder interface {
	GetStatusCode() int
}

// IsClientError reports whether err came from talking to the API, as
// opposed to local configuration or programming errors.
func IsClientError(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
