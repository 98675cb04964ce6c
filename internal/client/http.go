package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	api "github.com/racksync/racksync/api/v1alpha1"
	"github.com/racksync/racksync/internal/config"
)

const (
	maxAttempts = 3
	retryDelay  = 500 * time.Millisecond
)

// TransportError reports that the remote API was unreachable or
// answered with a server error after the bounded retries were
// exhausted. It is fatal for the whole run.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport failure in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport failure in %s: status %d", e.Op, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

var _ Inventory = (*inventoryClient)(nil)

// inventoryClient talks JSON REST to the remote inventory API.
// Create-or-update calls are keyed by stable identities, so retrying
// them on transport failures is safe.
type inventoryClient struct {
	base   string
	token  string
	client *http.Client
	log    *zap.SugaredLogger
}

// NewFromConfig returns an Inventory client for the configured remote
// service.
func NewFromConfig(cfg *config.Config) (Inventory, error) {
	if _, err := url.Parse(cfg.Service.Server); err != nil {
		return nil, errors.Wrap(err, "parsing service URL")
	}
	return &inventoryClient{
		base:  cfg.Service.Server,
		token: cfg.Service.Token,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
		log: zap.S().Named("client"),
	}, nil
}

// do issues one request with bounded retries on network errors and
// 5xx responses. 4xx responses are never retried.
func (c *inventoryClient) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "%s: encoding request", op)
		}
	}

	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return &TransportError{Op: op, Err: ctx.Err()}
			case <-time.After(retryDelay * time.Duration(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Token "+c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warnf("%s attempt %d/%d failed: %v", op, attempt, maxAttempts, err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode >= 500:
			lastErr = errors.Errorf("server error: %s", resp.Status)
			c.log.Warnf("%s attempt %d/%d: %s", op, attempt, maxAttempts, resp.Status)
			continue
		case resp.StatusCode == http.StatusNotFound:
			return errNotFound
		case resp.StatusCode >= 400:
			return errors.Errorf("%s: %s: %s", op, resp.Status, string(respBody))
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return errors.Wrapf(err, "%s: decoding response", op)
			}
		}
		return nil
	}

	return &TransportError{Op: op, Err: lastErr}
}

var errNotFound = errors.New("not found")

// find wraps list-style lookups that return at most one record.
func findOne[T any](c *inventoryClient, ctx context.Context, op, path string, query url.Values) (*T, error) {
	var results []T
	if err := c.do(ctx, op, http.MethodGet, path, query, nil, &results); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func (c *inventoryClient) FindDeviceType(ctx context.Context, manufacturer, model string) (*api.DeviceType, error) {
	q := url.Values{"manufacturer": {manufacturer}, "model": {model}}
	return findOne[api.DeviceType](c, ctx, "find device type", "/api/v1/device-types", q)
}

func (c *inventoryClient) CreateDeviceType(ctx context.Context, dt api.DeviceType) (*api.DeviceType, error) {
	var out api.DeviceType
	if err := c.do(ctx, "create device type", http.MethodPost, "/api/v1/device-types", nil, dt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *inventoryClient) FindDevice(ctx context.Context, manufacturer, model, serial, site string) (*api.Device, error) {
	q := url.Values{"manufacturer": {manufacturer}, "model": {model}, "serial": {serial}}
	if site != "" {
		q.Set("site", site)
	}
	return findOne[api.Device](c, ctx, "find device", "/api/v1/devices", q)
}

func (c *inventoryClient) FindDeviceByName(ctx context.Context, name string) (*api.Device, error) {
	return findOne[api.Device](c, ctx, "find device by name", "/api/v1/devices", url.Values{"name": {name}})
}

func (c *inventoryClient) CreateDevice(ctx context.Context, d api.Device) (*api.Device, error) {
	var out api.Device
	if err := c.do(ctx, "create device", http.MethodPost, "/api/v1/devices", nil, d, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *inventoryClient) UpdateDevice(ctx context.Context, d api.Device) (*api.Device, error) {
	var out api.Device
	if err := c.do(ctx, "update device", http.MethodPatch, "/api/v1/devices/"+d.ID.String(), nil, d, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *inventoryClient) ListInterfaces(ctx context.Context, deviceID uuid.UUID) ([]api.Interface, error) {
	var out []api.Interface
	q := url.Values{"device": {deviceID.String()}}
	if err := c.do(ctx, "list interfaces", http.MethodGet, "/api/v1/interfaces", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inventoryClient) GetInterface(ctx context.Context, id uuid.UUID) (*api.Interface, error) {
	var out api.Interface
	if err := c.do(ctx, "get interface", http.MethodGet, "/api/v1/interfaces/"+id.String(), nil, nil, &out); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (c *inventoryClient) CreateInterface(ctx context.Context, iface api.Interface) (*api.Interface, error) {
	var out api.Interface
	if err := c.do(ctx, "create interface", http.MethodPost, "/api/v1/interfaces", nil, iface, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *inventoryClient) UpdateInterface(ctx context.Context, iface api.Interface) (*api.Interface, error) {
	var out api.Interface
	if err := c.do(ctx, "update interface", http.MethodPatch, "/api/v1/interfaces/"+iface.ID.String(), nil, iface, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *inventoryClient) FindIPAddresses(ctx context.Context, address string) ([]api.IPAddress, error) {
	var out []api.IPAddress
	q := url.Values{"address": {address}}
	if err := c.do(ctx, "find ip addresses", http.MethodGet, "/api/v1/ip-addresses", q, nil, &out); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (c *inventoryClient) CreateIPAddress(ctx context.Context, ip api.IPAddress) (*api.IPAddress, error) {
	var out api.IPAddress
	if err := c.do(ctx, "create ip address", http.MethodPost, "/api/v1/ip-addresses", nil, ip, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *inventoryClient) UpdateIPAddress(ctx context.Context, ip api.IPAddress) (*api.IPAddress, error) {
	var out api.IPAddress
	if err := c.do(ctx, "update ip address", http.MethodPatch, "/api/v1/ip-addresses/"+ip.ID.String(), nil, ip, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *inventoryClient) ListInventory(ctx context.Context, deviceID uuid.UUID) ([]api.InventoryItem, error) {
	var out []api.InventoryItem
	q := url.Values{"device": {deviceID.String()}}
	if err := c.do(ctx, "list inventory", http.MethodGet, "/api/v1/inventory-items", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inventoryClient) CreateInventoryItem(ctx context.Context, item api.InventoryItem) (*api.InventoryItem, error) {
	var out api.InventoryItem
	if err := c.do(ctx, "create inventory item", http.MethodPost, "/api/v1/inventory-items", nil, item, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *inventoryClient) UpdateInventoryItem(ctx context.Context, item api.InventoryItem) (*api.InventoryItem, error) {
	var out api.InventoryItem
	if err := c.do(ctx, "update inventory item", http.MethodPatch, "/api/v1/inventory-items/"+item.ID.String(), nil, item, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *inventoryClient) FindCable(ctx context.Context, aID, bID uuid.UUID) (*api.Cable, error) {
	q := url.Values{"interface_a": {aID.String()}, "interface_b": {bID.String()}}
	return findOne[api.Cable](c, ctx, "find cable", "/api/v1/cables", q)
}

func (c *inventoryClient) CreateCable(ctx context.Context, cable api.Cable) (*api.Cable, error) {
	var out api.Cable
	if err := c.do(ctx, "create cable", http.MethodPost, "/api/v1/cables", nil, cable, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
