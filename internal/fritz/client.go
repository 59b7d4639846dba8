// Package fritz provides a TR-064 client for FRITZ!Box devices. It loads
// the device's service description once at startup and then executes named
// remote procedure calls (service/action pairs) over SOAP, returning the
// response arguments as a string map.
package fritz

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/paketb0te/fritzbox-exporter/internal/errors"
)

const (
	// DefaultPort is the TR-064 HTTP port of a FRITZ!Box.
	DefaultPort = 49000

	descriptionPath = "/tr64desc.xml"
)

// Values holds the named output arguments of one remote call.
type Values map[string]string

// Client is a TR-064 client for a single device. It is safe for use from
// multiple goroutines once Connect has succeeded.
type Client struct {
	base     *url.URL
	username string
	password string
	http     *http.Client

	mu       sync.RWMutex
	services []service
}

// service is one entry of the device's service description.
type service struct {
	Type       string
	ID         string
	ControlURL string
}

// NewClient creates a client for the device at address (host or host:port).
// Credentials are used to answer the device's digest challenges; the session
// is established by Connect and reused for all subsequent calls.
func NewClient(address, username, password string) *Client {
	host := address
	if !strings.Contains(host, ":") {
		host = fmt.Sprintf("%s:%d", host, DefaultPort)
	}

	return &Client{
		base:     &url.URL{Scheme: "http", Host: host},
		username: username,
		password: password,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// Connect loads the device's service description and verifies the
// credentials with one authenticated call. It must succeed before polling
// starts; a failure here is fatal to the exporter.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.loadDescription(ctx); err != nil {
		return fmt.Errorf("loading device description: %w", err)
	}

	if _, err := c.Call(ctx, "DeviceInfo1", "GetInfo"); err != nil {
		return fmt.Errorf("verifying credentials: %w", err)
	}

	return nil
}

// Call executes one remote procedure call and returns its output arguments.
// serviceName may be the full service URN, the short form of the service ID
// (for example WANCommonIFC1), or the type name with version (for example
// WANCommonInterfaceConfig1).
func (c *Client) Call(ctx context.Context, serviceName, action string) (Values, error) {
	svc, err := c.resolveService(serviceName)
	if err != nil {
		return nil, errors.CallError{Service: serviceName, Action: action, Underlying: err}
	}

	resp, err := c.post(ctx, svc, action)
	if err != nil {
		return nil, errors.CallError{Service: serviceName, Action: action, Underlying: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.CallError{
			Service:    serviceName,
			Action:     action,
			StatusCode: resp.StatusCode,
			Underlying: parseSOAPFault(resp.Body),
		}
	}

	vals, err := parseSOAPResponse(resp.Body, action)
	if err != nil {
		return nil, errors.CallError{Service: serviceName, Action: action, Underlying: err}
	}

	return vals, nil
}

// post sends the SOAP request, answering a digest challenge once if the
// device demands authentication.
func (c *Client) post(ctx context.Context, svc service, action string) (*http.Response, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: svc.ControlURL})
	body := soapEnvelope(svc.Type, action)

	newRequest := func(auth string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
		req.Header.Set("SoapAction", fmt.Sprintf("%s#%s", svc.Type, action))
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		return req, nil
	}

	req, err := newRequest("")
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || c.username == "" {
		return resp, nil
	}

	ch, err := parseChallenge(resp.Header.Get("WWW-Authenticate"))
	drainAndClose(resp)
	if err != nil {
		return nil, err
	}

	auth, err := ch.authorize(http.MethodPost, endpoint.Path, c.username, c.password)
	if err != nil {
		return nil, err
	}

	req, err = newRequest(auth)
	if err != nil {
		return nil, err
	}

	return c.http.Do(req)
}

// loadDescription fetches and parses tr64desc.xml, collecting the services
// of the root device and all embedded devices.
func (c *Client) loadDescription(ctx context.Context) error {
	descURL := c.base.ResolveReference(&url.URL{Path: descriptionPath})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, descURL.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("device description request returned status %d", resp.StatusCode)
	}

	var desc xmlDescription
	if err := xml.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return fmt.Errorf("parsing device description: %w", err)
	}

	services := collectServices(desc.Device, nil)
	if len(services) == 0 {
		return fmt.Errorf("device description lists no services")
	}

	c.mu.Lock()
	c.services = services
	c.mu.Unlock()

	return nil
}

// resolveService maps a configured service name to a described service.
func (c *Client) resolveService(name string) (service, error) {
	c.mu.RLock()
	services := c.services
	c.mu.RUnlock()

	if len(services) == 0 {
		return service{}, fmt.Errorf("device description not loaded")
	}

	for _, svc := range services {
		if matchesService(svc, name) {
			return svc, nil
		}
	}

	return service{}, fmt.Errorf("service %q not offered by device", name)
}

func matchesService(svc service, name string) bool {
	if strings.EqualFold(svc.Type, name) {
		return true
	}

	// Short form of the service ID: urn:...:serviceId:WANCommonIFC1.
	if i := strings.LastIndex(svc.ID, ":"); i >= 0 && strings.EqualFold(svc.ID[i+1:], name) {
		return true
	}

	// Type name with version: urn:dslforum-org:service:<Name>:<Ver> matches
	// <Name><Ver>, <Name>:<Ver> and, for version 1, plain <Name>.
	parts := strings.Split(svc.Type, ":")
	if len(parts) < 5 {
		return false
	}
	typeName, version := parts[len(parts)-2], parts[len(parts)-1]

	switch {
	case strings.EqualFold(typeName+version, name):
		return true
	case strings.EqualFold(typeName+":"+version, name):
		return true
	case version == "1" && strings.EqualFold(typeName, name):
		return true
	}
	return false
}

type xmlDescription struct {
	XMLName xml.Name  `xml:"root"`
	Device  xmlDevice `xml:"device"`
}

type xmlDevice struct {
	Services []xmlService `xml:"serviceList>service"`
	Devices  []xmlDevice  `xml:"deviceList>device"`
}

type xmlService struct {
	Type       string `xml:"serviceType"`
	ID         string `xml:"serviceId"`
	ControlURL string `xml:"controlURL"`
}

func collectServices(dev xmlDevice, acc []service) []service {
	for _, s := range dev.Services {
		acc = append(acc, service{
			Type:       strings.TrimSpace(s.Type),
			ID:         strings.TrimSpace(s.ID),
			ControlURL: strings.TrimSpace(s.ControlURL),
		})
	}
	for _, sub := range dev.Devices {
		acc = collectServices(sub, acc)
	}
	return acc
}
