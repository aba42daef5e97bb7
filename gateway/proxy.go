package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-simulation-admin/shared/logging"
	"github.com/pavitra93/go-simulation-admin/shared/middleware"
	"github.com/pavitra93/go-simulation-admin/shared/utils"
)

// hopHeaders are not forwarded in either direction.
var hopHeaders = map[string]struct{}{
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
	"Content-Length":    {},
}

// ServiceClient forwards requests to one upstream service
type ServiceClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
}

// ServiceClients holds all service clients
type ServiceClients struct {
	Admin      *ServiceClient
	Simulation *ServiceClient
}

// NewServiceClient creates a new service client
func NewServiceClient(name, baseURL string, log logrus.FieldLogger) *ServiceClient {
	return &ServiceClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: utils.NewCircuitBreaker(name, 5, 30*time.Second, log),
	}
}

// errUpstream marks responses that count as upstream failures.
var errUpstream = errors.New("upstream failure")

// ProxyRequest proxies requests to the upstream service
func (sc *ServiceClient) ProxyRequest(c *gin.Context) {
	targetURL := sc.baseURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	var body io.Reader
	if c.Request.Body != nil {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			utils.BadRequestResponse(c, "Failed to read request body")
			return
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, body)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create request")
		return
	}
	copyHeaders(req.Header, c.Request.Header)
	if id := c.Writer.Header().Get(middleware.HeaderRequestID); id != "" {
		req.Header.Set(middleware.HeaderRequestID, id)
	}

	var (
		status  int
		header  http.Header
		payload []byte
	)
	err = sc.breaker.Call(func() error {
		resp, err := sc.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		status, header = resp.StatusCode, resp.Header
		if status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s returned %d", errUpstream, sc.name, status)
		}
		return nil
	})

	switch {
	case errors.Is(err, utils.ErrCircuitOpen):
		utils.ServiceUnavailableResponse(c, sc.name+" is unavailable")
		return
	case err != nil && !errors.Is(err, errUpstream):
		logging.FromContext(c.Request.Context()).WithError(err).WithField("upstream", sc.name).Error("Proxy request failed")
		utils.ErrorResponse(c, http.StatusBadGateway, "Failed to communicate with service")
		return
	}

	copyHeaders(c.Writer.Header(), header)
	c.Data(status, header.Get("Content-Type"), payload)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(key)]; hop {
			continue
		}
		dst.Del(key)
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// HealthCheck checks if a service is healthy
func (sc *ServiceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	return nil
}

// GetServiceStatus returns the status of all services
func (scs *ServiceClients) GetServiceStatus(ctx context.Context) map[string]interface{} {
	status := make(map[string]interface{})
	for _, sc := range []*ServiceClient{scs.Admin, scs.Simulation} {
		entry := map[string]interface{}{
			"healthy": true,
			"circuit": sc.breaker.State(),
		}
		if err := sc.HealthCheck(ctx); err != nil {
			entry["healthy"] = false
			entry["error"] = err.Error()
		}
		status[sc.name] = entry
	}
	return status
}
