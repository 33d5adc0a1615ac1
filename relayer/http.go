package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/sdkerrors"
)

const maxResponseSize = 1 << 20

var retryableStatusCodes = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// HTTPClient implements Relayer and StatusChecker over the relayer REST API.
// Relay requests are never retried since they may already be submitted,
// status requests are retried with exponential backoff.
type HTTPClient struct {
	baseURL       string
	client        *http.Client
	statusRetries uint64
	logger        logging.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, statusRetries uint64, logger logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		statusRetries: statusRetries,
		logger:        logger,
	}
}

func (c *HTTPClient) Relay(ctx context.Context, req Request) (Response, error) {
	defer ObserveDuration("relay")()

	body, err := MarshalRequest(req)
	if err != nil {
		return nil, err
	}
	// Once sent the operation may be submitted, so the caller can't abort it
	// midway. The client timeout still bounds the request.
	httpReq, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, c.baseURL+"/relay", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("can't create relay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	status, data, err := c.do(httpReq)
	if err != nil {
		RequestResults.WithLabelValues("relay", "network_error").Inc()
		return nil, &sdkerrors.NetworkError{Cause: err}
	}
	RequestResults.WithLabelValues("relay", strconv.Itoa(status)).Inc()

	res, decodeErr := DecodeResponse(data)
	if status >= 300 {
		if decodeErr == nil {
			if _, ok := res.(*UnknownResponse); !ok {
				return res, nil
			}
		}
		return nil, &sdkerrors.RelayerError{
			Message: "relay request rejected",
			Cause:   &HTTPError{StatusCode: status, Method: http.MethodPost, URL: httpReq.URL.String(), Body: string(data)},
		}
	}
	return res, decodeErr
}

func (c *HTTPClient) Status(ctx context.Context, operationID string) (*Status, error) {
	defer ObserveDuration("status")()

	u := c.baseURL + "/operations/" + url.PathEscape(operationID)
	var res *Status
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		status, data, err := c.do(httpReq)
		if err != nil {
			RequestResults.WithLabelValues("status", "network_error").Inc()
			return &sdkerrors.NetworkError{Cause: err}
		}
		RequestResults.WithLabelValues("status", strconv.Itoa(status)).Inc()
		if status >= 300 {
			httpErr := &HTTPError{StatusCode: status, Method: http.MethodGet, URL: u, Body: string(data)}
			if retryableStatusCodes[status] {
				return &sdkerrors.NetworkError{Cause: httpErr}
			}
			return backoff.Permanent(&sdkerrors.RelayerError{Message: "status request rejected", Cause: httpErr})
		}
		res = new(Status)
		if err = json.Unmarshal(data, res); err != nil {
			return backoff.Permanent(&sdkerrors.RelayerError{Message: "can't decode status response", Cause: err})
		}
		if res.OperationID == "" {
			res.OperationID = operationID
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second
	notify := func(err error, d time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"operation_id": operationID,
			"retry_in":     d,
		}).WithError(err).Warn("relayer status request failed, retrying")
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(expBackoff, c.statusRetries), ctx), notify)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *HTTPClient) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("can't read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}
