// Package salesforce queries CRM records through the Salesforce REST API after a SOAP
// username/password login.
package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fr0stylo/photomigrate/internal/app/ports"
)

const (
	DefaultDomain     = "login"
	DefaultAPIVersion = "59.0"
)

// ErrLoginFailed wraps SOAP faults and unusable login responses.
var ErrLoginFailed = errors.New("salesforce login failed")

// Config holds the credentials and endpoint selection for a Client.
type Config struct {
	Username      string
	Password      string
	SecurityToken string
	// Domain is "login", "test" or a My Domain prefix such as "acme.my".
	Domain     string
	APIVersion string
	// LoginURL overrides the https://<domain>.salesforce.com base.
	LoginURL   string
	HTTPClient *http.Client
}

// Client implements ports.RecordQuerier. It logs in lazily on first use.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	instanceURL string
	sessionID   string
}

var _ ports.RecordQuerier = (*Client)(nil)

func New(cfg Config) *Client {
	cfg.Domain = strings.TrimSpace(cfg.Domain)
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	cfg.APIVersion = strings.TrimPrefix(strings.TrimSpace(cfg.APIVersion), "v")
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

func (c *Client) loginBase() string {
	if base := strings.TrimRight(strings.TrimSpace(c.cfg.LoginURL), "/"); base != "" {
		return base
	}
	return "https://" + c.cfg.Domain + ".salesforce.com"
}

type loginEnvelope struct {
	Body struct {
		LoginResponse struct {
			Result struct {
				ServerURL string `xml:"serverUrl"`
				SessionID string `xml:"sessionId"`
			} `xml:"result"`
		} `xml:"loginResponse"`
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

// Login opens a session. It is called implicitly by QueryAll.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	body, err := loginRequestBody(c.cfg.Username, c.cfg.Password+c.cfg.SecurityToken)
	if err != nil {
		return err
	}
	endpoint := c.loginBase() + "/services/Soap/u/" + c.cfg.APIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")
	req.Header.Set("SOAPAction", "login")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrLoginFailed, err)
	}
	var env loginEnvelope
	if err := xml.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: status %d: %s", ErrLoginFailed, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if fault := env.Body.Fault; fault != nil {
		return fmt.Errorf("%w: %s", ErrLoginFailed, strings.TrimSpace(fault.String))
	}
	result := env.Body.LoginResponse.Result
	if resp.StatusCode >= 300 || result.SessionID == "" {
		return fmt.Errorf("%w: status %d without session", ErrLoginFailed, resp.StatusCode)
	}
	serverURL, err := url.Parse(result.ServerURL)
	if err != nil || serverURL.Scheme == "" || serverURL.Host == "" {
		return fmt.Errorf("%w: invalid serverUrl %q", ErrLoginFailed, result.ServerURL)
	}

	c.instanceURL = serverURL.Scheme + "://" + serverURL.Host
	c.sessionID = result.SessionID
	return nil
}

func loginRequestBody(username, password string) ([]byte, error) {
	var user, pass bytes.Buffer
	if err := xml.EscapeText(&user, []byte(username)); err != nil {
		return nil, err
	}
	if err := xml.EscapeText(&pass, []byte(password)); err != nil {
		return nil, err
	}
	return []byte(`<?xml version="1.0" encoding="utf-8"?>` +
		`<env:Envelope xmlns:xsd="http://www.w3.org/2001/XMLSchema" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xmlns:env="http://schemas.xmlsoap.org/soap/envelope/" ` +
		`xmlns:urn="urn:partner.soap.sforce.com">` +
		`<env:Header><urn:CallOptions><urn:client>photomigrate</urn:client></urn:CallOptions></env:Header>` +
		`<env:Body><n1:login xmlns:n1="urn:partner.soap.sforce.com">` +
		`<n1:username>` + user.String() + `</n1:username>` +
		`<n1:password>` + pass.String() + `</n1:password>` +
		`</n1:login></env:Body></env:Envelope>`), nil
}

type queryPage struct {
	TotalSize      int            `json:"totalSize"`
	Done           bool           `json:"done"`
	NextRecordsURL string         `json:"nextRecordsUrl"`
	Records        []ports.Record `json:"records"`
}

type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// QueryAll runs soql and follows nextRecordsUrl until the result set is done.
func (c *Client) QueryAll(ctx context.Context, soql string) ([]ports.Record, error) {
	c.mu.Lock()
	if c.sessionID == "" {
		if err := c.loginLocked(ctx); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	instanceURL, sessionID := c.instanceURL, c.sessionID
	c.mu.Unlock()

	next := instanceURL + "/services/data/v" + c.cfg.APIVersion + "/query?q=" + url.QueryEscape(soql)
	var records []ports.Record
	for next != "" {
		page, err := c.fetchPage(ctx, next, sessionID)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		if page.Done || page.NextRecordsURL == "" {
			break
		}
		next = instanceURL + page.NextRecordsURL
	}
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, endpoint, sessionID string) (queryPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return queryPage{}, err
	}
	req.Header.Set("Authorization", "Bearer "+sessionID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return queryPage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return queryPage{}, fmt.Errorf("salesforce query failed: status %d: %s", resp.StatusCode, describeAPIError(payload))
	}
	// Number fields decode as json.Number, not float64.
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var page queryPage
	if err := dec.Decode(&page); err != nil {
		return queryPage{}, fmt.Errorf("decode query response: %w", err)
	}
	return page, nil
}

func describeAPIError(payload []byte) string {
	var errs []apiError
	if err := json.Unmarshal(payload, &errs); err == nil && len(errs) > 0 {
		parts := make([]string, 0, len(errs))
		for _, e := range errs {
			parts = append(parts, strings.TrimSpace(e.ErrorCode+": "+e.Message))
		}
		return strings.Join(parts, "; ")
	}
	return strings.TrimSpace(string(payload))
}
