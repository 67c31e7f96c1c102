// Package cloudflare is a minimal Cloudflare API client for the DNS side
// of node registration. It covers exactly the record operations the fleet
// needs; pulling in a full SDK for four endpoints is not worth it.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

// Client talks to the Cloudflare v4 API.
type Client struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

// Record is a Cloudflare DNS record.
type Record struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl,omitempty"`
	Proxied bool   `json:"proxied"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type listResponse struct {
	Success    bool       `json:"success"`
	Errors     []apiError `json:"errors"`
	Result     []Record   `json:"result"`
	ResultInfo struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"result_info"`
}

type zoneResult struct {
	ID string `json:"id"`
}

// NewClient creates a client authenticated with the given API token.
func NewClient(apiToken string) *Client {
	return &Client{
		apiToken:   apiToken,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
}

// ZoneID resolves a zone name to its ID.
func (c *Client) ZoneID(ctx context.Context, zone string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/zones?name=%s", zone), nil)
	if err != nil {
		return "", err
	}

	var resp apiResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("get zone ID: %w", err)
	}

	var zones []zoneResult
	if err := json.Unmarshal(resp.Result, &zones); err != nil {
		return "", fmt.Errorf("parse zones: %w", err)
	}
	if len(zones) == 0 {
		return "", fmt.Errorf("no zone found for %s", zone)
	}
	return zones[0].ID, nil
}

// FindARecord returns the A record with the given FQDN, or nil.
func (c *Client) FindARecord(ctx context.Context, zoneID, fqdn string) (*Record, error) {
	req, err := c.newRequest(ctx, http.MethodGet,
		fmt.Sprintf("/zones/%s/dns_records?type=A&name=%s", zoneID, fqdn), nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("find A record %s: %w", fqdn, err)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}
	rec := resp.Result[0]
	return &rec, nil
}

// EnsureARecord creates or updates the A record fqdn -> address.
func (c *Client) EnsureARecord(ctx context.Context, zoneID, fqdn, address string) error {
	existing, err := c.FindARecord(ctx, zoneID, fqdn)
	if err != nil {
		return err
	}

	record := Record{Type: "A", Name: fqdn, Content: address, TTL: 300}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	var req *http.Request
	if existing == nil {
		req, err = c.newRequest(ctx, http.MethodPost,
			fmt.Sprintf("/zones/%s/dns_records", zoneID), bytes.NewReader(body))
	} else {
		if existing.Content == address {
			return nil
		}
		req, err = c.newRequest(ctx, http.MethodPut,
			fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, existing.ID), bytes.NewReader(body))
	}
	if err != nil {
		return err
	}

	var resp apiResponse
	if err := c.do(req, &resp); err != nil {
		return fmt.Errorf("ensure A record %s: %w", fqdn, err)
	}
	return nil
}

// DeleteARecord removes the A record with the given FQDN. A missing record
// is a no-op: destroy must be rerunnable.
func (c *Client) DeleteARecord(ctx context.Context, zoneID, fqdn string) error {
	existing, err := c.FindARecord(ctx, zoneID, fqdn)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodDelete,
		fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, existing.ID), nil)
	if err != nil {
		return err
	}

	var resp apiResponse
	if err := c.do(req, &resp); err != nil {
		return fmt.Errorf("delete A record %s: %w", fqdn, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}

	switch v := out.(type) {
	case *apiResponse:
		if !v.Success {
			return apiErrors(v.Errors)
		}
	case *listResponse:
		if !v.Success {
			return apiErrors(v.Errors)
		}
	}
	return nil
}

func apiErrors(errs []apiError) error {
	if len(errs) == 0 {
		return fmt.Errorf("api request failed")
	}
	return fmt.Errorf("api error %d: %s", errs[0].Code, errs[0].Message)
}
