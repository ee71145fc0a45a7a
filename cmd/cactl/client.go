package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiClient はCAサービスAPIのHTTPクライアント。
type apiClient struct {
	baseURL string
	user    string
	http    *http.Client
}

func newAPIClient(baseURL, user string, httpClient *http.Client) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		http:    httpClient,
	}
}

// do はAPIを呼び出し、want 以外のステータスはエラーとして返す。
func (c *apiClient) do(method, path string, body any, want int) ([]byte, error) {
	if c.baseURL == "" {
		return nil, errors.New("--api-url is required (or set CACTL_API_URL)")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set("X-User", c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != want {
		return nil, handleErrorResponse(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// call はAPIを呼び出し、レスポンスを out にデコードする。
func (c *apiClient) call(method, path string, body any, want int, out any) ([]byte, error) {
	data, err := c.do(method, path, body, want)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
	}
	return data, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("%s (%s): %s", http.StatusText(statusCode), errResp.Code, errResp.Message)
	}
	return fmt.Errorf("server returned status %d", statusCode)
}
