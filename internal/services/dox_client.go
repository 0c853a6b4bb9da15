package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nocvalidator/backend/internal/logger"
)

// DOXClient talks to an SAP Document Information Extraction style service:
// OAuth2 client-credentials token, tenant client provisioning, schema
// ensure, then upload → poll → fetch per chunk. It implements
// ExtractionClient; the pipeline never sees any of this.
type DOXClient struct {
	uaaURL       string
	baseURL      string
	clientID     string
	clientSecret string
	schemaName   string
	schemaPath   string
	cacheDir     string

	pollAttempts int
	pollInterval time.Duration

	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	doxClientID string
	schemaID    string
}

// NewDOXClientFromEnv builds the client from environment configuration.
// Returns an error when the required credentials are missing, so callers can
// refuse uploads instead of failing every job mid-flight.
func NewDOXClientFromEnv() (*DOXClient, error) {
	c := &DOXClient{
		uaaURL:       os.Getenv("UAA_URL"),
		baseURL:      strings.TrimRight(os.Getenv("DOX_BASE_URL"), "/"),
		clientID:     os.Getenv("CLIENT_ID"),
		clientSecret: os.Getenv("CLIENT_SECRET"),
		schemaName:   os.Getenv("DOX_SCHEMA_NAME"),
		schemaPath:   os.Getenv("DOX_SCHEMA_PATH"),
		cacheDir:     "output",
		pollAttempts: 60,
		pollInterval: 2 * time.Second,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
	}

	if c.schemaName == "" {
		c.schemaName = "noc_schema_custom_runtime_v2"
	}
	if v := os.Getenv("DOX_MAX_POLL_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.pollAttempts = n
		}
	}
	if v := os.Getenv("DOX_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.pollInterval = time.Duration(n) * time.Second
		}
	}

	if c.uaaURL == "" || c.baseURL == "" || c.clientID == "" || c.clientSecret == "" {
		return nil, fmt.Errorf("extraction service not configured: UAA_URL, DOX_BASE_URL, CLIENT_ID and CLIENT_SECRET are required")
	}
	return c, nil
}

// Upload implements ExtractionClient for a single chunk.
func (c *DOXClient) Upload(ctx context.Context, chunk []byte, label string) (ExtractionResult, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("token retrieval failed: %w", err)
	}

	doxClient, err := c.getOrCreateClient(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("client provisioning failed: %w", err)
	}

	schemaID, err := c.ensureSchema(ctx, token, doxClient)
	if err != nil {
		logger.Warn("Schema lookup failed, falling back to schema name", map[string]interface{}{"error": err.Error()})
	}

	jobID, err := c.submitDocument(ctx, token, doxClient, schemaID, chunk, label)
	if err != nil {
		return nil, err
	}
	logger.Info("Document submitted for extraction", map[string]interface{}{"doxJobID": jobID, "label": label})

	if err := c.pollJob(ctx, token, jobID); err != nil {
		return nil, err
	}

	return c.fetchResult(ctx, token, jobID)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *DOXClient) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uaaURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tr tokenResponse
	if err := c.doJSON(req, &tr); err != nil {
		return "", err
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("empty access token from UAA")
	}

	c.token = tr.AccessToken
	// Refresh a minute early; DOX tokens typically live for hours.
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

func (c *DOXClient) getOrCreateClient(ctx context.Context, token string) (string, error) {
	c.mu.Lock()
	cached := c.doxClientID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	if id := c.readCache("dox_client.json", "clientId"); id != "" {
		c.storeClientID(id)
		return id, nil
	}

	req, err := c.newJSONRequest(ctx, http.MethodGet, c.baseURL+"/clients?limit=10", token, nil)
	if err != nil {
		return "", err
	}
	var listResp struct {
		Payload []struct {
			ClientID string `json:"clientId"`
		} `json:"payload"`
	}
	if err := c.doJSON(req, &listResp); err == nil && len(listResp.Payload) > 0 {
		id := listResp.Payload[0].ClientID
		c.writeCache("dox_client.json", map[string]string{"clientId": id})
		c.storeClientID(id)
		return id, nil
	}

	newID := "noc_validator_client"
	body := map[string]interface{}{
		"value": []map[string]string{{
			"clientId":   newID,
			"clientName": "NOC Validator Client",
		}},
	}
	req, err = c.newJSONRequest(ctx, http.MethodPost, c.baseURL+"/clients", token, body)
	if err != nil {
		return "", err
	}
	var createResp struct {
		Payload []struct {
			ClientID string `json:"clientId"`
		} `json:"payload"`
	}
	if err := c.doJSON(req, &createResp); err != nil {
		return "", fmt.Errorf("client creation failed: %w", err)
	}
	if len(createResp.Payload) > 0 && createResp.Payload[0].ClientID != "" {
		newID = createResp.Payload[0].ClientID
	}

	c.writeCache("dox_client.json", map[string]string{"clientId": newID})
	c.storeClientID(newID)
	return newID, nil
}

func (c *DOXClient) storeClientID(id string) {
	c.mu.Lock()
	c.doxClientID = id
	c.mu.Unlock()
}

// ensureSchema resolves the schema id for the configured schema name,
// importing and activating the local schema file when the service does not
// know it yet. The id is cached on disk so restarts skip the round trips.
func (c *DOXClient) ensureSchema(ctx context.Context, token, doxClient string) (string, error) {
	c.mu.Lock()
	cached := c.schemaID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	if id := c.readCache("dox_schema.json", "schemaId"); id != "" {
		c.storeSchemaID(id)
		return id, nil
	}

	id, err := c.findSchema(ctx, token, doxClient)
	if err != nil {
		return "", err
	}
	if id == "" {
		if c.schemaPath == "" {
			return "", fmt.Errorf("schema %q not found and no local schema file configured", c.schemaName)
		}
		if err := c.importSchema(ctx, token, doxClient); err != nil {
			return "", err
		}
		if id, err = c.findSchema(ctx, token, doxClient); err != nil || id == "" {
			return "", fmt.Errorf("schema %q missing after import: %v", c.schemaName, err)
		}
		c.activateSchema(ctx, token, doxClient, id)
	}

	c.writeCache("dox_schema.json", map[string]string{"schemaId": id, "schemaName": c.schemaName})
	c.storeSchemaID(id)
	return id, nil
}

func (c *DOXClient) storeSchemaID(id string) {
	c.mu.Lock()
	c.schemaID = id
	c.mu.Unlock()
}

func (c *DOXClient) findSchema(ctx context.Context, token, doxClient string) (string, error) {
	endpoint := fmt.Sprintf("%s/schemas?clientId=%s", c.baseURL, url.QueryEscape(doxClient))
	req, err := c.newJSONRequest(ctx, http.MethodGet, endpoint, token, nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Schemas []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"schemas"`
	}
	if err := c.doJSON(req, &resp); err != nil {
		return "", err
	}
	for _, schema := range resp.Schemas {
		if schema.Name == c.schemaName {
			return schema.ID, nil
		}
	}
	return "", nil
}

func (c *DOXClient) importSchema(ctx context.Context, token, doxClient string) error {
	schemaBytes, err := os.ReadFile(c.schemaPath)
	if err != nil {
		return fmt.Errorf("reading schema file: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(c.schemaPath))
	if err != nil {
		return err
	}
	if _, err := part.Write(schemaBytes); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/schemas/import?clientId=%s&name=%s",
		c.baseURL, url.QueryEscape(doxClient), url.QueryEscape(c.schemaName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("schema import failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *DOXClient) activateSchema(ctx context.Context, token, doxClient, schemaID string) {
	endpoint := fmt.Sprintf("%s/schemas/%s/versions/1/activate?clientId=%s",
		c.baseURL, url.PathEscape(schemaID), url.QueryEscape(doxClient))
	req, err := c.newJSONRequest(ctx, http.MethodPost, endpoint, token, nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("Schema activation failed", map[string]interface{}{"error": err.Error()})
		return
	}
	resp.Body.Close()
}

func (c *DOXClient) submitDocument(ctx context.Context, token, doxClient, schemaID string, chunk []byte, label string) (string, error) {
	options := map[string]interface{}{
		"clientId":     doxClient,
		"documentType": "custom",
		"receivedDate": time.Now().UTC().Format("2006-01-02"),
	}
	if schemaID != "" {
		options["schemaId"] = schemaID
	} else {
		options["schemaName"] = c.schemaName
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", label+".pdf")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(chunk); err != nil {
		return "", err
	}
	if err := writer.WriteField("options", string(optionsJSON)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/document/jobs", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("document upload failed: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("extraction job id missing from upload response")
	}
	return resp.ID, nil
}

func (c *DOXClient) pollJob(ctx context.Context, token, jobID string) error {
	endpoint := fmt.Sprintf("%s/document/jobs/%s", c.baseURL, url.PathEscape(jobID))

	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err := c.newJSONRequest(ctx, http.MethodGet, endpoint, token, nil)
		if err != nil {
			return err
		}
		var resp struct {
			Status string `json:"status"`
		}
		if err := c.doJSON(req, &resp); err != nil {
			continue // transient poll error, retry
		}

		switch strings.ToUpper(resp.Status) {
		case "DONE":
			return nil
		case "FAILED", "ERROR":
			return fmt.Errorf("extraction service reported failure for job %s", jobID)
		}
	}
	return fmt.Errorf("timeout waiting for extraction of job %s", jobID)
}

func (c *DOXClient) fetchResult(ctx context.Context, token, jobID string) (ExtractionResult, error) {
	endpoint := fmt.Sprintf("%s/document/jobs/%s?extractedValues=true", c.baseURL, url.PathEscape(jobID))
	req, err := c.newJSONRequest(ctx, http.MethodGet, endpoint, token, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Extraction struct {
			HeaderFields []struct {
				Name       string      `json:"name"`
				Value      interface{} `json:"value"`
				Confidence float64     `json:"confidence"`
			} `json:"headerFields"`
		} `json:"extraction"`
	}
	if err := c.doJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("fetching extraction result: %w", err)
	}

	result := make(ExtractionResult, len(resp.Extraction.HeaderFields))
	for _, field := range resp.Extraction.HeaderFields {
		value := ""
		if field.Value != nil {
			value = fmt.Sprint(field.Value)
		}
		result[field.Name] = ExtractionField{
			Name:       field.Name,
			Value:      value,
			Confidence: field.Confidence,
		}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("extraction returned no fields for job %s", jobID)
	}
	return result, nil
}

func (c *DOXClient) newJSONRequest(ctx context.Context, method, endpoint, token string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *DOXClient) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request to %s failed with status %d: %s", req.URL.Path, resp.StatusCode, truncate(string(raw), 200))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *DOXClient) readCache(name, key string) string {
	raw, err := os.ReadFile(filepath.Join(c.cacheDir, name))
	if err != nil {
		return ""
	}
	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		return ""
	}
	return data[key]
}

func (c *DOXClient) writeCache(name string, data map[string]string) {
	if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
		return
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(c.cacheDir, name), raw, 0644)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
