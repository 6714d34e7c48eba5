package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"crosschain-core/internal/config"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// KMSClient KMS service client
type KMSClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// KMSSignRequest asks the KMS to sign a 32-byte digest with the key behind an alias
type KMSSignRequest struct {
	KeyAlias string `json:"key_alias"`
	ChainID  string `json:"chain_id"`
	Digest   string `json:"digest"` // 0x-prefixed hex
}

// KMSSignResponse carries a 65-byte [R || S || V] signature in hex
type KMSSignResponse struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

// KMSGetKeysResponse KMS stored key listing
type KMSGetKeysResponse struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Keys    []KMSKeyInfo `json:"keys"`
	Error   string       `json:"error,omitempty"`
}

// KMSKeyInfo KMS key info
type KMSKeyInfo struct {
	KeyAlias      string    `json:"key_alias"`
	ChainID       string    `json:"chain_id"`
	PublicAddress string    `json:"public_address"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewKMSClient creates a KMS client
func NewKMSClient(cfg config.KMSConfig) *KMSClient {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &KMSClient{
		baseURL:   cfg.ServiceURL,
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SignDigest signs digest with the KMS key behind keyAlias
func (c *KMSClient) SignDigest(ctx context.Context, keyAlias string, chainID *big.Int, digest []byte) ([]byte, error) {
	req := KMSSignRequest{
		KeyAlias: keyAlias,
		ChainID:  chainID.String(),
		Digest:   hexutil.Encode(digest),
	}

	response, err := c.makeRequest(ctx, http.MethodPost, "/api/v1/sign", req)
	if err != nil {
		return nil, fmt.Errorf("KMS sign request failed: %w", err)
	}

	var signResp KMSSignResponse
	if err := json.Unmarshal(response, &signResp); err != nil {
		return nil, fmt.Errorf("parse KMS sign response failed: %w", err)
	}
	if !signResp.Success {
		return nil, fmt.Errorf("KMS sign failed: %s", signResp.Error)
	}

	signature, err := hexutil.Decode(signResp.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode KMS signature failed: %w", err)
	}
	return signature, nil
}

// GetStoredKeys lists the keys held by the KMS
func (c *KMSClient) GetStoredKeys(ctx context.Context) (*KMSGetKeysResponse, error) {
	response, err := c.makeRequest(ctx, http.MethodGet, "/api/v1/keys", nil)
	if err != nil {
		return nil, fmt.Errorf("get KMS keys failed: %w", err)
	}

	var keysResp KMSGetKeysResponse
	if err := json.Unmarshal(response, &keysResp); err != nil {
		return nil, fmt.Errorf("parse KMS keys response failed: %w", err)
	}
	if !keysResp.Success {
		return nil, fmt.Errorf("get KMS keys failed: %s", keysResp.Error)
	}

	return &keysResp, nil
}

// GetKeyByAlias finds the key registered for alias on chainID
func (c *KMSClient) GetKeyByAlias(ctx context.Context, keyAlias string, chainID *big.Int) (*KMSKeyInfo, error) {
	keysResp, err := c.GetStoredKeys(ctx)
	if err != nil {
		return nil, err
	}

	for _, key := range keysResp.Keys {
		if key.KeyAlias == keyAlias && key.ChainID == chainID.String() {
			return &key, nil
		}
	}

	return nil, fmt.Errorf("KMS key not found: alias=%s, chainID=%s", keyAlias, chainID)
}

// HealthCheck KMS service health
func (c *KMSClient) HealthCheck(ctx context.Context) error {
	response, err := c.makeRequest(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("KMS health check failed: %w", err)
	}

	var healthResp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(response, &healthResp); err != nil {
		return fmt.Errorf("parse KMS health response failed: %w", err)
	}
	if healthResp.Status != "healthy" {
		return fmt.Errorf("KMS service status: %s", healthResp.Status)
	}

	return nil
}

// makeRequest HTTP request
func (c *KMSClient) makeRequest(ctx context.Context, method, path string, data interface{}) ([]byte, error) {
	url := c.baseURL + path

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal request failed: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create HTTP request failed: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "crosschain-core/1.0")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
		req.Header.Set("X-Service-Name", "crosschain-core")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP request failed: status=%d, body=%s", resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}
