package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	signingAlgorithm = "GOOG4-RSA-SHA256"
	maxSignedTTL     = 7 * 24 * time.Hour
	defaultSignedTTL = 15 * time.Minute
)

var errNoSigner = errors.New("gcs: signing requires service account credentials")

// ObjectKey builds the storage key for an upload: <root>/<subPath>/<uuid>-<filename>.
func ObjectKey(root, subPath, filename string) (string, error) {
	root = strings.Trim(root, "/")
	if root == "" {
		return "", errors.New("gcs: root is required")
	}
	name := sanitizeFilename(filename)
	if name == "" {
		return "", errors.New("gcs: filename is required")
	}
	parts := []string{root}
	if sp := strings.Trim(subPath, "/"); sp != "" {
		parts = append(parts, sp)
	}
	parts = append(parts, uuid.NewString()+"-"+name)
	return path.Join(parts...), nil
}

func sanitizeFilename(filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Upload stores r under a fresh key in the default bucket and returns that key.
func (c *Client) Upload(ctx context.Context, root, subPath, filename, contentType string, r io.Reader) (string, error) {
	if c == nil || c.tokenSource == nil {
		return "", errors.New("gcs client not initialized")
	}
	if r == nil {
		return "", errors.New("gcs: upload body is required")
	}
	key, err := ObjectKey(root, subPath, filename)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		c.apiBase(), url.PathEscape(c.defaultBucket), url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, r)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gcs upload %s: %w", key, err)
	}
	defer func() { closeBody(ctx, nil, resp.Body, "gcs: closing upload body failed") }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("gcs upload %s failed: %s: %s", key, resp.Status, strings.TrimSpace(string(b)))
	}
	return key, nil
}

// Delete removes key from the default bucket. Missing objects are not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c == nil || c.tokenSource == nil {
		return errors.New("gcs client not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("gcs: object key is required")
	}

	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", c.apiBase(), url.PathEscape(c.defaultBucket), url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gcs delete %s: %w", key, err)
	}
	defer func() { closeBody(ctx, nil, resp.Body, "gcs: closing delete body failed") }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("gcs delete %s failed: %s", key, resp.Status)
	}
}

// TemporaryURL returns a V4 signed GET URL for key that expires after ttl.
func (c *Client) TemporaryURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if c == nil || c.serviceAccount == nil || c.serviceAccount.privateKey == nil {
		return "", errNoSigner
	}
	if c.defaultBucket == "" {
		return "", errors.New("gcs bucket not configured")
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("gcs: object key is required")
	}
	if ttl < 0 {
		return "", errors.New("gcs: ttl must be positive")
	}
	if ttl == 0 {
		ttl = defaultSignedTTL
	}
	if ttl > maxSignedTTL {
		ttl = maxSignedTTL
	}

	now := c.clock().UTC()
	datestamp := now.Format("20060102")
	timestamp := now.Format("20060102T150405Z")
	scope := datestamp + "/auto/storage/goog4_request"

	query := url.Values{}
	query.Set("X-Goog-Algorithm", signingAlgorithm)
	query.Set("X-Goog-Credential", c.serviceAccount.clientEmail+"/"+scope)
	query.Set("X-Goog-Date", timestamp)
	query.Set("X-Goog-Expires", strconv.FormatInt(int64(ttl/time.Second), 10))
	query.Set("X-Goog-SignedHeaders", "host")

	canonicalPath := "/" + c.defaultBucket + "/" + escapeObjectPath(key)
	canonicalQuery := canonicalQueryString(query)
	canonicalRequest := strings.Join([]string{
		http.MethodGet,
		canonicalPath,
		canonicalQuery,
		"host:" + signedHost,
		"",
		"host",
		"UNSIGNED-PAYLOAD",
	}, "\n")

	requestHash := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		signingAlgorithm,
		timestamp,
		scope,
		hex.EncodeToString(requestHash[:]),
	}, "\n")

	digest := sha256.Sum256([]byte(stringToSign))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.serviceAccount.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("gcs: signing url: %w", err)
	}

	return "https://" + signedHost + canonicalPath + "?" + canonicalQuery + "&X-Goog-Signature=" + hex.EncodeToString(sig), nil
}

func escapeObjectPath(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// canonicalQueryString sorts by key and percent-encodes spaces as %20.
func canonicalQueryString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range values[k] {
			parts = append(parts, queryEscape(k)+"="+queryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
