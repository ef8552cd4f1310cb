// Package integrity verifies that a completed multipart upload's ETag
// matches what the uploaded parts should have produced, and classifies
// which S3-compatible provider an endpoint belongs to for logging.
package integrity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Provider identifies an S3-compatible storage backend by its endpoint,
// since ETag composition rules (notably multipart hash algorithm) can
// vary across providers.
type Provider string

const (
	ProviderAWS          Provider = "aws"
	ProviderMinIO        Provider = "minio"
	ProviderWasabi       Provider = "wasabi"
	ProviderBackblazeB2  Provider = "backblaze-b2"
	ProviderCloudflareR2 Provider = "cloudflare-r2"
	ProviderDOSpaces     Provider = "do-spaces"
	ProviderGeneric      Provider = "generic-s3"
)

// DetectProvider classifies endpoint by well-known hostname fragments.
// Self-hosted MinIO nodes (the common case for edges) rarely resolve to
// anything but ProviderGeneric or ProviderMinIO depending on naming.
func DetectProvider(endpoint string) Provider {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "amazonaws.com"):
		return ProviderAWS
	case strings.Contains(endpoint, "minio"):
		return ProviderMinIO
	case strings.Contains(endpoint, "wasabisys.com"):
		return ProviderWasabi
	case strings.Contains(endpoint, "backblazeb2.com"), strings.Contains(endpoint, "b2api.com"):
		return ProviderBackblazeB2
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return ProviderCloudflareR2
	case strings.Contains(endpoint, "digitaloceanspaces.com"):
		return ProviderDOSpaces
	default:
		return ProviderGeneric
	}
}

// CleanETag strips the surrounding quotes S3-compatible APIs wrap
// ETags in.
func CleanETag(etag string) string {
	return strings.TrimSpace(strings.Trim(etag, "\""))
}

// IsMultipartETag reports whether etag has the "<hash>-<partCount>"
// shape S3 uses for objects assembled from more than one part.
func IsMultipartETag(etag string) bool {
	return strings.Contains(CleanETag(etag), "-")
}

// CalculateMultipartETag reproduces S3's multipart ETag: the MD5 of the
// concatenated raw (not hex) part MD5s, hex-encoded and suffixed with
// the part count. partETags must be hex-encoded per-part MD5s in part
// order.
func CalculateMultipartETag(partETags []string) (string, error) {
	var concatenated []byte
	for _, hexETag := range partETags {
		raw, err := hex.DecodeString(CleanETag(hexETag))
		if err != nil {
			return "", fmt.Errorf("integrity: part etag %q is not hex-encoded: %w", hexETag, err)
		}
		concatenated = append(concatenated, raw...)
	}

	sum := md5.Sum(concatenated)
	return fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:]), len(partETags)), nil
}
