package s3reader

import (
	"fmt"
	"strings"
)

// ParseURI parses an S3 URI in the format "s3://bucket/key".
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf(`S3 URI "%s" must start with s3://`, uri)
	}

	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf(`S3 URI "%s" must be in format s3://bucket/key`, uri)
	}

	return bucket, key, nil
}
