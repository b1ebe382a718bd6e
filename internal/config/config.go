package config

import (
	"github.com/nguyengg/gogextract/zip/scan"
)

// HTTPConfig contains settings for downloading installers over HTTP.
type HTTPConfig struct {
	Token     string
	UserAgent string
}

// ForHTTP returns configuration from the [http] section.
func (l *Loader) ForHTTP() (c HTTPConfig) {
	sec := l.section("http")
	if sec == nil {
		return
	}

	c.Token = sec.Key("token").String()
	c.UserAgent = sec.Key("user-agent").String()
	return
}

// ForHTTP calls Loader.ForHTTP on the DefaultLoader instance.
func ForHTTP() HTTPConfig {
	return DefaultLoader.ForHTTP()
}

// S3Config contains settings for reading installers from S3.
type S3Config struct {
	AWSProfile          string
	ExpectedBucketOwner string
}

// ForS3 returns configuration from the [s3] section.
//
// Loader.Profile if non-empty overrides the configured profile.
func (l *Loader) ForS3() (c S3Config) {
	if sec := l.section("s3"); sec != nil {
		c.AWSProfile = sec.Key("profile").String()
		c.ExpectedBucketOwner = sec.Key("expected-bucket-owner").String()
	}

	if l.Profile != "" {
		c.AWSProfile = l.Profile
	}

	return
}

// ForS3 calls Loader.ForS3 on the DefaultLoader instance.
func ForS3() S3Config {
	return DefaultLoader.ForS3()
}

// IndexConfig contains settings for indexing installers.
type IndexConfig struct {
	Concurrency     int
	ScanMode        scan.Mode
	MaxTrailerBytes int64
}

// ForIndex returns configuration from the [index] section.
//
// Invalid values are ignored in favour of the defaults.
func (l *Loader) ForIndex() (c IndexConfig) {
	c = IndexConfig{Concurrency: 4, ScanMode: scan.Window, MaxTrailerBytes: scan.MaxTrailerSize}

	sec := l.section("index")
	if sec == nil {
		return
	}

	if v, err := sec.Key("concurrency").Int(); err == nil && v > 0 {
		c.Concurrency = v
	}
	if v := sec.Key("scan-mode").String(); v != "" {
		if m, err := scan.ParseMode(v); err == nil {
			c.ScanMode = m
		}
	}
	if v, err := sec.Key("max-trailer-bytes").Int64(); err == nil {
		c.MaxTrailerBytes = v
	}

	return
}

// ForIndex calls Loader.ForIndex on the DefaultLoader instance.
func ForIndex() IndexConfig {
	return DefaultLoader.ForIndex()
}

// SplitConfig contains settings for splitting installers.
type SplitConfig struct {
	// Output is the parent directory of the per-installer output directories.
	Output string
}

// ForSplit returns configuration from the [split] section.
func (l *Loader) ForSplit() (c SplitConfig) {
	if sec := l.section("split"); sec != nil {
		c.Output = sec.Key("output").String()
	}

	return
}

// ForSplit calls Loader.ForSplit on the DefaultLoader instance.
func ForSplit() SplitConfig {
	return DefaultLoader.ForSplit()
}
