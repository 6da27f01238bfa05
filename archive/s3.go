/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 layout: one object per block, keyed by hash under Prefix. S3 has no
// concept of content-addressing itself, so the block hash doubles as the
// object key — convenient, since it also makes re-uploads of an already
// archived block idempotent no-ops in the happy path.
func init() {
	Registry["s3"] = func(raw json.RawMessage) (Archiver, error) {
		var cfg s3Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("archive: invalid s3 config: %w", err)
		}
		return newS3Archiver(cfg)
	}
}

type s3Config struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"` // custom endpoint for S3-compatible storage (MinIO, etc.)
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	ForcePathStyle  bool   `json:"force_path_style"`
}

type s3Archiver struct {
	cfg s3Config

	mu     sync.Mutex
	client *s3.Client
}

func newS3Archiver(cfg s3Config) (Archiver, error) {
	ctx := context.Background()

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &s3Archiver{cfg: cfg, client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

func (a *s3Archiver) key(hash string) string {
	if a.cfg.Prefix == "" {
		return hash
	}
	return a.cfg.Prefix + "/" + hash
}

func (a *s3Archiver) PutBlock(hash string, content []byte) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	_, err := client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(a.key(hash)),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", hash, err)
	}
	return nil
}

func (a *s3Archiver) Close() error { return nil }
