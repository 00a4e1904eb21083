package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"polotno-studio/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const sitesPrefix = "hosting/sites/"

type siteRecord struct {
	core.Site
	Owner string `json:"owner"`
}

// hosting keeps the public site registry in the bucket, one object per subdomain.
type hosting struct {
	s3Client *s3.Client
	bucket   string
}

func NewHosting(client *s3.Client, bucketName string) *hosting {
	return &hosting{s3Client: client, bucket: bucketName}
}

func (h *hosting) List(ctx context.Context, owner string) ([]core.Site, error) {
	output, err := h.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(h.bucket),
		Prefix: aws.String(sitesPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	sites := make([]core.Site, 0)
	for _, object := range output.Contents {
		resp, err := h.s3Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(h.bucket),
			Key:    object.Key,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get site %s: %w", aws.ToString(object.Key), err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read site %s: %w", aws.ToString(object.Key), err)
		}

		var record siteRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		if record.Owner == owner {
			sites = append(sites, record.Site)
		}
	}
	return sites, nil
}

func (h *hosting) Create(ctx context.Context, owner, subdomain, dir string) (core.Site, error) {
	if owner == "" {
		return core.Site{}, core.ErrNotSignedIn
	}
	if subdomain == "" || strings.Contains(subdomain, "/") {
		return core.Site{}, fmt.Errorf("invalid subdomain %q", subdomain)
	}
	key := sitesPrefix + subdomain

	_, err := h.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return core.Site{}, fmt.Errorf("create %s: %w", subdomain, core.ErrSubdomainTaken)
	}
	if !isNotFound(err) {
		return core.Site{}, fmt.Errorf("failed to check site %s: %w", subdomain, err)
	}

	record := siteRecord{Site: core.Site{Subdomain: subdomain, Dir: dir}, Owner: owner}
	data, err := json.Marshal(record)
	if err != nil {
		return core.Site{}, err
	}
	_, err = h.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(h.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return core.Site{}, fmt.Errorf("failed to create site %s: %w", subdomain, err)
	}
	return record.Site, nil
}
