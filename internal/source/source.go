// Package source opens spreadsheets to upload from local paths, s3:// objects or
// Azure blob SAS URLs.
package source

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tablerag/tablerag-client/internal/config"
	"github.com/tablerag/tablerag-client/internal/logging"
)

// Scheme tells where a reference points.
type Scheme string

const (
	SchemeLocal Scheme = "local"
	SchemeS3    Scheme = "s3"
	SchemeAzure Scheme = "azure"
)

const azureBlobHostSuffix = ".blob.core.windows.net"

// File is an opened upload source. Size is -1 when unknown.
type File struct {
	io.ReadCloser
	Name string
	Size int64
}

// S3Getter is the part of *s3.Client used here.
type S3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// BlobDownloader is the part of *azblob.Client used here.
type BlobDownloader interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// Resolver opens references. S3 and Azure clients are created on first use.
type Resolver struct {
	cfg        *config.Config
	httpClient *nethttp.Client
	logger     *logging.Logger

	mu sync.Mutex
	s3 S3Getter

	// newBlobDownloader builds a client for one SAS service URL.
	newBlobDownloader func(serviceURL string) (BlobDownloader, error)
}

// NewResolver creates a resolver. httpClient carries proxy settings to the cloud
// SDKs and may be nil.
func NewResolver(cfg *config.Config, httpClient *nethttp.Client, logger *logging.Logger) *Resolver {
	r := &Resolver{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logging.OrNop(logger),
	}
	r.newBlobDownloader = r.azureClient
	return r
}

// SetS3Client replaces the lazily built S3 client.
func (r *Resolver) SetS3Client(c S3Getter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s3 = c
}

// Classify returns the scheme of ref.
func Classify(ref string) Scheme {
	if strings.HasPrefix(ref, "s3://") {
		return SchemeS3
	}
	if strings.HasPrefix(ref, "https://") {
		if u, err := url.Parse(ref); err == nil && strings.HasSuffix(strings.ToLower(u.Hostname()), azureBlobHostSuffix) {
			return SchemeAzure
		}
	}
	return SchemeLocal
}

// Name returns the file name the server will see for ref, without opening it.
func Name(ref string) string {
	switch Classify(ref) {
	case SchemeS3, SchemeAzure:
		u, err := url.Parse(ref)
		if err != nil {
			return ""
		}
		return path.Base(strings.TrimSuffix(u.Path, "/"))
	default:
		return filepath.Base(ref)
	}
}

// Open opens ref for reading. The caller closes the returned file.
func (r *Resolver) Open(ctx context.Context, ref string) (*File, error) {
	switch Classify(ref) {
	case SchemeS3:
		return r.openS3(ctx, ref)
	case SchemeAzure:
		return r.openAzure(ctx, ref)
	default:
		return openLocal(ref)
	}
}

func openLocal(ref string) (*File, error) {
	f, err := os.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", ref, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", ref, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", ref)
	}
	return &File{ReadCloser: f, Name: filepath.Base(ref), Size: info.Size()}, nil
}

func (r *Resolver) openS3(ctx context.Context, ref string) (*File, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 reference %q: %w", ref, err)
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid S3 reference %q: want s3://bucket/key", ref)
	}

	client, err := r.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	r.logger.Debug().Str("bucket", bucket).Str("key", key).Int64("size", size).Msg("opened S3 object")
	return &File{ReadCloser: out.Body, Name: path.Base(key), Size: size}, nil
}

func (r *Resolver) s3Client(ctx context.Context) (S3Getter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s3 != nil {
		return r.s3, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if r.httpClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(r.httpClient))
	}
	if r.cfg != nil && r.cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(r.cfg.S3Region))
	}
	if r.cfg != nil && r.cfg.S3AccessKeyID != "" && r.cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			r.cfg.S3AccessKeyID,
			r.cfg.S3SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var endpoint string
	if r.cfg != nil {
		endpoint = r.cfg.S3Endpoint
	}
	r.s3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return r.s3, nil
}

func (r *Resolver) openAzure(ctx context.Context, ref string) (*File, error) {
	parts, err := azblob.ParseURL(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid Azure blob URL: %w", err)
	}
	if parts.ContainerName == "" || parts.BlobName == "" {
		return nil, fmt.Errorf("invalid Azure blob URL: want https://<account>%s/<container>/<blob>?<sas>", azureBlobHostSuffix)
	}

	serviceURL := (&url.URL{Scheme: parts.Scheme, Host: parts.Host, Path: "/", RawQuery: parts.SAS.Encode()}).String()
	client, err := r.newBlobDownloader(serviceURL)
	if err != nil {
		return nil, err
	}

	resp, err := client.DownloadStream(ctx, parts.ContainerName, parts.BlobName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s/%s: %w", parts.ContainerName, parts.BlobName, err)
	}

	size := int64(-1)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	r.logger.Debug().Str("container", parts.ContainerName).Str("blob", parts.BlobName).Int64("size", size).Msg("opened Azure blob")
	return &File{ReadCloser: resp.Body, Name: path.Base(parts.BlobName), Size: size}, nil
}

func (r *Resolver) azureClient(serviceURL string) (BlobDownloader, error) {
	opts := &azblob.ClientOptions{}
	if r.httpClient != nil {
		opts.ClientOptions = azcore.ClientOptions{
			Transport: r.httpClient, // keep proxy settings and connection pool
		}
	}
	client, err := azblob.NewClientWithNoCredential(serviceURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return client, nil
}
