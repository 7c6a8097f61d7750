// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSClient is Client for accessing Google Cloud Storage.
type GCSClient struct {
	*storage.Client
}

// NewObjectHandle returns a handle to a specified object in the
// storage engine.
func (c GCSClient) NewObjectHandle(bucket, object string) ObjectHandle {
	return gcsObjectHandle{c.Bucket(bucket).Object(object)}
}

type gcsObjectHandle struct {
	*storage.ObjectHandle
}

func (h gcsObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return h.ObjectHandle.NewRangeReader(ctx, offset, length)
}

func (h gcsObjectHandle) Attrs(ctx context.Context) (ObjectAttrs, error) {
	attrs, err := h.ObjectHandle.Attrs(ctx)
	if err != nil {
		return ObjectAttrs{}, err
	}
	return ObjectAttrs{Size: attrs.Size, Updated: attrs.Updated}, nil
}

var (
	defaultStorageClient    *storage.Client
	defaultStorageClientErr error
	initializeDefaultClient sync.Once
)

// NewDefaultClient returns a storage client that uses the application default
// credentials.  It caches the storage client for efficiency.
func NewDefaultClient(ctx context.Context) (Client, error) {
	initializeDefaultClient.Do(func() {
		defaultStorageClient, defaultStorageClientErr = storage.NewClient(context.Background())
	})
	if defaultStorageClientErr != nil {
		return nil, fmt.Errorf("creating default storage client: %v", defaultStorageClientErr)
	}
	return GCSClient{defaultStorageClient}, nil
}

// NewPublicClient returns a storage client that does not use any form of
// client authorization.  It can only be used to read publicly-readable
// objects.
func NewPublicClient(ctx context.Context) (Client, error) {
	client, err := storage.NewClient(ctx, option.WithHTTPClient(http.DefaultClient))
	if err != nil {
		return nil, fmt.Errorf("creating public storage client: %v", err)
	}
	return GCSClient{client}, nil
}

// NewClientFromToken constructs a storage client that authenticates with an
// OAuth2 access token.
func NewClientFromToken(ctx context.Context, accessToken string) (Client, error) {
	token := oauth2.Token{
		TokenType:   "Bearer",
		AccessToken: accessToken,
	}
	client, err := storage.NewClient(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&token)))
	if err != nil {
		return nil, fmt.Errorf("creating client with token source: %v", err)
	}
	return GCSClient{client}, nil
}

// newStorageError maps storage errors onto the os package errors so callers
// can handle local and remote files alike.
func newStorageError(context string, err error) error {
	if err == storage.ErrObjectNotExist || err == storage.ErrBucketNotExist {
		return fmt.Errorf("%s: %w", context, os.ErrNotExist)
	}
	if err, ok := err.(*googleapi.Error); ok {
		switch err.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %v: %w", context, err, os.ErrPermission)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", context, os.ErrNotExist)
		}
	}
	return fmt.Errorf("%s: %v", context, err)
}
