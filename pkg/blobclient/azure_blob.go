package blobclient

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/yourorg/go-blob-kit/pkg/errors"
)

// AzureTransport implements Transport using Azure Blob Storage.
type AzureTransport struct {
	client *azblob.Client
}

// NewAzureTransport creates an Azure Blob Storage transport. No request is
// sent; credentials are only exercised by the first operation.
func NewAzureTransport(params ConnectionParams) (*AzureTransport, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	// Retries belong to the client's policy, not the SDK pipeline.
	clientOptions := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}

	serviceURL := params.ServiceURL()

	var client *azblob.Client
	var err error

	switch {
	case params.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(params.AccountName, params.AccountKey)
		if credErr != nil {
			return nil, errors.NewAppErrorWithErr(errors.ErrorCodeConfiguration, "invalid shared key credential", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, clientOptions)
	case params.SharedAccessSignature != "":
		client, err = azblob.NewClientWithNoCredential(serviceURL+"?"+params.SharedAccessSignature, clientOptions)
	default:
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, errors.NewAppErrorWithErr(errors.ErrorCodeConfiguration, "failed to create Azure credential", credErr)
		}
		client, err = azblob.NewClient(serviceURL, cred, clientOptions)
	}
	if err != nil {
		return nil, errors.NewAppErrorWithErr(errors.ErrorCodeConfiguration, "failed to create Azure blob client", err)
	}

	return &AzureTransport{client: client}, nil
}

// Download reads a blob, or one of its snapshots, fully into memory.
func (a *AzureTransport) Download(ctx context.Context, container, blobName, snapshotID string) (Blob, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(container).NewBlobClient(blobName)
	if snapshotID != "" {
		var err error
		blobClient, err = blobClient.WithSnapshot(snapshotID)
		if err != nil {
			return Blob{}, errors.NewAppErrorWithErr(errors.ErrorCodeValidation, "invalid snapshot id", err)
		}
	}

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return Blob{}, classifyAzureError(err, "failed to download blob")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return Blob{}, ctx.Err()
		}
		return Blob{}, errors.NewTransientError("failed to read blob body", err)
	}

	info := BlobInfo{Name: blobName, Size: int64(len(data))}
	if resp.ContentType != nil {
		info.ContentType = *resp.ContentType
	}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		info.LastModified = *resp.LastModified
	}
	return Blob{Data: data, Info: info}, nil
}

// Upload writes a block blob in a single request. Without Overwrite the
// request carries If-None-Match: * so an existing blob is left untouched.
func (a *AzureTransport) Upload(ctx context.Context, container, blobName string, data []byte, opts UploadOptions) (string, error) {
	blockBlobClient := a.client.ServiceClient().NewContainerClient(container).NewBlockBlobClient(blobName)

	uploadOptions := &blockblob.UploadOptions{}
	if opts.ContentType != "" {
		uploadOptions.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(opts.ContentType)}
	}
	if !opts.Overwrite {
		uploadOptions.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: to.Ptr(azcore.ETagAny)},
		}
	}

	resp, err := blockBlobClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), uploadOptions)
	if err != nil {
		return "", classifyAzureError(err, "failed to upload blob")
	}

	if resp.ETag == nil {
		return "", nil
	}
	return string(*resp.ETag), nil
}

// CreateSnapshot snapshots a blob, guarded by If-Match when ifMatch is set.
func (a *AzureTransport) CreateSnapshot(ctx context.Context, container, blobName, ifMatch string) (string, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(container).NewBlobClient(blobName)

	var snapshotOptions *blob.CreateSnapshotOptions
	if ifMatch != "" {
		snapshotOptions = &blob.CreateSnapshotOptions{
			AccessConditions: &blob.AccessConditions{
				ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfMatch: to.Ptr(azcore.ETag(ifMatch))},
			},
		}
	}

	resp, err := blobClient.CreateSnapshot(ctx, snapshotOptions)
	if err != nil {
		return "", classifyAzureError(err, "failed to create snapshot")
	}
	if resp.Snapshot == nil {
		return "", errors.NewInternalError("service returned no snapshot id")
	}
	return *resp.Snapshot, nil
}

// Properties fetches a blob's metadata without its content.
func (a *AzureTransport) Properties(ctx context.Context, container, blobName string) (BlobInfo, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(container).NewBlobClient(blobName)

	resp, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return BlobInfo{}, classifyAzureError(err, "failed to get blob properties")
	}

	info := BlobInfo{Name: blobName}
	if resp.ContentLength != nil {
		info.Size = *resp.ContentLength
	}
	if resp.ContentType != nil {
		info.ContentType = *resp.ContentType
	}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		info.LastModified = *resp.LastModified
	}
	return info, nil
}

// Delete deletes a blob and all of its snapshots.
func (a *AzureTransport) Delete(ctx context.Context, container, blobName string) error {
	blobClient := a.client.ServiceClient().NewContainerClient(container).NewBlobClient(blobName)

	_, err := blobClient.Delete(ctx, &blob.DeleteOptions{
		DeleteSnapshots: to.Ptr(blob.DeleteSnapshotsOptionTypeInclude),
	})
	if err != nil {
		return classifyAzureError(err, "failed to delete blob")
	}
	return nil
}

// List lists base blobs in a container with optional prefix.
func (a *AzureTransport) List(ctx context.Context, container, prefix string) ([]BlobInfo, error) {
	listOptions := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		listOptions.Prefix = &prefix
	}

	pager := a.client.NewListBlobsFlatPager(container, listOptions)

	blobs := []BlobInfo{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyAzureError(err, "failed to list blobs")
		}

		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := BlobInfo{Name: *item.Name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				if item.Properties.ContentType != nil {
					info.ContentType = *item.Properties.ContentType
				}
				if item.Properties.ETag != nil {
					info.ETag = string(*item.Properties.ETag)
				}
				if item.Properties.LastModified != nil {
					info.LastModified = *item.Properties.LastModified
				}
			}
			blobs = append(blobs, info)
		}
	}

	return blobs, nil
}

// CreateContainer creates the container. An existing container is not an error.
func (a *AzureTransport) CreateContainer(ctx context.Context, container string) error {
	_, err := a.client.CreateContainer(ctx, container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return classifyAzureError(err, "failed to create container")
	}
	return nil
}

// Close is a no-op: the SDK client holds no resources beyond its HTTP pipeline.
func (a *AzureTransport) Close() error {
	return nil
}

// classifyAzureError maps a service response to the error taxonomy. Errors
// without a response (dial failures, resets) are returned unchanged for the
// client to classify.
func classifyAzureError(err error, message string) error {
	var respErr *azcore.ResponseError
	if !stderrors.As(err, &respErr) {
		return err
	}

	code := errors.FromHTTPStatus(respErr.StatusCode)
	if bloberror.HasCode(err, bloberror.ServerBusy, bloberror.OperationTimedOut) {
		code = errors.ErrorCodeTransient
	}

	appErr := errors.NewAppErrorWithErr(code, message, err)
	details := map[string]interface{}{"status": respErr.StatusCode}
	if respErr.ErrorCode != "" {
		details["service_code"] = respErr.ErrorCode
		appErr.Message = fmt.Sprintf("%s: %s", message, respErr.ErrorCode)
	}
	return appErr.WithDetails(details)
}
