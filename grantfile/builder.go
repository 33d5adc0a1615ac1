package grantfile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/omni/permission-relay/entity"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/relayer"
	"github.com/omni/permission-relay/sdkerrors"
)

// Builder validates grant files and resolves where they are stored:
// a caller supplied url, the relayer storage operation or the local uploader.
type Builder struct {
	relayer  relayer.Relayer
	uploader Uploader
	logger   logging.Logger
}

func NewBuilder(relay relayer.Relayer, uploader Uploader, logger logging.Logger) *Builder {
	return &Builder{
		relayer:  relay,
		uploader: uploader,
		logger:   logger,
	}
}

// Build validates the grant without storing it.
func (b *Builder) Build(grant *entity.PermissionGrant) (*GrantFile, error) {
	file := FromGrant(grant)
	if _, err := file.Marshal(); err != nil {
		return nil, err
	}
	return file, nil
}

// Store returns the url of the grant file, uploading it when no url was supplied.
func (b *Builder) Store(ctx context.Context, file *GrantFile, suppliedURL string) (string, error) {
	if suppliedURL != "" {
		return suppliedURL, nil
	}

	data, err := file.Marshal()
	if err != nil {
		return "", err
	}
	hash, err := file.Hash()
	if err != nil {
		return "", err
	}
	logger := b.logger.WithFields(logrus.Fields{
		"grantee":    file.Grantee,
		"operation":  file.Operation,
		"grant_hash": hash,
	})

	switch {
	case b.relayer != nil:
		url, err := b.storeWithRelayer(ctx, file)
		if err != nil {
			return "", err
		}
		logger.WithField("grant_url", url).Info("stored grant file with relayer")
		return url, nil
	case b.uploader != nil:
		url, err := b.uploader.Upload(ctx, data, fmt.Sprintf("grant-%s.json", hash.Hex()))
		if err != nil {
			return "", sdkerrors.WrapUnknown(err, "can't upload grant file")
		}
		logger.WithField("grant_url", url).Info("uploaded grant file")
		return url, nil
	}
	return "", sdkerrors.ErrNoStorage
}

func (b *Builder) storeWithRelayer(ctx context.Context, file *GrantFile) (string, error) {
	resp, err := b.relayer.Relay(ctx, &relayer.DirectRequest{
		Operation: relayer.OperationStoreGrantFile,
		Params:    map[string]interface{}{"grantFile": file},
	})
	if err != nil {
		if sdkerrors.IsKnown(err) {
			return "", err
		}
		return "", &sdkerrors.RelayerError{Message: "grant file storage request failed", Cause: err}
	}

	switch r := resp.(type) {
	case *relayer.DirectResponse:
		var result struct {
			URL string `json:"url"`
		}
		if err = json.Unmarshal(r.Result, &result); err != nil || result.URL == "" {
			return "", &sdkerrors.RelayerError{Message: "relayer returned no grant file url", Cause: err}
		}
		return result.URL, nil
	case *relayer.ErrorResponse:
		return "", &sdkerrors.RelayerError{Message: r.Error}
	default:
		return "", &sdkerrors.RelayerError{
			Message: fmt.Sprintf("relayer responded with %T to %s", resp, relayer.OperationStoreGrantFile),
			Cause:   sdkerrors.ErrUnexpectedResponse,
		}
	}
}
