package objectstorage

import (
	"go.pieceflow.dev/core/backend"
	"go.pieceflow.dev/core/backend/objectstorage/operator"
	"go.pieceflow.dev/core/backend/objectstorage/operator/azure"
	"go.pieceflow.dev/core/backend/objectstorage/operator/compat"
	"go.pieceflow.dev/core/backend/objectstorage/operator/gcs"
	"go.pieceflow.dev/core/backend/objectstorage/operator/s3"
)

// Messages of BackendErrors returned when required credentials are missing.
const (
	msgNeedAccessKey         = "need access_key_id and access_key_secret"
	msgNeedCredential        = "need credential"
	msgNeedEndpointAccessKey = "need endpoint, access_key_id and access_key_secret"
)

// DefaultConstructors returns the operator.Constructor of each Scheme.
func DefaultConstructors() map[Scheme]operator.Constructor {
	return map[Scheme]operator.Constructor{
		S3:  s3.New,
		GCS: gcs.New,
		ABS: azure.New,
		OSS: compat.OSS.New,
		OBS: compat.OBS.New,
		COS: compat.COS.New,
	}
}

// operatorConfig maps |creds| onto the operator.Config of the Scheme, after
// verifying the minimum set of fields the provider requires. The bucket is
// always taken from |parsed|.
func (s Scheme) operatorConfig(parsed *ParsedURL, creds *backend.ObjectStorage) (operator.Config, error) {
	var cfg = operator.Config{
		Bucket:    parsed.Bucket,
		VersionID: parsed.Args.VersionID,
	}
	var missing = func(msg string) (operator.Config, error) {
		return operator.Config{}, &backend.BackendError{Message: msg}
	}

	switch s {
	case S3:
		if creds == nil || creds.AccessKeyID == "" || creds.AccessKeySecret == "" {
			return missing(msgNeedAccessKey)
		}
		cfg.SessionToken = creds.SessionToken
		cfg.Region = creds.Region
		cfg.Endpoint = creds.Endpoint

	case GCS:
		if creds == nil || creds.Credential == "" {
			return missing(msgNeedCredential)
		}
		cfg.Credential = creds.Credential
		cfg.PredefinedACL = creds.PredefinedACL
		cfg.Endpoint = creds.Endpoint
		// Object generations aren't addressed by version ID.
		cfg.VersionID = ""
		return cfg, nil

	case ABS:
		if creds == nil || creds.AccessKeyID == "" || creds.AccessKeySecret == "" {
			return missing(msgNeedAccessKey)
		}
		cfg.Endpoint = creds.Endpoint

	case OSS, OBS, COS:
		// An endpoint (or region from which one is derived) is enforced by
		// the operator Constructor.
		if creds == nil || creds.AccessKeyID == "" || creds.AccessKeySecret == "" {
			return missing(msgNeedEndpointAccessKey)
		}
		cfg.Region = creds.Region
		cfg.Endpoint = creds.Endpoint
		cfg.SessionToken = creds.SessionToken

	default:
		return missing("unsupported scheme " + s.String())
	}

	cfg.AccessKeyID = creds.AccessKeyID
	cfg.AccessKeySecret = creds.AccessKeySecret
	return cfg, nil
}
