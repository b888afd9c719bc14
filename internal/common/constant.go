// Package common contains shared constants and sentinel errors used across
// notesync components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests to the relay server.
const AccessTokenHeaderName = "access_token"

// BlobKeyHeaderName carries the target object key on relay Put requests.
const BlobKeyHeaderName = "blob_key"

// BlobMetaHeaderPrefix prefixes user metadata entries sent with relay Put requests.
const BlobMetaHeaderPrefix = "blob_meta_"
