// Package common contains shared constants and sentinel errors used across
// gyazemon components.
package common

// AppName is sent as the "app" field of every upload and used in user-facing
// notifications.
const AppName = "Gyazemon"

// AccessTokenFieldName is the multipart field carrying the Gyazo access token.
const AccessTokenFieldName = "access_token"
