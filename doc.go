// Package bulwark implements a credential lifecycle engine: password policy
// evaluation, signing key generations, token issue and validation, account
// state transitions and passwordless magic codes.
//
// Token lifecycle:
//   - Authenticator.Authenticate mints an Issued token pair. The pair is not
//     trusted by the server until Acknowledge stores it for a device.
//   - ValidateAccessToken is the deep path: it re-checks account health and
//     requires the presented access token to match the acknowledged record.
//   - Renew swaps an acknowledged refresh token for a new Issued pair. The
//     stored record is cleared with a compare-and-swap so only one renewal
//     of a given refresh token can win.
//   - Revoke removes the acknowledged record after a successful deep
//     validation.
//
// Signing keys:
//   - SigningKeyStore owns ECDSA P-256 key generations. The highest
//     generation signs, retained generations verify, and PurgeRetired drops
//     generations once no outstanding refresh token can reference them.
//
// Persistence contracts live in this package, bun implementations live in
// the repository package and social identity validators in the social
// package.
package bulwark
