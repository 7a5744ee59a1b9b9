// Package jwt manages access-token issuance and verification using
// configured signing keys. Validation is stateless: a token is judged
// by signature and embedded expiry alone, never by a store lookup.
package jwt
